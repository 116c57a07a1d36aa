package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/app"
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/logging"
	"github.com/taoyao-code/nova-gateway/internal/session"
)

// targetFlags probe/watch 共用的连接参数，未指定时取配置文件
type targetFlags struct {
	host    string
	port    int
	model   string
	verbose bool
}

func (f *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "", "处理器地址")
	cmd.Flags().IntVar(&f.port, "port", 0, "TCP 端口（0 按型号默认）")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "型号 id，例如 vx4s、mctrl600")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "输出调试日志")
}

func (f *targetFlags) apply(cfg cfgpkg.DeviceConfig) cfgpkg.DeviceConfig {
	if f.host != "" {
		cfg.Host = f.host
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.model != "" {
		cfg.Model = f.model
	}
	return cfg
}

// openDevice 加载配置与目录并连接处理器
func openDevice(ctx context.Context, f *targetFlags, quiet bool) (*device.Instance, *zap.Logger, error) {
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()
	if f.verbose && !quiet {
		lc := cfg.Logging
		lc.Level, lc.Format, lc.File.Filename = "debug", "console", ""
		if logger, err = logging.InitLogger(lc); err != nil {
			return nil, nil, err
		}
	}

	dcfg := f.apply(cfg.Device)
	if dcfg.Model == "" {
		return nil, nil, fmt.Errorf("model required (--model)")
	}
	if dcfg.Host == "" {
		return nil, nil, fmt.Errorf("host required (--host)")
	}

	cat, err := app.LoadCatalog(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, nil, err
	}
	dev := app.NewDevice(dcfg, cat, nil, logger)
	if err := dev.Init(ctx, dcfg); err != nil {
		dev.Destroy()
		return nil, nil, err
	}
	return dev, logger, nil
}

var (
	keyStyle   = lipgloss.NewStyle().Bold(true).Width(20)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// renderVariables 按名称排序输出变量表，未知值显示为 -
func renderVariables(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := vars[k]
		if v == "" {
			b.WriteString(keyStyle.Render(k) + emptyStyle.Render("-") + "\n")
			continue
		}
		b.WriteString(keyStyle.Render(k) + valueStyle.Render(v) + "\n")
	}
	return b.String()
}

func statusLine(st session.StatusInfo) string {
	return fmt.Sprintf("%s (%s) since %s", st.Status, st.Message, st.Since.Format(time.TimeOnly))
}
