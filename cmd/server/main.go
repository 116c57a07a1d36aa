package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nova-gateway",
	Short: "NovaStar LED processor control gateway",
	Long: `nova-gateway 通过 TCP 控制 NovaStar 系列 LED 处理器（MCTRL/VX/NovaPro/J6），
对外提供 HTTP 控制接口、websocket 状态推送，以及可选的 Redis 与 Webhook 分发。

子命令：
  serve   启动网关
  probe   连接一次处理器并打印识别信息与状态
  watch   终端实时查看处理器状态`,
	Version:       bootstrap.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认 NOVA_CONFIG 或 configs/example.yaml）")
	rootCmd.AddCommand(serveCmd, probeCmd, watchCmd)
}

// loadConfig 加载配置并初始化日志
func loadConfig() (*cfgpkg.Config, *zap.Logger, error) {
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
