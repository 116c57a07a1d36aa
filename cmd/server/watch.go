package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taoyao-code/nova-gateway/internal/control"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/session"
	"github.com/taoyao-code/nova-gateway/internal/state"
)

const (
	watchLogEntries  = 12
	watchBrightStep  = 5.0
	watchCmdTimeout  = 5 * time.Second
	watchTickSeconds = 1
)

var (
	watchTarget targetFlags
	watchPlain  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of a processor's state",
	Long: `watch 连接处理器并实时显示状态快照与变更。
终端下为交互界面：+/- 调整亮度，n/f/b 切换正常/冻结/黑屏，r 重连，q 退出。
输出不是终端（或指定 --plain）时逐行打印变更。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tty := !watchPlain && term.IsTerminal(int(os.Stdout.Fd()))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dev, _, err := openDevice(ctx, &watchTarget, tty)
		if err != nil {
			return err
		}
		defer dev.Destroy()

		if !tty {
			return watchLines(ctx, dev)
		}
		_, err = tea.NewProgram(newWatchModel(dev), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	watchTarget.bind(watchCmd)
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "强制逐行输出")
}

// watchLines 非终端输出：每条变更一行，直到收到信号
func watchLines(ctx context.Context, dev *device.Instance) error {
	fmt.Println(statusLine(dev.Status()))
	fmt.Print(renderVariables(dev.Variables()))

	changes := make(chan string, 64)
	push := func(line string) {
		select {
		case changes <- line:
		default:
		}
	}
	unwatch := dev.Store().Subscribe(func(c state.Change) { push(formatChange(c)) })
	defer unwatch()
	dev.Session().OnStatus(func(st session.StatusInfo) { push(formatStatus(st)) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-changes:
			fmt.Println(line)
		}
	}
}

func formatChange(c state.Change) string {
	return fmt.Sprintf("%s %-14s %v -> %v (%s)", c.At.Format(time.TimeOnly), c.Property, c.Old, c.New, c.Source)
}

func formatStatus(st session.StatusInfo) string {
	return fmt.Sprintf("%s %-14s %s", st.Since.Format(time.TimeOnly), "status", statusLine(st))
}

//////////////////////////////////////////////////////////////
// Bubble Tea 界面
//////////////////////////////////////////////////////////////

type watchTickMsg time.Time

type watchEventMsg string

type watchResultMsg struct {
	action string
	res    control.Result
	err    error
}

type watchModel struct {
	dev    *device.Instance
	events chan string
	log    []string
	width  int
	height int
	quit   bool
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	watchHelpTx = "+/- brightness  n normal  f freeze  b black  r reconnect  q quit"
)

func newWatchModel(dev *device.Instance) *watchModel {
	m := &watchModel{
		dev:    dev,
		events: make(chan string, 64),
		width:  80,
		height: 24,
	}
	push := func(line string) {
		select {
		case m.events <- line:
		default:
		}
	}
	dev.Store().Subscribe(func(c state.Change) { push(formatChange(c)) })
	dev.Session().OnStatus(func(st session.StatusInfo) { push(formatStatus(st)) })
	return m
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(watchTick(), m.waitEvent())
}

func watchTick() tea.Cmd {
	return tea.Tick(watchTickSeconds*time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m *watchModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		return watchEventMsg(<-m.events)
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit
		case "+", "=":
			return m, m.brightness(watchBrightStep)
		case "-", "_":
			return m, m.brightness(-watchBrightStep)
		case "n":
			return m, m.displayMode("0")
		case "f":
			return m, m.displayMode("1")
		case "b":
			return m, m.displayMode("2")
		case "r":
			return m, m.reconnect()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watchTickMsg:
		return m, watchTick()

	case watchEventMsg:
		m.addLog(string(msg))
		return m, m.waitEvent()

	case watchResultMsg:
		switch {
		case msg.err != nil:
			m.addLog(fmt.Sprintf("%s failed: %v", msg.action, msg.err))
		case !msg.res.Transmitted:
			m.addLog(fmt.Sprintf("%s queued offline: %s", msg.action, msg.res.Frame))
		default:
			m.addLog(fmt.Sprintf("%s sent: %s", msg.action, msg.res.Frame))
		}
	}
	return m, nil
}

func (m *watchModel) addLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > watchLogEntries {
		m.log = m.log[len(m.log)-watchLogEntries:]
	}
}

func (m *watchModel) brightness(delta float64) tea.Cmd {
	return m.run("brightness", func(ctx context.Context) (control.Result, error) {
		return m.dev.Control().SetBrightness(ctx, control.BrightnessAdjust, delta)
	})
}

func (m *watchModel) displayMode(id string) tea.Cmd {
	return m.run("display_mode", func(ctx context.Context) (control.Result, error) {
		return m.dev.Control().SetDisplayMode(ctx, id)
	})
}

func (m *watchModel) reconnect() tea.Cmd {
	return m.run("reconnect", func(ctx context.Context) (control.Result, error) {
		return control.Result{Transmitted: true}, m.dev.Reconnect(ctx)
	})
}

func (m *watchModel) run(action string, fn func(context.Context) (control.Result, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), watchCmdTimeout)
		defer cancel()
		res, err := fn(ctx)
		return watchResultMsg{action: action, res: res, err: err}
	}
}

func (m *watchModel) View() string {
	if m.quit {
		return ""
	}
	st := m.dev.Status()
	var status string
	switch st.Status {
	case session.StatusConnected:
		status = okStyle.Render(statusLine(st))
	case session.StatusConnectionFailure:
		status = failStyle.Render(statusLine(st))
	default:
		status = warnStyle.Render(statusLine(st))
	}

	title := "NovaStar"
	if md := m.dev.Control().Model(); md != nil {
		title = md.Label
	}
	t := m.dev.Session().Target()
	header := titleStyle.Render(fmt.Sprintf("%s  %s:%d", title, t.Host, t.Port))

	vars := boxStyle.Render(strings.TrimRight(renderVariables(m.dev.Variables()), "\n"))
	events := boxStyle.Render(strings.Join(append([]string{"recent events"}, m.log...), "\n"))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		lipgloss.JoinHorizontal(lipgloss.Top, vars, events),
		helpStyle.Render(watchHelpTx),
	)
}
