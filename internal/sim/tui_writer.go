package sim

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"robotfleet-sim/internal/config"
	"robotfleet-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// robotMsg carries the latest state of one robot for the fleet table.
type robotMsg struct{ telemetry.RobotStateRow }

// healthMsg carries a fleet health summary.
type healthMsg struct{ telemetry.FleetHealthRow }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

type setStepMsg struct{ fn func(int) }

const (
	maxLogLines         = 1000
	maxSectionHeightPct = 0.4
)

// TUIWriter renders robot state using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(cfg *config.FleetConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements StateWriter.
func (w *TUIWriter) Write(row telemetry.RobotStateRow) error {
	line := fmt.Sprintf("%s[%s]%s %srobot=%q%s %spose=(%.2f,%.2f,%.2f)%s %sbatt=%.1f%%%s %stick=%d%s %sstatus=%s%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorWhite, row.Robot, colorReset,
		colorGreen, row.X, row.Y, row.Theta, colorReset,
		colorCyan, row.Battery*100, colorReset,
		colorGray, row.Tick, colorReset,
		statusColor(row.Status), row.Status, colorReset,
	)
	if row.Failures > 0 {
		line += fmt.Sprintf(" %sfailures=%d%s", colorRed, row.Failures, colorReset)
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(robotMsg{row})
	return nil
}

// WriteBatch outputs multiple state rows.
func (w *TUIWriter) WriteBatch(rows []telemetry.RobotStateRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteHealth updates the fleet summary in the footer.
func (w *TUIWriter) WriteHealth(h telemetry.FleetHealthRow) error {
	w.program.Send(healthMsg{h})
	return nil
}

// SetAdminStatus updates the admin UI indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// SetStepper registers a callback running n manual simulation passes.
func (w *TUIWriter) SetStepper(fn func(n int)) {
	w.program.Send(setStepMsg{fn: fn})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	cfg          *config.FleetConfig
	table        table.Model
	vp           viewport.Model
	logs         []string
	robots       map[string]telemetry.RobotStateRow
	health       telemetry.FleetHealthRow
	admin        bool
	wrap         bool
	autoscroll   bool
	summary      bool
	help         bool
	header       string
	headerHeight int
	height       int
	step         func(int)
	stepInput    textinput.Model
	stepDialog   bool
}

func newTUIModel(cfg *config.FleetConfig) tuiModel {
	cols := []table.Column{
		{Title: "Robot", Width: 18},
		{Title: "Role", Width: 9},
		{Title: "Pose", Width: 22},
		{Title: "Battery", Width: 8},
		{Title: "Tick", Width: 6},
		{Title: "Status", Width: 12},
	}
	return tuiModel{
		cfg:        cfg,
		table:      table.New(table.WithColumns(cols), table.WithHeight(2)),
		vp:         viewport.New(0, 0),
		robots:     make(map[string]telemetry.RobotStateRow),
		autoscroll: true,
		summary:    true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.refreshHeader()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.stepDialog {
			switch msg.Type {
			case tea.KeyEnter:
				n, err := strconv.Atoi(strings.TrimSpace(m.stepInput.Value()))
				if err == nil && n > 0 && m.step != nil {
					go m.step(n)
				}
				m.stepDialog = false
				m.updateViewportHeight()
			case tea.KeyEsc:
				m.stepDialog = false
				m.updateViewportHeight()
			default:
				var cmd tea.Cmd
				m.stepInput, cmd = m.stepInput.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "n":
			m.stepInput = textinput.New()
			m.stepInput.Placeholder = "passes"
			m.stepInput.SetValue("1")
			m.stepInput.CursorEnd()
			m.stepInput.Focus()
			m.stepDialog = true
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case robotMsg:
		m.robots[msg.Robot] = msg.RobotStateRow
		m.refreshTable()
		m.refreshHeader()
	case healthMsg:
		m.health = msg.FleetHealthRow
		m.updateViewportHeight()
	case adminMsg:
		m.admin = msg.active
	case setStepMsg:
		m.step = msg.fn
	}
	return m, nil
}

func (m *tuiModel) refreshTable() {
	rows := make([]telemetry.RobotStateRow, 0, len(m.robots))
	for _, r := range m.robots {
		rows = append(rows, r)
	}
	slices.SortFunc(rows, func(a, b telemetry.RobotStateRow) int { return a.Index - b.Index })
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{
			r.Robot,
			r.Role,
			fmt.Sprintf("%.2f,%.2f,%.2f", r.X, r.Y, r.Theta),
			fmt.Sprintf("%.0f%%", r.Battery*100),
			strconv.FormatUint(r.Tick, 10),
			r.Status,
		}
	}
	m.table.SetRows(out)
	m.table.SetHeight(min(len(out), m.maxSectionLines()) + 1)
}

func (m *tuiModel) refreshHeader() {
	m.header = m.renderHeader()
	m.headerHeight = lipgloss.Height(m.header)
	m.updateViewportHeight()
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	dialogHeight := 0
	if m.stepDialog {
		dialogHeight = 2
	}
	h := m.height - m.headerHeight - bottomHeight - dialogHeight - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
	}
	if m.stepDialog {
		sections = append(sections, divider, "Manual passes: "+m.stepInput.View())
	}
	sections = append(sections, divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	title := "Virtual fleet"
	if m.cfg != nil {
		title = fmt.Sprintf("Fleet %s%s%s  robots=%d  fake_networking=%t  manual_step=%s",
			colorBlue, m.cfg.FleetID, colorReset,
			m.cfg.NumRobots, m.cfg.FakeNetworking, time.Duration(m.cfg.ManualStep))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View())
}

func (m tuiModel) renderSummary() string {
	h := m.health
	return fmt.Sprintf("%sHEALTH%s %srobots=%d%s %sconnected=%d%s %srunning=%d%s %slow_batt=%d%s %smin_batt=%.0f%%%s %sfailures=%d%s",
		colorBlue, colorReset,
		colorWhite, h.Robots, colorReset,
		colorGreen, h.Connected, colorReset,
		colorCyan, h.Running, colorReset,
		colorYellow, h.LowBattery, colorReset,
		colorMagenta, h.MinBattery*100, colorReset,
		colorRed, h.Failures, colorReset)
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	line := fmt.Sprintf("Admin UI %s | Wrap %s | Scroll %s | Summary %s | Help %s",
		indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.summary), indicator(m.help))
	if m.summary {
		return m.renderSummary() + "\n" + line
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for log lines",
		" s  toggle auto-scroll",
		" t  toggle health footer",
		" n  run manual simulation passes",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
