package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Dicklesworthstone/procsampler/internal/model"
)

// Model renders the latest cycle published by the monitor.
type Model struct {
	pattern string
	latest  model.Cycle
	stream  <-chan model.Cycle
	stop    context.CancelFunc
	width   int
	height  int
}

// New builds a view fed by stream. stop is called when the user quits.
func New(pattern string, stream <-chan model.Cycle, stop context.CancelFunc) *Model {
	return &Model{
		pattern: pattern,
		latest:  model.Zero(),
		stream:  stream,
		stop:    stop,
		width:   120,
		height:  40,
	}
}

// Messages
type (
	tickMsg struct{}
)

func tickCmd() tea.Cmd { return tea.Tick(time.Second/5, func(time.Time) tea.Msg { return tickMsg{} }) }

func (m *Model) Init() tea.Cmd { return tickCmd() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stop()
			return m, tea.Quit
		}
	case tickMsg:
		// Drain to the newest cycle.
		for drained := false; !drained; {
			select {
			case c, ok := <-m.stream:
				if !ok {
					return m, tea.Quit
				}
				m.latest = c
			default:
				drained = true
			}
		}
		return m, tickCmd()
	}
	return m, nil
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

func (m *Model) View() string {
	c := m.latest
	s := c.System
	header := titleStyle.Render("procsampler") + "  " +
		subtleStyle.Render(fmt.Sprintf("pattern %q  cycle %d  %s",
			m.pattern, c.Seq, c.Started.Format("Mon Jan 2 15:04:05 MST 2006")))

	cpuCard := card("CPU",
		fmt.Sprintf("%s  usr %.1f sys %.1f iowait %.1f  (%d cpus)",
			gaugeBar(s.CPU, 28), s.CPUUser, s.CPUSystem, s.CPUIowait, s.CPUCount))

	memCard := card("Memory",
		fmt.Sprintf("%s  %s / %s",
			gaugeBar(pct(s.MemUsed, s.MemTotal), 28),
			humanize.IBytes(s.MemUsed), humanize.IBytes(s.MemTotal)))

	status := card("Cycle",
		fmt.Sprintf("tracked %d  new %d  skipped %d  took %s",
			len(c.Processes), c.New, c.Skipped, c.Duration.Round(time.Millisecond)))

	procs := card("Tracked processes", renderTable(c.Processes, max(1, m.height-12)))

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard, memCard, status)
	return lipgloss.JoinVertical(lipgloss.Left, header, line1, procs)
}

// Helpers
func gaugeBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int((pct / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		pct)
}

func card(title, body string) string {
	titleStr := labelStyle.Render(title)
	content := titleStr + "\n" + body
	return cardStyle.Render(content)
}

func renderTable(rows []model.ProcessView, limit int) string {
	sorted := make([]model.ProcessView, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sample.CPUPercent > sorted[j].Sample.CPUPercent
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %-5s %-7s %-18s %7s %10s %5s %5s  %s\n",
		"id", "ppid", "pid", "name", "cpu", "rss", "thr", "maps", "top thread")
	for i := 0; i < min(limit, len(sorted)); i++ {
		r := sorted[i]
		parent := "-"
		if r.ParentID > 0 {
			parent = fmt.Sprint(r.ParentID)
		}
		top := ""
		if r.TopThread != nil {
			top = fmt.Sprintf("%s(%d) %.1f%%",
				truncate(r.TopThread.Name, 16), r.TopThread.TID, r.TopThread.CPUPercent)
		}
		fmt.Fprintf(&b, "%-5d %-5s %-7d %-18s %6.1f%% %10s %5d %5d  %s\n",
			r.Sample.ID, parent, r.Sample.PID, truncate(r.Name, 18),
			r.Sample.CPUPercent, humanize.IBytes(r.Sample.MemoryRSS),
			r.Sample.NumThreads, r.Sample.NumMmaps, top)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func pct(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) * 100 / float64(total)
}

// Run starts the Bubble Tea program and blocks until the user quits or
// the stream is closed.
func Run(m *Model) error {
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}
