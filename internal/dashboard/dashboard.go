// Package dashboard renders a live terminal view of a running scheduler:
// a progress bar, counts, elapsed time and the time-left estimate.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/sheetprompt/internal/scheduler"
	eta "github.com/kalambet/sheetprompt/internal/progress"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	maxBarWidth     = 60
	maxPreviewWidth = 72
)

// Source is the run being watched; *session.Session satisfies it.
type Source interface {
	Snapshot() scheduler.Snapshot
	Cancel() bool
}

type tickMsg time.Time

type Model struct {
	src        Source
	title      string
	bar        progress.Model
	snap       scheduler.Snapshot
	est        eta.Estimate
	interval   time.Duration
	cancelling bool
	finished   bool
}

// New returns a dashboard model refreshing every second.
func New(src Source, title string) Model {
	return Model{
		src:      src,
		title:    title,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		interval: eta.RefreshInterval,
	}
}

// Run shows the dashboard until the run leaves Running or the user quits.
func Run(ctx context.Context, src Source, title string) (scheduler.Snapshot, error) {
	p := tea.NewProgram(New(src, title), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return src.Snapshot(), fmt.Errorf("running dashboard: %w", err)
	}
	if m, ok := final.(Model); ok {
		return m.snap, nil
	}
	return src.Snapshot(), nil
}

func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return tickMsg(time.Now()) }
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w > maxBarWidth {
			w = maxBarWidth
		}
		if w > 0 {
			m.bar.Width = w
		}
		return m, nil

	case tickMsg:
		m.snap = m.src.Snapshot()
		m.est = eta.FromSnapshot(m.snap)
		if m.snap.State != scheduler.Running {
			m.finished = true
			return m, tea.Quit
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.finished || m.snap.State != scheduler.Running {
				return m, tea.Quit
			}
			// Keep ticking until the scheduler reports the cancellation.
			m.src.Cancel()
			m.cancelling = true
			return m, nil
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.est.Fraction()))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%d/%d requests  %s\n", m.est.Done, m.est.Total, mutedStyle.Render("elapsed "+eta.Format(m.est.Elapsed)))
	b.WriteString(m.est.String())
	b.WriteString("\n")

	if n := len(m.snap.Responses); n > 0 {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Last response:"))
		b.WriteString("\n")
		b.WriteString(truncate(m.snap.Responses[n-1], maxPreviewWidth))
		b.WriteString("\n")
	}

	switch {
	case m.snap.State == scheduler.Failed:
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.snap.ErrorMessage()))
		b.WriteString("\n")
	case m.snap.State == scheduler.Completed:
		b.WriteString("\n")
		b.WriteString(okStyle.Render("Completed"))
		b.WriteString("\n")
	case m.cancelling:
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("cancelling..."))
		b.WriteString("\n")
	default:
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("q: cancel run"))
		b.WriteString("\n")
	}

	return panelStyle.Render(b.String())
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
