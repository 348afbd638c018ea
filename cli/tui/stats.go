package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cite-sa/MobiusCore/cli/reader"
)

// StatsModel is a Bubble Tea model for stream state statistics.
type StatsModel struct {
	stats    *reader.StreamStats
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(stats *reader.StreamStats) StatsModel {
	return StatsModel{stats: stats}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	s := m.stats

	var b strings.Builder
	b.WriteString(styles.title.Render("State Statistics: " + s.Stream))
	b.WriteString("\n\n")

	// A partition lagging behind the newest batch shows as amber.
	lagColor := styles.fresh
	if s.MaxBatch > s.MinBatch {
		lagColor = styles.stale
	}
	boxes := []string{
		styles.statBox("Partitions", fmt.Sprintf("%d", s.Partitions), styles.focus),
		styles.statBox("Keys", fmt.Sprintf("%d", s.Keys), styles.accent),
		styles.statBox("Latest Batch", fmt.Sprintf("%d", s.MaxBatch), styles.fresh),
		styles.statBox("Batch Lag", fmt.Sprintf("%d", s.MaxBatch-s.MinBatch), lagColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	b.WriteString(timeLine("Batch Time:", s.LatestTime))
	b.WriteString(timeLine("Oldest Update:", s.OldestKeyTouch))
	b.WriteString(timeLine("Newest Update:", s.NewestKeyTouch))

	return b.String() + styles.help.Render("Press q or Ctrl+C to quit")
}

func timeLine(label string, t *time.Time) string {
	value := "-"
	if t != nil {
		value = t.Format(timeLayout)
	}
	return styles.field(label, value) + "\n"
}

// RunStatsTUI runs the stats TUI over a *reader.StreamStats.
func RunStatsTUI(data any) error {
	stats, ok := data.(*reader.StreamStats)
	if !ok {
		return fmt.Errorf("stats TUI: unexpected data %T", data)
	}
	p := tea.NewProgram(NewStatsModel(stats), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders stats without the full TUI.
func RenderStatsStatic(stats *reader.StreamStats) string {
	model := NewStatsModel(stats)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
