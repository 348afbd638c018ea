// Package tui renders checkpointed state interactively with Bubble Tea.
//
// The TUI is opt-in (--tui), read-only, and shows the same data as the
// json/table/yaml output of the command that launched it.
package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// theme is the TUI palette. Colors adapt to light and dark terminals.
type theme struct {
	accent lipgloss.AdaptiveColor
	fresh  lipgloss.AdaptiveColor
	stale  lipgloss.AdaptiveColor
	muted  lipgloss.AdaptiveColor
	focus  lipgloss.AdaptiveColor
	text   lipgloss.AdaptiveColor

	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	frame lipgloss.Style
	help  lipgloss.Style
}

var styles = newTheme()

func newTheme() theme {
	t := theme{
		accent: lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"},
		fresh:  lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"},
		stale:  lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"},
		muted:  lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"},
		focus:  lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"},
		text:   lipgloss.AdaptiveColor{Light: "#111827", Dark: "#F9FAFB"},
	}
	t.title = lipgloss.NewStyle().Bold(true).Foreground(t.accent).MarginBottom(1)
	t.label = lipgloss.NewStyle().Foreground(t.muted).Width(16)
	t.value = lipgloss.NewStyle().Foreground(t.text)
	t.frame = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.muted).Padding(1, 2)
	t.help = lipgloss.NewStyle().Foreground(t.muted).MarginTop(1)
	return t
}

// field renders "label value" on one line.
func (t theme) field(label, value string) string {
	return t.label.Render(label) + " " + t.value.Render(value)
}

// statBox renders a bordered number with its caption below.
func (t theme) statBox(caption, value string, color lipgloss.AdaptiveColor) string {
	number := lipgloss.NewStyle().Bold(true).Foreground(color).Render(value)
	label := lipgloss.NewStyle().Foreground(t.muted).Render(caption)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 2).
		Width(20).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center, number, label))
}

func (t theme) table() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.muted).
		BorderBottom(true).
		Bold(true).
		Foreground(t.accent)
	s.Selected = s.Selected.Foreground(t.text).Background(t.focus)
	return s
}

// age colors an update time: the newest updates in view are fresh, older
// ones stale.
func (t theme) age(fresh bool) lipgloss.Style {
	if fresh {
		return lipgloss.NewStyle().Foreground(t.fresh)
	}
	return lipgloss.NewStyle().Foreground(t.stale)
}
