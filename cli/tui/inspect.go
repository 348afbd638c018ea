package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cite-sa/MobiusCore/cli/reader"
)

const timeLayout = "2006-01-02 15:04:05.000"

// chromeHeight is the number of lines around the entry table.
const chromeHeight = 8

// InspectModel is a Bubble Tea model browsing the entries of a state view.
type InspectModel struct {
	view     *reader.StateView
	rows     []reader.StateRow
	table    table.Model
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(view *reader.StateView) InspectModel {
	rows := view.Rows()
	trows := make([]table.Row, len(rows))
	for i, r := range rows {
		trows[i] = table.Row{
			strconv.Itoa(r.Partition),
			strconv.FormatInt(r.Batch, 10),
			r.Key,
			r.Value,
			r.LastUpdated.Format(timeLayout),
		}
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Partition", Width: 9},
			{Title: "Batch", Width: 8},
			{Title: "Key", Width: 24},
			{Title: "Value", Width: 32},
			{Title: "Last Updated", Width: 23},
		}),
		table.WithRows(trows),
		table.WithFocused(true),
		table.WithHeight(min(len(trows), 20)+1),
		table.WithStyles(styles.table()),
	)
	return InspectModel{view: view, rows: rows, table: t}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - chromeHeight; h > 1 {
			m.table.SetHeight(min(h, len(m.rows)+1))
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("State: " + m.view.Stream))
	b.WriteString("\n")
	b.WriteString(styles.field("Partitions:", strconv.Itoa(len(m.view.Partitions))) + "\n")
	b.WriteString(styles.field("Keys:", strconv.Itoa(len(m.rows))) + "\n")

	if len(m.rows) == 0 {
		b.WriteString("\n" + styles.value.Render("(no keys)"))
	} else {
		b.WriteString("\n" + m.table.View())
		b.WriteString("\n" + m.selectedDetail())
	}

	return styles.frame.Render(b.String()) + "\n" + styles.help.Render("↑/↓ move • q quit")
}

// selectedDetail shows the untruncated value of the selected row.
func (m InspectModel) selectedDetail() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return ""
	}
	r := m.rows[i]
	newest := r.LastUpdated
	for _, row := range m.rows {
		if row.LastUpdated.After(newest) {
			newest = row.LastUpdated
		}
	}
	age := styles.age(r.LastUpdated.Equal(newest)).Render(r.LastUpdated.Format(timeLayout))
	return fmt.Sprintf("%s = %s (%s)",
		styles.field("Selected:", r.Key),
		styles.value.Render(r.Value),
		age)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI over a *reader.StateView.
func RunInspectTUI(data any) error {
	view, ok := data.(*reader.StateView)
	if !ok {
		return fmt.Errorf("inspect TUI: unexpected data %T", data)
	}
	p := tea.NewProgram(NewInspectModel(view), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders the view without the full TUI.
func RenderInspectStatic(view *reader.StateView) string {
	model := NewInspectModel(view)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
