package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/PuffoTrillionarioGonePublic/erldb/session"
)

const (
	maxColumnWidth = 40
	minTableHeight = 3
	maxTableHeight = 20
	// Header line plus its bottom border.
	headerHeight = 2
	// Rows reserved for title, summary and help around the table.
	chromeHeight = 8
)

// ResultModel is a Bubble Tea model browsing a query result.
type ResultModel struct {
	viewType string
	result   *session.Result
	table    table.Model
	width    int
	height   int
	quitting bool
}

// NewResultModel creates a new result model.
// data must be a *session.Result.
func NewResultModel(viewType string, data any) (ResultModel, error) {
	res, ok := data.(*session.Result)
	if !ok || res == nil {
		return ResultModel{}, fmt.Errorf("invalid data type for %s: %T", viewType, data)
	}

	t := table.New(
		table.WithColumns(columns(res)),
		table.WithRows(rows(res)),
		table.WithFocused(true),
		table.WithHeight(max(minTableHeight, min(len(res.Rows), maxTableHeight))+headerHeight),
	)
	s := table.DefaultStyles()
	s.Header = HeaderStyle
	s.Selected = SelectedStyle
	t.SetStyles(s)

	return ResultModel{
		viewType: viewType,
		result:   res,
		table:    t,
	}, nil
}

// Init implements tea.Model.
func (m ResultModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ResultModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(minTableHeight, msg.Height-chromeHeight))
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
func (m ResultModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := "Query Result"
	if m.viewType == ViewDumpResult {
		title = "Dump Result"
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	if m.result.QueryID != "" {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Query ID:"), ValueStyle.Render(m.result.QueryID))
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Rows:"), ValueStyle.Render(fmt.Sprintf("%d", len(m.result.Rows))))
	fmt.Fprintf(&b, "%s %s\n\n", LabelStyle.Render("Changes:"), SuccessStyle.Render(fmt.Sprintf("%d", m.result.Changes)))

	if len(m.result.Columns) == 0 {
		b.WriteString(NullStyle.Render("(no columns)"))
	} else {
		b.WriteString(m.table.View())
	}

	help := HelpStyle.Render("↑/↓ scroll • q quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

// Cursor returns the selected row index.
func (m ResultModel) Cursor() int {
	return m.table.Cursor()
}

func columns(res *session.Result) []table.Column {
	cells := res.Table()
	cols := make([]table.Column, len(res.Columns))
	for i, name := range res.Columns {
		w := lipgloss.Width(name)
		for _, row := range cells {
			if i < len(row) {
				w = max(w, lipgloss.Width(row[i]))
			}
		}
		cols[i] = table.Column{Title: name, Width: min(w, maxColumnWidth)}
	}
	return cols
}

func rows(res *session.Result) []table.Row {
	cells := res.Table()
	out := make([]table.Row, len(cells))
	for i, row := range cells {
		r := make(table.Row, len(res.Columns))
		copy(r, row)
		out[i] = r
	}
	return out
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

// RunResultTUI runs the result TUI.
func RunResultTUI(viewType string, data any) error {
	model, err := NewResultModel(viewType, data)
	if err != nil {
		return err
	}
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// RenderResultStatic renders a result without full TUI (for fallback).
func RenderResultStatic(viewType string, data any) (string, error) {
	model, err := NewResultModel(viewType, data)
	if err != nil {
		return "", err
	}
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View()), nil
}
