// Package tui provides the interactive review screen for import previews.
package tui

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tandem/internal/cli"
	"github.com/Veraticus/tandem/internal/importer"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// chromeLines is the header and footer height around the row list.
const chromeLines = 7

// ReviewModel lets the user choose which preview rows to import. Auto-skipped
// duplicates start unselected but can be selected again.
type ReviewModel struct {
	preview   *importer.Preview
	help      help.Model
	keymap    KeyMap
	rows      []importer.Row
	initial   []bool
	threshold float64
	cursor    int
	offset    int
	height    int
	width     int
	accepted  bool
	quitting  bool
}

// NewReviewModel creates a review screen over a copy of the preview rows.
func NewReviewModel(preview *importer.Preview, threshold float64) ReviewModel {
	rows := append([]importer.Row(nil), preview.Rows...)
	initial := make([]bool, len(rows))
	for i := range rows {
		initial[i] = rows[i].Selected
	}

	return ReviewModel{
		preview:   preview,
		rows:      rows,
		initial:   initial,
		threshold: threshold,
		keymap:    DefaultKeyMap(),
		help:      help.New(),
		height:    24,
		width:     100,
	}
}

// Init implements tea.Model.
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model.
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.scrollToCursor()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m ReviewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.ForceQuit), key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Accept):
		m.accepted = true
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keymap.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keymap.PageUp):
		m.moveCursor(-m.pageSize())
	case key.Matches(msg, m.keymap.PageDown):
		m.moveCursor(m.pageSize())
	case key.Matches(msg, m.keymap.Home):
		m.moveCursor(-len(m.rows))
	case key.Matches(msg, m.keymap.End):
		m.moveCursor(len(m.rows))

	case key.Matches(msg, m.keymap.ToggleSelect):
		if len(m.rows) > 0 {
			m.rows[m.cursor].Selected = !m.rows[m.cursor].Selected
		}
	case key.Matches(msg, m.keymap.SelectAll):
		m.setAll(func(importer.Row) bool { return true })
	case key.Matches(msg, m.keymap.DeselectAll):
		m.setAll(func(importer.Row) bool { return false })
	case key.Matches(msg, m.keymap.SkipDuplicates):
		m.setAll(func(row importer.Row) bool { return row.Selected && !row.Duplicate.HasDuplicates })
	case key.Matches(msg, m.keymap.ResetSelections):
		for i := range m.rows {
			m.rows[i].Selected = m.initial[i]
		}

	case key.Matches(msg, m.keymap.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *ReviewModel) setAll(selected func(importer.Row) bool) {
	for i := range m.rows {
		m.rows[i].Selected = selected(m.rows[i])
	}
}

func (m *ReviewModel) moveCursor(delta int) {
	if len(m.rows) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.rows)-1)
	m.scrollToCursor()
}

func (m *ReviewModel) scrollToCursor() {
	page := m.pageSize()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
}

func (m ReviewModel) pageSize() int {
	return max(m.height-chromeLines, 1)
}

// View renders the review screen.
func (m ReviewModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "Review import"
	if m.preview.Metadata.BankName != "" {
		title += ": " + m.preview.Metadata.BankName
	}
	b.WriteString(cli.FormatTitle(title) + "\n")

	end := min(m.offset+m.pageSize(), len(m.rows))
	for i := m.offset; i < end; i++ {
		prefix := "  "
		if i == m.cursor {
			prefix = cli.PromptStyle.Render("> ")
		}
		b.WriteString(prefix + cli.FormatRow(m.rows[i], m.threshold) + "\n")
	}

	selected, duplicates := 0, 0
	for _, row := range m.rows {
		if row.Selected {
			selected++
			if row.Duplicate.HasDuplicates {
				duplicates++
			}
		}
	}
	status := fmt.Sprintf("%d of %d selected", selected, len(m.rows))
	if duplicates > 0 {
		status += fmt.Sprintf(", %d possible duplicates selected", duplicates)
	}
	b.WriteString("\n" + cli.SubtleStyle.Render(status) + "\n")
	b.WriteString(m.help.View(m.keymap))

	return b.String()
}

// Rows returns the rows with the user's selections applied.
func (m ReviewModel) Rows() []importer.Row {
	return append([]importer.Row(nil), m.rows...)
}

// Accepted reports whether the user confirmed the import.
func (m ReviewModel) Accepted() bool {
	return m.accepted
}
