package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard shortcuts.
type KeyMap struct {
	// Navigation
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Home     key.Binding
	End      key.Binding

	// Selection
	ToggleSelect    key.Binding
	SelectAll       key.Binding
	DeselectAll     key.Binding
	SkipDuplicates  key.Binding
	ResetSelections key.Binding

	// Application
	Accept    key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+b"),
			key.WithHelp("PgUp/Ctrl+B", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+f"),
			key.WithHelp("PgDn/Ctrl+F", "page down"),
		),
		Home: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("Home/g", "go to start"),
		),
		End: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("End/G", "go to end"),
		),

		ToggleSelect: key.NewBinding(
			key.WithKeys(" ", "x"),
			key.WithHelp("Space/x", "toggle row"),
		),
		SelectAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "select all"),
		),
		DeselectAll: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "select none"),
		),
		SkipDuplicates: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "skip all duplicates"),
		),
		ResetSelections: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset selections"),
		),

		Accept: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "import selected"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q/Esc", "cancel"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("Ctrl+C", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ToggleSelect, k.Accept, k.Quit, k.Help}
}

// FullHelp returns all key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.ToggleSelect, k.SelectAll, k.DeselectAll, k.SkipDuplicates, k.ResetSelections},
		{k.Accept, k.Quit, k.Help},
	}
}
