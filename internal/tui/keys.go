package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Ignore     key.Binding
	Release    key.Binding
	Bump       key.Binding
	Patch      key.Binding
	DryRun     key.Binding
	AllowDirty key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Ignore: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "ignore"),
		),
		Release: key.NewBinding(
			key.WithKeys("r", "enter"),
			key.WithHelp("r", "release"),
		),
		Bump: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "bump"),
		),
		Patch: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "patch bump"),
		),
		DryRun: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "toggle dry-run"),
		),
		AllowDirty: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "toggle allow-dirty"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Release, k.Ignore, k.Bump, k.DryRun, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Release, k.Ignore},
		{k.Bump, k.Patch},
		{k.DryRun, k.AllowDirty},
		{k.Help, k.Quit},
	}
}
