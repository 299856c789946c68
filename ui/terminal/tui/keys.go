package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap satisfies help.KeyMap.
type keyMap struct {
	Play       key.Binding
	OctaveDown key.Binding
	OctaveUp   key.Binding
	Release    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Release, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.OctaveDown, k.OctaveUp, k.Release}, // playing
		{k.Help, k.Quit},                              // program
	}
}

var keys = keyMap{
	Play: key.NewBinding(
		key.WithKeys("q", "w", "e", "r", "t", "y", "u", "i"),
		key.WithHelp("q-i", "toggle note"),
	),
	OctaveDown: key.NewBinding(
		key.WithKeys("left", "z"),
		key.WithHelp("←/z", "octave down"),
	),
	OctaveUp: key.NewBinding(
		key.WithKeys("right", "x"),
		key.WithHelp("→/x", "octave up"),
	),
	Release: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "release all"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c", "quit"),
	),
}
