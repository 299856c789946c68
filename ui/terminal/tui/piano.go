package tui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	keyBorder = lipgloss.Border{
		Top:         "─",
		Bottom:      "-",
		Left:        "│",
		Right:       "│",
		TopLeft:     "╭",
		TopRight:    "╮",
		BottomLeft:  "╰",
		BottomRight: "╯",
	}

	keyStyle = lipgloss.NewStyle().
			Align(lipgloss.Center).
			Border(keyBorder, true).
			BorderForeground(highlight).
			Padding(0, 1)

	// a note someone is holding
	heldStyle = keyStyle.Copy().
			BorderForeground(special).
			Foreground(special).
			Bold(true)
)

type pianoKey struct {
	note   uint8  // MIDI note number in the base octave, ie: 72
	name   string // ie: "C"
	keyMap string // qwerty key, ie: "q"
}

var piano = []pianoKey{
	{72, "C", "q"},
	{74, "D", "w"},
	{76, "E", "e"},
	{77, "F", "r"},
	{79, "G", "t"},
	{81, "A", "y"},
	{83, "B", "u"},
	{84, "C", "i"},
}

const (
	minOctave = -6
	maxOctave = 3
)

// noteFor returns the note played by key k at the given octave shift.
func noteFor(k string, octave int) (uint8, bool) {
	for _, p := range piano {
		if p.keyMap == k {
			return uint8(int(p.note) + 12*octave), true
		}
	}
	return 0, false
}

// octaveName returns the scientific pitch octave of note.
func octaveName(note uint8) int { return int(note)/12 - 1 }

// renderPiano draws the keyboard, lighting the keys in held.
func renderPiano(octave int, held map[uint8]struct{}) string {
	ks := make([]string, 0, len(piano))
	for _, p := range piano {
		n := uint8(int(p.note) + 12*octave)
		label := p.name + strconv.Itoa(octaveName(n)) + "\n\n(" + p.keyMap + ")"

		if _, ok := held[n]; ok {
			ks = append(ks, heldStyle.Render(label))
		} else {
			ks = append(ks, keyStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, ks...)
}
