package state

import (
	miditip "github.com/rapidmidiex/miditip/internal"
)

// Slot is the composite address of one stored value: which peer wrote it, on
// which channel, and which note, controller or channel-wide parameter it is.
type Slot struct {
	Peer    uint8
	Channel uint8
	Kind    miditip.Kind
	Number  uint8
}

// SlotOf returns the slot an event writes to. Note-on and note-off share the
// note slot so that they order against each other. System messages are not
// tracked and report false.
func SlotOf(e miditip.MiditipEvent) (Slot, bool) {
	s := Slot{Peer: e.PeerID, Channel: e.Status & 0x0F, Kind: miditip.KindOf(e.Status)}

	switch s.Kind {
	case miditip.NoteOff, miditip.NoteOn:
		s.Kind = miditip.NoteOn
		s.Number = e.Data1 & 0x7F
	case miditip.PolyPressure, miditip.ControlChange:
		s.Number = e.Data1 & 0x7F
	case miditip.ProgramChange, miditip.ChannelPressure, miditip.PitchBend:
	default:
		return Slot{}, false
	}

	return s, true
}

// rank orders kinds so that a corrective sequence selects the program and sets
// controllers before it touches notes.
func (s Slot) rank() int {
	switch s.Kind {
	case miditip.ProgramChange:
		return 0
	case miditip.ControlChange:
		return 1
	case miditip.PitchBend:
		return 2
	case miditip.ChannelPressure:
		return 3
	case miditip.NoteOn:
		return 4
	default:
		return 5
	}
}

func compareSlots(a, b Slot) int {
	switch {
	case a.Peer != b.Peer:
		return int(a.Peer) - int(b.Peer)
	case a.Channel != b.Channel:
		return int(a.Channel) - int(b.Channel)
	case a.rank() != b.rank():
		return a.rank() - b.rank()
	default:
		return int(a.Number) - int(b.Number)
	}
}
