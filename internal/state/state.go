// Package state implements the Miditip State: a sparse per-peer register of
// the latest MIDI value seen on every slot, merged last-writer-wins by each
// peer's own circular sequence number.
//
// Every peer also has a high-water mark: the newest msg id applied for it.
// Records that fall more than Window ids behind it are clamped to the oldest
// id still inside the window, so a slot left untouched for a long stretch of
// its peer's events still loses to the next write instead of wrapping ahead
// of it.
//
// A State is not safe for concurrent use. The server keeps its authoritative
// copy inside a single goroutine and the client does the same with its local
// view.
package state

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	miditip "github.com/rapidmidiex/miditip/internal"
)

// Window is the furthest a record may sit behind its peer's newest msg id
// and still be ordered against it.
const Window = 127

// lead is the furthest a local mark may run ahead of a reference's before
// Diff takes it as having fallen behind it instead. Datagrams only outrun the
// server by the events of one flush.
const lead = 64

type State struct {
	slots map[Slot]miditip.MiditipEvent
	high  map[uint8]uint8
}

func New() *State {
	return &State{
		slots: make(map[Slot]miditip.MiditipEvent),
		high:  make(map[uint8]uint8),
	}
}

// FromEvents builds a State by applying every event in order.
func FromEvents(es []miditip.MiditipEvent) *State {
	s := New()
	for _, e := range es {
		s.Apply(e)
	}
	return s
}

// Len returns the number of stored slots.
func (s *State) Len() int { return len(s.slots) }

// Apply merges e. It returns true when the slot was created or e is newer than
// the stored record, false when e is stale, a duplicate or not tracked. An
// event more than Window ids behind its peer's newest is stale.
func (s *State) Apply(e miditip.MiditipEvent) bool {
	k, ok := SlotOf(e)
	if !ok {
		return false
	}

	if h, ok := s.high[e.PeerID]; ok && uint8(h-e.MsgID) > Window {
		return false
	}
	s.advance(e.PeerID, e.MsgID)

	if old, ok := s.slots[k]; ok && !miditip.Newer(e.MsgID, old.MsgID) {
		return false
	}

	s.slots[k] = e
	return true
}

// Lookup returns the record stored for the slot e would write to.
func (s *State) Lookup(e miditip.MiditipEvent) (miditip.MiditipEvent, bool) {
	k, ok := SlotOf(e)
	if !ok {
		return miditip.MiditipEvent{}, false
	}

	r, ok := s.slots[k]
	return r, ok
}

// Diff returns the messages that bring what s has materialized in line with
// reference, and records them in s so that an immediate second call returns
// nothing.
//
// A slot is corrected when reference knows it and s does not, or when the
// reference record is strictly newer. Slots where s is equal or ahead are
// left alone: they were learnt from a faster path than the snapshot. A newer
// record carrying the same value is adopted silently.
func (s *State) Diff(reference *State) []miditip.MidiEvent {
	var out []miditip.MidiEvent

	for _, p := range reference.Peers() {
		s.catchUp(p, reference.high[p])
	}

	for _, k := range reference.keys() {
		r := reference.slots[k]
		l, ok := s.slots[k]
		if ok && !miditip.Newer(r.MsgID, l.MsgID) {
			continue
		}

		if h := s.high[k.Peer]; uint8(h-r.MsgID) > Window {
			r.MsgID = h - Window
		}
		s.slots[k] = r
		if ok && sameValue(l, r) {
			continue
		}

		out = append(out, r.Midi())
	}

	return out
}

// Forget drops every slot owned by peer and returns note-offs for the notes
// that peer left sounding.
func (s *State) Forget(peer uint8) []miditip.MidiEvent {
	var out []miditip.MidiEvent

	for _, k := range s.keys() {
		if k.Peer != peer {
			continue
		}

		if e := s.slots[k]; k.Kind == miditip.NoteOn && e.Midi().Sounding() {
			out = append(out, miditip.MidiEvent{
				Status: miditip.NoteOff.Status(k.Channel),
				Data1:  k.Number,
			})
		}
		delete(s.slots, k)
	}
	delete(s.high, peer)

	return out
}

// Clone returns an independent copy. Its cost is bounded by the number of
// live slots, not by event history.
func (s *State) Clone() *State {
	return &State{slots: maps.Clone(s.slots), high: maps.Clone(s.high)}
}

// advance moves peer's high-water mark to id when id is newer, and clamps the
// records the move leaves outside the window.
func (s *State) advance(peer, id uint8) {
	if h, ok := s.high[peer]; ok && !miditip.Newer(id, h) {
		return
	}
	s.mark(peer, id)
}

// catchUp moves peer's high-water mark to a reference's unless the local one
// is at most lead ids ahead of it.
func (s *State) catchUp(peer, id uint8) {
	if h, ok := s.high[peer]; ok && (h == id || miditip.Newer(h, id) && uint8(h-id) <= lead) {
		return
	}
	s.mark(peer, id)
}

func (s *State) mark(peer, id uint8) {
	s.high[peer] = id

	floor := id - Window
	for k, r := range s.slots {
		if k.Peer == peer && uint8(id-r.MsgID) > Window {
			r.MsgID = floor
			s.slots[k] = r
		}
	}
}

// Events returns the stored records ordered by peer, channel and slot.
func (s *State) Events() []miditip.MiditipEvent {
	ks := s.keys()
	es := make([]miditip.MiditipEvent, len(ks))
	for i, k := range ks {
		es[i] = s.slots[k]
	}
	return es
}

// Held returns the note-on records that are currently sounding.
func (s *State) Held() []miditip.MiditipEvent {
	var es []miditip.MiditipEvent
	for _, e := range s.Events() {
		if e.Midi().Sounding() {
			es = append(es, e)
		}
	}
	return es
}

// Peers returns the ids owning at least one slot, ascending.
func (s *State) Peers() []uint8 {
	seen := make(map[uint8]struct{})
	for k := range s.slots {
		seen[k.Peer] = struct{}{}
	}

	ps := maps.Keys(seen)
	slices.Sort(ps)
	return ps
}

func (s *State) keys() []Slot {
	ks := maps.Keys(s.slots)
	slices.SortFunc(ks, compareSlots)
	return ks
}

// sameValue compares the sounding value of two records of one slot.
// Note-off and zero-velocity note-on are the same value.
func sameValue(a, b miditip.MiditipEvent) bool {
	if miditip.KindOf(a.Status) == miditip.NoteOn || miditip.KindOf(a.Status) == miditip.NoteOff {
		as, bs := a.Midi().Sounding(), b.Midi().Sounding()
		if !as && !bs {
			return true
		}
		return as && bs && a.Data2 == b.Data2
	}

	return a.Midi() == b.Midi()
}
