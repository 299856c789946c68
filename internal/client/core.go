package client

import (
	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
	"github.com/rapidmidiex/miditip/internal/state"
)

// core is the client's session state. It does no I/O and is owned by the
// goroutine running Client.Run.
type core struct {
	id          uint8
	next        uint8
	resendAfter int

	local     *state.State
	pending   pending
	batch     msg.Events
	peers     msg.PeerList
	snapshots int

	stats Stats
}

func newCore(id uint8, resendAfter int) *core {
	return &core{
		id:          id,
		next:        1,
		resendAfter: resendAfter,
		local:       state.New(),
	}
}

// instrument stamps a local event with the next msg id and records it. The
// returned event is what goes out as a datagram. Own events are always
// batched: this client is the only writer of its namespace.
func (c *core) instrument(m miditip.MidiEvent) miditip.MiditipEvent {
	e := miditip.Tag(m, c.id, c.next)
	c.next++

	c.local.Apply(e)
	if _, ok := state.SlotOf(e); ok {
		c.pending.Push(e)
		c.batch = append(c.batch, e)
	}

	c.stats.Local++
	return e
}

// flush takes up to msg.MaxEvents of the current batch for the control
// stream. It returns nil once the batch is empty.
func (c *core) flush() msg.Events {
	if len(c.batch) == 0 {
		return nil
	}

	b := c.batch
	if len(b) > msg.MaxEvents {
		b, c.batch = b[:msg.MaxEvents:msg.MaxEvents], b[msg.MaxEvents:]
	} else {
		c.batch = nil
	}
	c.pending.Flushed(c.snapshots)
	return b
}

// snapshot reconciles the local view with the server's state and returns the
// messages to play. Pending events still unconfirmed long after they were
// flushed are queued again.
func (c *core) snapshot(s *state.State) []miditip.MidiEvent {
	c.snapshots++
	c.stats.Snapshots++

	c.pending.Prune(s)
	c.batch = append(c.batch, c.pending.Due(c.snapshots, c.resendAfter)...)

	s.Forget(c.id)
	out := c.local.Diff(s)
	c.stats.Corrections += len(out)
	return out
}

// peerList replaces the known peers and returns the releases for the notes
// held by peers that are gone.
func (c *core) peerList(list msg.PeerList) []miditip.MidiEvent {
	next := make(msg.PeerList, 0, len(list))
	for _, p := range list {
		if p.ID != c.id {
			next = append(next, p)
		}
	}

	var out []miditip.MidiEvent
	for _, p := range c.peers {
		if !next.Has(p.ID) {
			out = append(out, c.local.Forget(p.ID)...)
		}
	}

	c.peers = next
	return out
}

// datagram merges an event received from a peer. It reports whether the
// event must be played.
func (c *core) datagram(b []byte) (miditip.MidiEvent, bool) {
	e, err := miditip.ParseDatagram(b)
	if err != nil {
		c.stats.Malformed++
		return miditip.MidiEvent{}, false
	}

	// a departed peer's late datagram would resurrect its namespace
	if e.PeerID == c.id || !c.peers.Has(e.PeerID) {
		c.stats.Ignored++
		return miditip.MidiEvent{}, false
	}

	c.stats.Received++
	if !c.local.Apply(e) {
		return miditip.MidiEvent{}, false
	}
	return e.Midi(), true
}

func (c *core) status() Status {
	return Status{
		PeerID:  c.id,
		Peers:   append(msg.PeerList(nil), c.peers...),
		Held:    c.local.Held(),
		Pending: c.pending.Len(),
		Stats:   c.stats,
	}
}
