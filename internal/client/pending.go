package client

import (
	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/state"
)

// pendingEvent is a locally generated event the server has not confirmed.
type pendingEvent struct {
	e    miditip.MiditipEvent
	slot state.Slot
	// sent is the snapshot count at the time the event was last flushed,
	// -1 while it waits in a batch.
	sent int
}

// pending keeps at most one event per slot, oldest first.
type pending struct {
	es []pendingEvent
}

// Push adds e, superseding any older pending event for the same slot.
// Untracked events are never confirmed and are not kept.
func (p *pending) Push(e miditip.MiditipEvent) {
	k, ok := state.SlotOf(e)
	if !ok {
		return
	}

	for i := range p.es {
		if p.es[i].slot == k {
			p.es = append(p.es[:i], p.es[i+1:]...)
			break
		}
	}
	p.es = append(p.es, pendingEvent{e: e, slot: k, sent: -1})
}

// Flushed records that every waiting event went out at snapshot count n.
func (p *pending) Flushed(n int) {
	for i := range p.es {
		if p.es[i].sent < 0 {
			p.es[i].sent = n
		}
	}
}

// Prune re-applies every pending event onto snapshot and drops those it
// already reflects.
func (p *pending) Prune(snapshot *state.State) {
	kept := p.es[:0]
	for _, pe := range p.es {
		if snapshot.Apply(pe.e) {
			kept = append(kept, pe)
		}
	}
	p.es = kept
}

// Due returns the events flushed at least after snapshots ago and marks
// them as waiting again.
func (p *pending) Due(n, after int) []miditip.MiditipEvent {
	var es []miditip.MiditipEvent
	for i := range p.es {
		if pe := &p.es[i]; pe.sent >= 0 && n-pe.sent >= after {
			es = append(es, pe.e)
			pe.sent = -1
		}
	}
	return es
}

func (p *pending) Len() int { return len(p.es) }

func (p *pending) Events() []miditip.MiditipEvent {
	es := make([]miditip.MiditipEvent, len(p.es))
	for i, pe := range p.es {
		es[i] = pe.e
	}
	return es
}
