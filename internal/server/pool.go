package server

import (
	"sync"

	miditip "github.com/rapidmidiex/miditip/internal"
)

// MaxPeers is the number of distinct peer ids.
const MaxPeers = 256

// idPool hands out peer ids. It is the only state shared between session
// goroutines and the decision loop.
type idPool struct {
	mu   sync.Mutex
	used [MaxPeers]bool
	n    int
}

// Acquire takes the smallest free id.
func (p *idPool) Acquire() (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.used {
		if !p.used[id] {
			p.used[id] = true
			p.n++
			return uint8(id), nil
		}
	}

	return 0, miditip.ErrSessionFull
}

func (p *idPool) Release(id uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.used[id] {
		p.used[id] = false
		p.n--
	}
}

func (p *idPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.n
}
