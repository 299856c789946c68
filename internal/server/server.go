// Package server implements the miditip rendezvous server.
//
// Every mutation of the peer table and of the authoritative state happens on
// one goroutine, the decision loop started by Run. Sessions and the HTTP
// handlers talk to it through a bounded event bus. The only datum shared
// outside the loop is the pool of peer ids, which a session needs during its
// handshake, before the peer exists in the table.
package server

import (
	"context"
	"net"
	"time"

	"github.com/hyphengolang/prelude/types/suid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
	"github.com/rapidmidiex/miditip/internal/state"
)

const (
	DefaultTick             = 100 * time.Millisecond
	DefaultHandshakeTimeout = 2 * time.Second
	DefaultQueueSize        = 64

	busSize = 1024
)

type Server struct {
	log       zerolog.Logger
	tick      time.Duration
	handshake time.Duration
	queueSize int
	origins   []string
	reg       *prometheus.Registry

	m    *metrics
	ids  idPool
	bus  chan any
	done chan struct{}
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithTick sets the period of the state broadcast.
func WithTick(d time.Duration) Option {
	return func(s *Server) {
		s.tick = d
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.handshake = d
	}
}

// WithQueueSize bounds the number of frames waiting to be written to one
// peer. A peer whose queue is full is dropped.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		s.queueSize = n
	}
}

// WithRegistry sets the registry the server's metrics are registered with and
// served from. By default every Server has its own.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.reg = reg
	}
}

// WithOrigins allows cross-origin requests to the HTTP surface.
func WithOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

func New(opts ...Option) *Server {
	s := Server{
		log:       zerolog.Nop(),
		tick:      DefaultTick,
		handshake: DefaultHandshakeTimeout,
		queueSize: DefaultQueueSize,
		bus:       make(chan any, busSize),
		done:      make(chan struct{}),
	}

	for _, o := range opts {
		o(&s)
	}

	if s.queueSize < 1 {
		s.queueSize = 1
	}

	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	s.m = newMetrics(s.reg)

	return &s
}

// Run runs the decision loop until ctx is done. Sessions make no progress
// unless Run is running.
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	t := time.NewTicker(s.tick)
	defer t.Stop()

	l := &loop{
		s:     s,
		peers: make(map[uint8]*peer),
		state: state.New(),
	}

	s.log.Info().Dur("tick", s.tick).Msg("decision loop started")

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			s.log.Info().Msg("decision loop stopped")
			return nil
		case <-t.C:
			l.remove(l.broadcastSnapshot()...)
		case ev := <-s.bus:
			l.handle(ev)
		}
	}
}

// Serve accepts control connections on ln until ctx is done. Each connection
// runs as a session on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening for peers")

	var g errgroup.Group
	defer g.Wait()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		g.Go(func() error {
			_ = s.Handle(ctx, msg.NewStream(c))
			return nil
		})
	}
}

// PeerInfo describes one entry of the peer table.
type PeerInfo struct {
	ID      uint8     `json:"id"`
	Session suid.SUID `json:"session"`
	Addr    string    `json:"addr"`
	Queued  int       `json:"queued"`
}

// Peers returns the peer table ordered by id.
func (s *Server) Peers(ctx context.Context) ([]PeerInfo, error) {
	var ps []PeerInfo
	err := s.query(ctx, func(l *loop) {
		for _, p := range l.sorted() {
			ps = append(ps, PeerInfo{
				ID:      p.id,
				Session: p.sid,
				Addr:    p.addr.String(),
				Queued:  len(p.out),
			})
		}
	})
	return ps, err
}

// State returns a copy of the authoritative state.
func (s *Server) State(ctx context.Context) (*state.State, error) {
	var st *state.State
	err := s.query(ctx, func(l *loop) {
		st = l.state.Clone()
	})
	return st, err
}

func (s *Server) query(ctx context.Context, fn func(*loop)) error {
	q := query{fn: fn, done: make(chan struct{})}
	if !s.post(ctx, q) {
		return miditip.ErrServerClosed
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return miditip.ErrServerClosed
	}
}

// post hands ev to the decision loop. It fails once ctx is done or the loop
// has stopped.
func (s *Server) post(ctx context.Context, ev any) bool {
	select {
	case s.bus <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

type (
	newPeer struct {
		p *peer
	}

	removePeer struct {
		p   *peer
		err error
	}

	peerEvents struct {
		p  *peer
		es msg.Events
	}

	query struct {
		fn   func(*loop)
		done chan struct{}
	}
)

// peer is a session in the Active state as seen by the decision loop.
type peer struct {
	id   uint8
	sid  suid.SUID
	addr *net.UDPAddr
	out  chan []byte
	// kick is closed by the loop when it evicts the peer.
	kick chan struct{}
}

// loop is owned by the goroutine running Server.Run.
type loop struct {
	s     *Server
	peers map[uint8]*peer
	state *state.State
}

func (l *loop) handle(ev any) {
	switch ev := ev.(type) {
	case newPeer:
		l.peers[ev.p.id] = ev.p
		l.s.m.peers.Set(float64(len(l.peers)))
		l.s.log.Info().
			Uint8("peer", ev.p.id).
			Str("session", ev.p.sid.String()).
			Str("addr", ev.p.addr.String()).
			Msg("peer joined")

		if !l.send(ev.p, l.snapshot()) {
			l.remove(ev.p)
			return
		}
		l.remove(l.broadcastPeerList()...)

	case removePeer:
		if l.peers[ev.p.id] != ev.p {
			return
		}
		l.s.log.Info().Uint8("peer", ev.p.id).Err(ev.err).Msg("peer left")
		l.remove(ev.p)

	case peerEvents:
		if l.peers[ev.p.id] != ev.p {
			return
		}
		l.apply(ev.p, ev.es)

	case query:
		ev.fn(l)
		close(ev.done)
	}
}

func (l *loop) apply(p *peer, es msg.Events) {
	for _, e := range es {
		if e.PeerID != p.id {
			l.s.m.events.WithLabelValues("foreign").Inc()
			continue
		}

		if l.state.Apply(e) {
			l.s.m.events.WithLabelValues("applied").Inc()
		} else {
			l.s.m.events.WithLabelValues("stale").Inc()
		}
	}
	l.s.m.slots.Set(float64(l.state.Len()))
}

// remove evicts ps and tells the remaining peers. Peers found too slow to
// take the new peer list are evicted in turn.
func (l *loop) remove(ps ...*peer) {
	for len(ps) > 0 {
		for _, p := range ps {
			l.evict(p)
		}
		ps = l.broadcastPeerList()
	}
}

func (l *loop) evict(p *peer) {
	if l.peers[p.id] != p {
		return
	}

	delete(l.peers, p.id)
	close(p.kick)
	l.s.ids.Release(p.id)
	l.state.Forget(p.id)

	l.s.m.peers.Set(float64(len(l.peers)))
	l.s.m.slots.Set(float64(l.state.Len()))
}

// broadcastPeerList sends every peer the list of the others. It returns the
// peers whose queue was full.
func (l *loop) broadcastPeerList() []*peer {
	ps := l.sorted()

	var slow []*peer
	for _, p := range ps {
		list := make(msg.PeerList, 0, len(ps)-1)
		for _, o := range ps {
			if o != p {
				list = append(list, msg.Peer{ID: o.id, Addr: o.addr})
			}
		}

		if !l.send(p, msg.Encode(list)) {
			slow = append(slow, p)
		}
	}

	l.s.m.broadcasts.WithLabelValues("peer_list").Add(float64(len(ps) - len(slow)))
	return slow
}

// broadcastSnapshot sends every peer the current state. It returns the peers
// whose queue was full.
func (l *loop) broadcastSnapshot() []*peer {
	if len(l.peers) == 0 {
		return nil
	}

	b := l.snapshot()

	var slow []*peer
	for _, p := range l.sorted() {
		if !l.send(p, b) {
			slow = append(slow, p)
		}
	}

	l.s.m.broadcasts.WithLabelValues("snapshot").Add(float64(len(l.peers) - len(slow)))
	return slow
}

func (l *loop) snapshot() []byte {
	return msg.Encode(msg.Snapshot{State: l.state})
}

// send queues b without blocking.
func (l *loop) send(p *peer, b []byte) bool {
	select {
	case p.out <- b:
		return true
	default:
		l.s.m.slowPeers.Inc()
		l.s.log.Warn().Uint8("peer", p.id).Msg("outbound queue full, dropping peer")
		return false
	}
}

func (l *loop) sorted() []*peer {
	ids := maps.Keys(l.peers)
	slices.Sort(ids)

	ps := make([]*peer, len(ids))
	for i, id := range ids {
		ps[i] = l.peers[id]
	}
	return ps
}

func (l *loop) shutdown() {
	for _, p := range l.sorted() {
		delete(l.peers, p.id)
		close(p.kick)
		l.s.ids.Release(p.id)
	}
	l.s.m.peers.Set(0)
}
