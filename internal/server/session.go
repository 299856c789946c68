package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/hyphengolang/prelude/types/suid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
	"github.com/rapidmidiex/miditip/internal/websocket"
)

// Handle runs one peer session on st until the peer goes away, the loop
// evicts it or ctx is done. st is closed on return.
func (s *Server) Handle(ctx context.Context, st msg.Stream) error {
	defer st.Close()

	sid := suid.NewSUID()
	log := s.log.With().Str("session", sid.String()).Str("remote", st.RemoteAddr().String()).Logger()

	p, err := s.accept(st)
	if err != nil {
		result := "failed"
		if errors.Is(err, miditip.ErrSessionFull) {
			result = "refused"
		}
		s.m.sessions.WithLabelValues(result).Inc()
		log.Warn().Err(err).Msg("handshake")
		return err
	}
	p.sid = sid
	s.m.sessions.WithLabelValues("accepted").Inc()

	if !s.post(ctx, newPeer{p: p}) {
		s.ids.Release(p.id)
		return miditip.ErrServerClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.read(gctx, st, p) })
	g.Go(func() error { return s.write(gctx, st, p) })

	err = g.Wait()
	logClose(log, p, err)

	// ctx may already be done; the loop still needs to hear about it.
	s.post(context.Background(), removePeer{p: p, err: err})
	return err
}

// accept runs the Handshaking state: read ClientInit under a deadline, take
// an id and answer with ServerInit. A full session closes the connection
// without a reply.
func (s *Server) accept(st msg.Stream) (*peer, error) {
	if err := st.SetReadDeadline(time.Now().Add(s.handshake)); err != nil {
		return nil, errors.Wrap(err, "set handshake deadline")
	}

	init, err := msg.Expect[msg.ClientInit](st)
	if err != nil {
		return nil, errors.Wrap(err, "read client init")
	}

	ip, err := remoteIP(st.RemoteAddr())
	if err != nil {
		return nil, err
	}

	id, err := s.ids.Acquire()
	if err != nil {
		return nil, err
	}

	if err := msg.Write(st, msg.ServerInit{PeerID: id}); err != nil {
		s.ids.Release(id)
		return nil, errors.Wrap(err, "write server init")
	}

	if err := st.SetReadDeadline(time.Time{}); err != nil {
		s.ids.Release(id)
		return nil, errors.Wrap(err, "clear handshake deadline")
	}

	return &peer{
		id:   id,
		addr: &net.UDPAddr{IP: ip, Port: int(init.Port)},
		out:  make(chan []byte, s.queueSize),
		kick: make(chan struct{}),
	}, nil
}

// read forwards event batches to the loop. Any other message ends the
// session.
func (s *Server) read(ctx context.Context, st msg.Stream, p *peer) error {
	for {
		m, err := msg.Read(st)
		if err != nil {
			return err
		}

		es, ok := m.(msg.Events)
		if !ok {
			return errors.Wrapf(miditip.ErrUnexpectedMessage, "%s from peer %d", m.Type(), p.id)
		}

		if !s.post(ctx, peerEvents{p: p, es: es}) {
			return ctx.Err()
		}
	}
}

// write drains the peer's queue. It closes st when it stops so that read
// unblocks.
func (s *Server) write(ctx context.Context, st msg.Stream, p *peer) error {
	defer st.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.kick:
			return miditip.ErrSlowPeer
		case b := <-p.out:
			if err := st.WriteFrame(b); err != nil {
				return errors.Wrap(err, "write frame")
			}
		}
	}
}

func logClose(log zerolog.Logger, p *peer, err error) {
	switch {
	case errors.Is(err, io.EOF), websocket.IsClosed(err):
		log.Info().Uint8("peer", p.id).Msg("session closed by peer")
	case errors.Is(err, miditip.ErrSlowPeer):
		log.Warn().Uint8("peer", p.id).Msg("session evicted")
	default:
		log.Warn().Uint8("peer", p.id).Err(err).Msg("session ended")
	}
}

func remoteIP(a net.Addr) (net.IP, error) {
	switch a := a.(type) {
	case *net.TCPAddr:
		return a.IP, nil
	case *net.UDPAddr:
		return a.IP, nil
	}

	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return nil, errors.Wrapf(err, "remote address %s", a)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, errors.Errorf("remote address %s is not an IP", a)
	}
	return ip, nil
}
