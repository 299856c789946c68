// Package client implements the peer side of a miditip session: the control
// stream dialogue with the rendezvous server and the direct datagram
// exchange with the other peers.
package client

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
)

const (
	DefaultBatchSize        = 32
	DefaultBatchInterval    = 10 * time.Millisecond
	DefaultResendAfter      = 2
	DefaultHandshakeTimeout = 5 * time.Second
)

// Output plays MIDI messages, typically on a local device.
type Output interface {
	Send(miditip.MidiEvent) error
}

// Stats counts what a client has seen since it joined.
type Stats struct {
	Local       int `json:"local"`
	Received    int `json:"received"`
	Ignored     int `json:"ignored"`
	Malformed   int `json:"malformed"`
	Snapshots   int `json:"snapshots"`
	Corrections int `json:"corrections"`
}

// Status is a point-in-time view of a running client.
type Status struct {
	PeerID  uint8                  `json:"peerId"`
	Peers   msg.PeerList           `json:"peers"`
	Held    []miditip.MiditipEvent `json:"held"`
	Pending int                    `json:"pending"`
	Stats   Stats                  `json:"stats"`
}

type Client struct {
	log zerolog.Logger

	batchSize     int
	batchInterval time.Duration
	resendAfter   int
	handshake     time.Duration
	status        chan<- Status

	st  msg.Stream
	udp net.PacketConn
	id  uint8
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithBatch sets when reported events are flushed to the server: once size
// events are waiting or every interval.
func WithBatch(size int, interval time.Duration) Option {
	return func(c *Client) {
		c.batchSize = size
		c.batchInterval = interval
	}
}

// WithResendAfter sets how many snapshots an unconfirmed event may miss
// before it is reported again.
func WithResendAfter(n int) Option {
	return func(c *Client) {
		c.resendAfter = n
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshake = d
	}
}

// WithStatus publishes a Status to ch after every change. Updates are
// dropped while ch is full.
func WithStatus(ch chan<- Status) Option {
	return func(c *Client) {
		c.status = ch
	}
}

// Dial connects to a server over TCP and joins its session.
func Dial(ctx context.Context, addr string, udp net.PacketConn, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	return Join(msg.NewStream(conn), udp, opts...)
}

// Join runs the handshake on an established control stream. udp is the
// socket peers will send datagrams to; its port is reported to the server.
// The client owns st and udp from here on.
func Join(st msg.Stream, udp net.PacketConn, opts ...Option) (*Client, error) {
	c := Client{
		log:           zerolog.Nop(),
		batchSize:     DefaultBatchSize,
		batchInterval: DefaultBatchInterval,
		resendAfter:   DefaultResendAfter,
		handshake:     DefaultHandshakeTimeout,
		st:            st,
		udp:           udp,
	}

	for _, o := range opts {
		o(&c)
	}

	if err := c.join(); err != nil {
		st.Close()
		return nil, err
	}

	c.log = c.log.With().Uint8("peer", c.id).Logger()
	c.log.Info().Str("server", st.RemoteAddr().String()).Msg("joined session")

	return &c, nil
}

func (c *Client) join() error {
	addr, ok := c.udp.LocalAddr().(*net.UDPAddr)
	if !ok {
		return errors.Errorf("datagram socket %s is not UDP", c.udp.LocalAddr())
	}

	if err := msg.Write(c.st, msg.ClientInit{Port: uint16(addr.Port)}); err != nil {
		return errors.Wrap(err, "write client init")
	}

	if err := c.st.SetReadDeadline(time.Now().Add(c.handshake)); err != nil {
		return errors.Wrap(err, "set handshake deadline")
	}

	init, err := msg.Expect[msg.ServerInit](c.st)
	if err != nil {
		return errors.Wrap(err, "read server init")
	}
	c.id = init.PeerID

	return errors.Wrap(c.st.SetReadDeadline(time.Time{}), "clear handshake deadline")
}

// ID returns the peer id assigned by the server.
func (c *Client) ID() uint8 { return c.id }

// Run plays the session until ctx is done or the server connection fails.
// Local events are read from in, which may be nil for a listen-only peer;
// everything that must sound locally is sent to out. The control stream and
// the datagram socket are closed on return.
func (c *Client) Run(ctx context.Context, in <-chan miditip.MidiEvent, out Output) error {
	g, gctx := errgroup.WithContext(ctx)

	ctrl := make(chan msg.Msg)
	dgrams := make(chan []byte, 64)

	g.Go(func() error {
		<-gctx.Done()
		c.st.Close()
		c.udp.Close()
		return nil
	})

	g.Go(func() error { return c.readStream(gctx, ctrl) })
	g.Go(func() error { return c.readDatagrams(gctx, dgrams) })
	g.Go(func() error { return c.loop(gctx, in, out, ctrl, dgrams) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) readStream(ctx context.Context, ctrl chan<- msg.Msg) error {
	for {
		m, err := msg.Read(c.st)
		if err != nil {
			return errors.Wrap(err, "read control stream")
		}

		switch m.(type) {
		case msg.Snapshot, msg.PeerList:
		default:
			return errors.Wrapf(miditip.ErrUnexpectedMessage, "%s from server", m.Type())
		}

		select {
		case ctrl <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) readDatagrams(ctx context.Context, dgrams chan<- []byte) error {
	buf := make([]byte, 64)
	for {
		n, _, err := c.udp.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read datagram")
		}

		b := make([]byte, n)
		copy(b, buf[:n])

		select {
		case dgrams <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loop owns the session state. Every decision is taken here.
func (c *Client) loop(
	ctx context.Context,
	in <-chan miditip.MidiEvent,
	out Output,
	ctrl <-chan msg.Msg,
	dgrams <-chan []byte,
) error {
	sess := newCore(c.id, c.resendAfter)

	t := time.NewTicker(c.batchInterval)
	defer t.Stop()

	play := func(ms []miditip.MidiEvent) {
		for _, m := range ms {
			if err := out.Send(m); err != nil {
				c.log.Warn().Err(err).Stringer("event", m).Msg("play")
			}
		}
	}

	flush := func() error {
		for b := sess.flush(); b != nil; b = sess.flush() {
			if err := msg.Write(c.st, b); err != nil {
				return errors.Wrap(err, "report events")
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case m, ok := <-in:
			if !ok {
				c.log.Info().Msg("instrument closed, listening only")
				in = nil
				continue
			}

			e := sess.instrument(m)
			c.broadcast(sess.peers, e)

			if len(sess.batch) >= c.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-t.C:
			if err := flush(); err != nil {
				return err
			}
			continue

		case m := <-ctrl:
			switch m := m.(type) {
			case msg.Snapshot:
				play(sess.snapshot(m.State))
			case msg.PeerList:
				play(sess.peerList(m))
				c.log.Info().Int("peers", len(sess.peers)).Msg("peer list")
			}

		case b := <-dgrams:
			if m, ok := sess.datagram(b); ok {
				play([]miditip.MidiEvent{m})
			}
		}

		c.publish(sess)
	}
}

// broadcast unicasts e to every known peer. Failures are not fatal: the
// snapshot path repairs what a lost datagram leaves behind.
func (c *Client) broadcast(peers msg.PeerList, e miditip.MiditipEvent) {
	b := e.Bytes()
	for _, p := range peers {
		if _, err := c.udp.WriteTo(b[:], p.Addr); err != nil {
			c.log.Debug().Err(err).Uint8("to", p.ID).Msg("send datagram")
		}
	}
}

func (c *Client) publish(sess *core) {
	if c.status == nil {
		return
	}

	select {
	case c.status <- sess.status():
	default:
	}
}
