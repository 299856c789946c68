// Package websocket carries the miditip control stream over a WebSocket
// connection, one binary message per frame. The server side is upgraded with
// gobwas/ws; the client side dials with gorilla/websocket.
package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
)

type serverConn struct {
	mu  sync.Mutex
	rwc net.Conn
	r   *wsutil.Reader
}

// UpgradeHTTP upgrades the request and returns the control stream of the new
// connection.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request) (msg.Stream, error) {
	rwc, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, errors.Wrap(err, "websocket upgrade")
	}

	c := &serverConn{rwc: rwc}
	c.r = &wsutil.Reader{
		Source:         rwc,
		State:          ws.StateServerSide,
		MaxFrameSize:   msg.MaxFrameSize,
		OnIntermediate: c.control,
	}
	return c, nil
}

// control answers ping and close frames. Replies share the write lock with
// WriteFrame.
func (c *serverConn) control(h ws.Header, r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return wsutil.ControlFrameHandler(c.rwc, ws.StateServerSide)(h, r)
}

func (c *serverConn) ReadFrame() ([]byte, error) {
	for {
		h, err := c.r.NextFrame()
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, errors.Wrap(miditip.ErrMalformed, "frame too large")
		}
		if err != nil {
			return nil, err
		}

		if h.OpCode.IsControl() {
			if err := c.control(h, c.r); err != nil {
				return nil, err
			}
			continue
		}

		if h.OpCode != ws.OpBinary {
			return nil, errors.Wrap(miditip.ErrMalformed, "text message on control stream")
		}

		// a message may span several frames
		b, err := io.ReadAll(io.LimitReader(c.r, msg.MaxFrameSize+1))
		if err != nil {
			return nil, err
		}
		if len(b) > msg.MaxFrameSize {
			return nil, errors.Wrapf(miditip.ErrMalformed, "message over %d bytes", msg.MaxFrameSize)
		}
		return b, nil
	}
}

func (c *serverConn) WriteFrame(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return wsutil.WriteServerBinary(c.rwc, b)
}

func (c *serverConn) SetReadDeadline(t time.Time) error { return c.rwc.SetReadDeadline(t) }

func (c *serverConn) RemoteAddr() net.Addr { return c.rwc.RemoteAddr() }

func (c *serverConn) Close() error { return c.rwc.Close() }

type clientConn struct {
	rwc *websocket.Conn
}

// Dial connects to a miditip server's WebSocket endpoint, such as
// ws://host:9001/ws.
func Dial(ctx context.Context, urlStr string) (msg.Stream, error) {
	rwc, resp, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", urlStr)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	rwc.SetReadLimit(msg.MaxFrameSize)
	return &clientConn{rwc: rwc}, nil
}

func (c *clientConn) ReadFrame() ([]byte, error) {
	typ, b, err := c.rwc.ReadMessage()
	if err != nil {
		return nil, err
	}

	if typ != websocket.BinaryMessage {
		return nil, errors.Wrap(miditip.ErrMalformed, "text message on control stream")
	}
	return b, nil
}

func (c *clientConn) WriteFrame(b []byte) error {
	return c.rwc.WriteMessage(websocket.BinaryMessage, b)
}

func (c *clientConn) SetReadDeadline(t time.Time) error { return c.rwc.SetReadDeadline(t) }

func (c *clientConn) RemoteAddr() net.Addr { return c.rwc.RemoteAddr() }

func (c *clientConn) Close() error {
	_ = c.rwc.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.rwc.Close()
}

// IsClosed reports whether err is the normal end of a WebSocket connection.
func IsClosed(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
