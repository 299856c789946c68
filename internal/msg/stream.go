package msg

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	miditip "github.com/rapidmidiex/miditip/internal"
)

// MaxFrameSize bounds a single frame body. It fits a snapshot of every slot
// of 256 peers.
const MaxFrameSize = 8 << 20

const frameHeaderSize = 4

// Stream is a reliable, message-framed control connection. Reads and writes
// may run concurrently with each other but not with themselves.
type Stream interface {
	ReadFrame() ([]byte, error)
	WriteFrame(b []byte) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// NewStream frames messages over a byte stream with a 4-byte big-endian
// length prefix.
func NewStream(c net.Conn) Stream {
	return &stream{c: c, r: bufio.NewReader(c)}
}

type stream struct {
	c net.Conn
	r *bufio.Reader
}

func (s *stream) ReadFrame() ([]byte, error) {
	var h [frameHeaderSize]byte
	if _, err := io.ReadFull(s.r, h[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(h[:])
	if n > MaxFrameSize {
		return nil, errors.Wrapf(miditip.ErrMalformed, "frame of %d bytes", n)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *stream) WriteFrame(b []byte) error {
	if len(b) > MaxFrameSize {
		return errors.Wrapf(miditip.ErrMalformed, "frame of %d bytes", len(b))
	}

	buf := make([]byte, frameHeaderSize, frameHeaderSize+len(b))
	binary.BigEndian.PutUint32(buf, uint32(len(b)))
	_, err := s.c.Write(append(buf, b...))
	return err
}

func (s *stream) SetReadDeadline(t time.Time) error { return s.c.SetReadDeadline(t) }

func (s *stream) RemoteAddr() net.Addr { return s.c.RemoteAddr() }

func (s *stream) Close() error { return s.c.Close() }

// Read reads and decodes the next message.
func Read(s Stream) (Msg, error) {
	b, err := s.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Write encodes and writes m.
func Write(s Stream, m Msg) error {
	if es, ok := m.(Events); ok && len(es) > MaxEvents {
		return errors.Wrapf(miditip.ErrMalformed, "batch of %d events", len(es))
	}
	return s.WriteFrame(Encode(m))
}

// Expect reads the next message and fails with ErrUnexpectedMessage unless
// it has type T.
func Expect[T Msg](s Stream) (T, error) {
	var zero T

	m, err := Read(s)
	if err != nil {
		return zero, err
	}

	v, ok := m.(T)
	if !ok {
		return zero, errors.Wrapf(miditip.ErrUnexpectedMessage, "got %s, want %s", m.Type(), zero.Type())
	}
	return v, nil
}

// IsTimeout reports whether err is a deadline expiry rather than a failure.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
