package msg

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/state"
)

const (
	familyV4 = 4
	familyV6 = 6
)

func (m ClientInit) append(b []byte) []byte {
	return binary.BigEndian.AppendUint16(b, m.Port)
}

func (m ServerInit) append(b []byte) []byte {
	return append(b, m.PeerID)
}

func (m Events) append(b []byte) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(m)))
	for _, e := range m {
		b = e.AppendBytes(b)
	}
	return b
}

func (m PeerList) append(b []byte) []byte {
	b = append(b, uint8(len(m)))
	for _, p := range m {
		b = append(b, p.ID)
		if ip4 := p.Addr.IP.To4(); ip4 != nil {
			b = append(b, familyV4)
			b = append(b, ip4...)
		} else {
			b = append(b, familyV6)
			b = append(b, p.Addr.IP.To16()...)
		}
		b = binary.BigEndian.AppendUint16(b, uint16(p.Addr.Port))
	}
	return b
}

func (m Snapshot) append(b []byte) []byte {
	var es []miditip.MiditipEvent
	if m.State != nil {
		es = m.State.Events()
	}

	b = binary.BigEndian.AppendUint32(b, uint32(len(es)))
	for _, e := range es {
		b = e.AppendBytes(b)
	}
	return b
}

func decodeClientInit(d *decoder) (Msg, error) {
	port, err := d.u16()
	if err != nil {
		return nil, err
	}
	return ClientInit{Port: port}, nil
}

func decodeServerInit(d *decoder) (Msg, error) {
	id, err := d.u8()
	if err != nil {
		return nil, err
	}
	return ServerInit{PeerID: id}, nil
}

func decodeEvents(d *decoder) (Msg, error) {
	n, err := d.u16()
	if err != nil {
		return nil, err
	}

	es, err := d.events(int(n))
	if err != nil {
		return nil, err
	}
	return Events(es), nil
}

func decodePeerList(d *decoder) (Msg, error) {
	n, err := d.u8()
	if err != nil {
		return nil, err
	}

	ps := make(PeerList, 0, n)
	for i := 0; i < int(n); i++ {
		id, err := d.u8()
		if err != nil {
			return nil, err
		}

		family, err := d.u8()
		if err != nil {
			return nil, err
		}

		var size int
		switch family {
		case familyV4:
			size = net.IPv4len
		case familyV6:
			size = net.IPv6len
		default:
			return nil, errors.Wrapf(miditip.ErrMalformed, "address family %d", family)
		}

		raw, err := d.bytes(size)
		if err != nil {
			return nil, err
		}

		port, err := d.u16()
		if err != nil {
			return nil, err
		}

		ip := make(net.IP, size)
		copy(ip, raw)
		ps = append(ps, Peer{ID: id, Addr: &net.UDPAddr{IP: ip, Port: int(port)}})
	}

	return ps, nil
}

func decodeSnapshot(d *decoder) (Msg, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}

	if int64(n)*miditip.DatagramSize > int64(d.remaining()) {
		return nil, errors.Wrapf(miditip.ErrMalformed, "snapshot claims %d events", n)
	}

	es, err := d.events(int(n))
	if err != nil {
		return nil, err
	}
	return Snapshot{State: state.FromEvents(es)}, nil
}

func unknown(typ byte) error {
	return errors.Wrapf(miditip.ErrUnknownMessage, "type 0x%02x", typ)
}

// decoder reads big-endian fields from a frame body.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder { return &decoder{buf: b} }

func (d *decoder) remaining() int { return len(d.buf) - d.pos }

func (d *decoder) bytes(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, errors.Wrapf(miditip.ErrMalformed, "need %d bytes at offset %d, have %d", n, d.pos, d.remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) events(n int) ([]miditip.MiditipEvent, error) {
	raw, err := d.bytes(n * miditip.DatagramSize)
	if err != nil {
		return nil, err
	}

	es := make([]miditip.MiditipEvent, n)
	for i := range es {
		es[i] = miditip.FromBytes([miditip.DatagramSize]byte(raw[i*miditip.DatagramSize:]))
	}
	return es, nil
}

// done fails when bytes are left over after a message.
func (d *decoder) done() error {
	if n := d.remaining(); n != 0 {
		return errors.Wrapf(miditip.ErrMalformed, "%d trailing bytes", n)
	}
	return nil
}
