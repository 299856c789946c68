// Package msg contains the miditip control-stream messages exchanged between
// a client and the rendezvous server, and their binary encoding.
//
// Every frame body starts with one Type byte followed by the message body:
//
//	ClientInit   0x01  port u16
//	ServerInit   0x02  peer id u8
//	Events       0x03  count u16, count x 5-byte event
//	PeerList     0x04  count u8, count x (peer id u8, family u8, ip 4|16, port u16)
//	Snapshot     0x05  count u32, count x 5-byte event
//
// Integers are big-endian.
package msg

import (
	"net"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/state"
)

type Type uint8

const (
	TypeClientInit Type = 0x01
	TypeServerInit Type = 0x02
	TypeEvents     Type = 0x03
	TypePeerList   Type = 0x04
	TypeSnapshot   Type = 0x05
)

func (t Type) String() string {
	switch t {
	case TypeClientInit:
		return "CLIENT_INIT"
	case TypeServerInit:
		return "SERVER_INIT"
	case TypeEvents:
		return "EVENTS"
	case TypePeerList:
		return "PEER_LIST"
	case TypeSnapshot:
		return "SNAPSHOT"

	default:
		return "UNKNOWN"
	}
}

// MaxEvents is the largest batch an Events message can carry.
const MaxEvents = 1<<16 - 1

type (
	// Msg is implemented by every control-stream message.
	Msg interface {
		Type() Type
		append(b []byte) []byte
	}

	// ClientInit opens a session and reports the client's datagram port.
	ClientInit struct {
		Port uint16
	}

	// ServerInit answers ClientInit with the assigned peer id.
	ServerInit struct {
		PeerID uint8
	}

	// Events is a batch of locally generated events reported by a client.
	Events []miditip.MiditipEvent

	// PeerList is the set of other peers a client should send datagrams to.
	PeerList []Peer

	// Snapshot carries the server's authoritative state.
	Snapshot struct {
		State *state.State
	}
)

// Peer is one entry of a PeerList.
type Peer struct {
	ID   uint8        `json:"id"`
	Addr *net.UDPAddr `json:"addr"`
}

// Has reports whether the list contains peer id.
func (l PeerList) Has(id uint8) bool {
	for _, p := range l {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (ClientInit) Type() Type { return TypeClientInit }
func (ServerInit) Type() Type { return TypeServerInit }
func (Events) Type() Type     { return TypeEvents }
func (PeerList) Type() Type   { return TypePeerList }
func (Snapshot) Type() Type   { return TypeSnapshot }

// Encode returns the frame body of m.
func Encode(m Msg) []byte {
	return m.append([]byte{byte(m.Type())})
}

// Decode parses a frame body. Malformed bytes and unknown types are errors;
// the caller should drop the connection.
func Decode(b []byte) (Msg, error) {
	d := newDecoder(b)

	typ, err := d.u8()
	if err != nil {
		return nil, err
	}

	var m Msg
	switch Type(typ) {
	case TypeClientInit:
		m, err = decodeClientInit(d)
	case TypeServerInit:
		m, err = decodeServerInit(d)
	case TypeEvents:
		m, err = decodeEvents(d)
	case TypePeerList:
		m, err = decodePeerList(d)
	case TypeSnapshot:
		m, err = decodeSnapshot(d)
	default:
		return nil, unknown(typ)
	}

	if err != nil {
		return nil, err
	}

	if err := d.done(); err != nil {
		return nil, err
	}

	return m, nil
}
