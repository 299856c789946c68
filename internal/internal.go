// Package internal holds the types shared by every miditip component: the raw
// MIDI short message and its peer-addressed form carried on the wire.
package internal

import (
	"fmt"

	"github.com/pkg/errors"
)

// DatagramSize is the exact size of a MiditipEvent on the wire.
const DatagramSize = 5

// MidiEvent is a raw 3-byte MIDI short message.
type MidiEvent struct {
	Status uint8 `json:"status"`
	Data1  uint8 `json:"data1"`
	Data2  uint8 `json:"data2"`
}

// Kind returns the message kind encoded in the high nibble of the status byte.
func (e MidiEvent) Kind() Kind { return KindOf(e.Status) }

// Channel returns the MIDI channel (0-15) encoded in the low nibble.
func (e MidiEvent) Channel() uint8 { return e.Status & 0x0F }

// Sounding reports whether e is a note-on with a non-zero velocity.
func (e MidiEvent) Sounding() bool {
	return e.Status&0xF0 == 0x90 && e.Data2 > 0
}

func (e MidiEvent) String() string {
	return fmt.Sprintf("%s ch=%d %d/%d", e.Kind(), e.Channel(), e.Data1, e.Data2)
}

// MiditipEvent is a MidiEvent tagged with the peer that generated it and that
// peer's sequence number.
type MiditipEvent struct {
	Status uint8 `json:"status"`
	Data1  uint8 `json:"data1"`
	Data2  uint8 `json:"data2"`
	PeerID uint8 `json:"peerId"`
	MsgID  uint8 `json:"msgId"`
}

// Tag wraps a MidiEvent into a MiditipEvent.
func Tag(e MidiEvent, peerID, msgID uint8) MiditipEvent {
	return MiditipEvent{
		Status: e.Status,
		Data1:  e.Data1,
		Data2:  e.Data2,
		PeerID: peerID,
		MsgID:  msgID,
	}
}

// Midi strips the origin tags.
func (e MiditipEvent) Midi() MidiEvent {
	return MidiEvent{Status: e.Status, Data1: e.Data1, Data2: e.Data2}
}

// Bytes returns the 5-byte wire form: status, data1, data2, peer id, msg id.
func (e MiditipEvent) Bytes() [DatagramSize]byte {
	return [DatagramSize]byte{e.Status, e.Data1, e.Data2, e.PeerID, e.MsgID}
}

// AppendBytes appends the wire form of e to b.
func (e MiditipEvent) AppendBytes(b []byte) []byte {
	return append(b, e.Status, e.Data1, e.Data2, e.PeerID, e.MsgID)
}

// FromBytes is the inverse of Bytes.
func FromBytes(b [DatagramSize]byte) MiditipEvent {
	return MiditipEvent{
		Status: b[0],
		Data1:  b[1],
		Data2:  b[2],
		PeerID: b[3],
		MsgID:  b[4],
	}
}

// ParseDatagram decodes a datagram received from a peer. Anything other than
// exactly DatagramSize bytes is malformed.
func ParseDatagram(b []byte) (MiditipEvent, error) {
	if len(b) != DatagramSize {
		return MiditipEvent{}, errors.Wrapf(ErrMalformed, "datagram of %d bytes", len(b))
	}

	return FromBytes([DatagramSize]byte(b)), nil
}

func (e MiditipEvent) String() string {
	return fmt.Sprintf("peer=%d msg=%d %s", e.PeerID, e.MsgID, e.Midi())
}

// Newer reports whether sequence number a comes after b under modulo-256
// circular order: a is newer when the forward distance from b to a is 1..127.
func Newer(a, b uint8) bool {
	return int8(a-b) > 0
}
