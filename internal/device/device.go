// Package device connects miditip to local MIDI ports.
//
// The native driver is built with the midi_native tag (gomidi v2 over
// rtmidi, which needs cgo). Without it only Null and Chan are available and
// Open fails with ErrNoDriver for any named port.
package device

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	miditip "github.com/rapidmidiex/miditip/internal"
)

// NullName selects the Null output, or no input.
const NullName = "null"

var (
	ErrNoDriver = errors.New("device: native MIDI driver not included in this build (build with -tags midi_native)")
	ErrNoPort   = errors.New("device: no such MIDI port")
)

// In is a source of local MIDI messages.
type In interface {
	Events() <-chan miditip.MidiEvent
	Close() error
}

// Out plays MIDI messages.
type Out interface {
	Send(miditip.MidiEvent) error
	Close() error
}

// Port is one MIDI port offered by the driver.
type Port struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

func (p Port) String() string { return p.Name }

// Ports lists the input and output ports.
type Ports struct {
	In  []Port `json:"in"`
	Out []Port `json:"out"`
}

// Open opens the named input and output. A port is chosen by number or by
// name, exact match first and then substring. An empty or "null" input opens
// nothing and returns a nil In; an empty or "null" output returns Null.
func Open(in, out string, log zerolog.Logger) (In, Out, error) {
	var (
		i   In
		o   Out = Null{Log: log}
		err error
	)

	if in != "" && in != NullName {
		if i, err = openIn(in); err != nil {
			return nil, nil, err
		}
	}

	if out != "" && out != NullName {
		if o, err = openOut(out); err != nil {
			if i != nil {
				i.Close()
			}
			return nil, nil, err
		}
	}

	return i, o, nil
}

// List returns the ports offered by the driver.
func List() (Ports, error) { return listPorts() }

// Close releases the driver.
func Close() { closeDriver() }

// find picks a port by number, exact name or name substring.
func find(ports []Port, name string) (Port, error) {
	for _, p := range ports {
		if p.Name == name {
			return p, nil
		}
	}

	for _, p := range ports {
		if strconv.Itoa(p.Number) == name {
			return p, nil
		}
	}

	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			return p, nil
		}
	}

	return Port{}, ErrNoPort
}

// Null discards everything it is sent.
type Null struct {
	Log zerolog.Logger
}

func (n Null) Send(e miditip.MidiEvent) error {
	n.Log.Debug().Stringer("event", e).Msg("play")
	return nil
}

func (Null) Close() error { return nil }

// Chan is an in-memory port: what is sent to it comes out of Events. It
// serves as a loopback device and in tests.
type Chan struct {
	c    chan miditip.MidiEvent
	once sync.Once
}

func NewChan(size int) *Chan {
	return &Chan{c: make(chan miditip.MidiEvent, size)}
}

func (c *Chan) Events() <-chan miditip.MidiEvent { return c.c }

// Send blocks while the buffer is full.
func (c *Chan) Send(e miditip.MidiEvent) error {
	c.c <- e
	return nil
}

func (c *Chan) Close() error {
	c.once.Do(func() { close(c.c) })
	return nil
}

// messageLen returns the length of the MIDI message that starts with
// status, or 0 for sysex and data bytes.
func messageLen(status uint8) int {
	switch {
	case status < 0x80:
		return 0
	case status < 0xC0, status >= 0xE0 && status < 0xF0:
		return 3
	case status < 0xE0:
		return 2
	}

	switch status {
	case 0xF1, 0xF3:
		return 2
	case 0xF2:
		return 3
	case 0xF0, 0xF7:
		return 0
	default:
		return 1
	}
}

// toBytes returns the wire form of e with its real length.
func toBytes(e miditip.MidiEvent) []byte {
	b := []byte{e.Status, e.Data1, e.Data2}
	return b[:messageLen(e.Status)]
}

// fromBytes converts a raw short message. Sysex and running status are not
// supported.
func fromBytes(b []byte) (miditip.MidiEvent, bool) {
	if len(b) == 0 {
		return miditip.MidiEvent{}, false
	}

	n := messageLen(b[0])
	if n == 0 || len(b) < n {
		return miditip.MidiEvent{}, false
	}

	var e miditip.MidiEvent
	e.Status = b[0]
	if n > 1 {
		e.Data1 = b[1] & 0x7F
	}
	if n > 2 {
		e.Data2 = b[2] & 0x7F
	}
	return e, true
}
