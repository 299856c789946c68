package device

import (
	"testing"

	"github.com/hyphengolang/prelude/testing/is"
	"github.com/rs/zerolog"

	miditip "github.com/rapidmidiex/miditip/internal"
)

func TestMessageLen(t *testing.T) {
	is := is.New(t)

	is.Equal(messageLen(0x3C), 0) // data byte
	is.Equal(messageLen(0x90), 3) // note on
	is.Equal(messageLen(0x85), 3) // note off
	is.Equal(messageLen(0xB0), 3) // control change
	is.Equal(messageLen(0xC3), 2) // program change
	is.Equal(messageLen(0xD0), 2) // channel pressure
	is.Equal(messageLen(0xE0), 3) // pitch bend
	is.Equal(messageLen(0xF0), 0) // sysex
	is.Equal(messageLen(0xF1), 2) // time code
	is.Equal(messageLen(0xF2), 3) // song position
	is.Equal(messageLen(0xF8), 1) // clock
}

func TestBytes(t *testing.T) {
	is := is.New(t)

	on := miditip.MidiEvent{Status: 0x90, Data1: 60, Data2: 100}
	is.Equal(toBytes(on), []byte{0x90, 60, 100})

	pc := miditip.MidiEvent{Status: 0xC0, Data1: 5, Data2: 9}
	is.Equal(toBytes(pc), []byte{0xC0, 5}) // second data byte dropped

	clock := miditip.MidiEvent{Status: 0xF8}
	is.Equal(toBytes(clock), []byte{0xF8})

	e, ok := fromBytes([]byte{0x90, 60, 100})
	is.True(ok)
	is.Equal(e, on)

	e, ok = fromBytes([]byte{0xC0, 5})
	is.True(ok)
	is.Equal(e, miditip.MidiEvent{Status: 0xC0, Data1: 5})

	_, ok = fromBytes(nil)
	is.True(!ok) // empty

	_, ok = fromBytes([]byte{0x90, 60})
	is.True(!ok) // truncated

	_, ok = fromBytes([]byte{0xF0, 0x7E, 0xF7})
	is.True(!ok) // sysex

	_, ok = fromBytes([]byte{60, 100})
	is.True(!ok) // running status
}

func TestFind(t *testing.T) {
	is := is.New(t)

	ports := []Port{
		{Number: 0, Name: "Midi Through Port-0"},
		{Number: 1, Name: "Keystation 49"},
		{Number: 2, Name: "1"},
	}

	p, err := find(ports, "1")
	is.NoErr(err)
	is.Equal(p.Number, 2) // exact name wins over number

	p, err = find(ports, "0")
	is.NoErr(err)
	is.Equal(p.Name, "Midi Through Port-0") // by number

	p, err = find(ports, "keystation")
	is.NoErr(err)
	is.Equal(p.Number, 1) // case-insensitive substring

	_, err = find(ports, "launchpad")
	is.Equal(err, ErrNoPort)
}

func TestChan(t *testing.T) {
	is := is.New(t)

	c := NewChan(2)
	on := miditip.MidiEvent{Status: 0x90, Data1: 60, Data2: 100}
	is.NoErr(c.Send(on))
	is.Equal(<-c.Events(), on)

	is.NoErr(c.Close())
	is.NoErr(c.Close()) // idempotent

	_, ok := <-c.Events()
	is.True(!ok) // closed
}

func TestOpenNull(t *testing.T) {
	is := is.New(t)

	in, out, err := Open(NullName, "", zerolog.Nop())
	is.NoErr(err)
	is.True(in == nil)
	_, null := out.(Null)
	is.True(null) // default output
	is.NoErr(out.Send(miditip.MidiEvent{Status: 0x90, Data1: 60, Data2: 1}))
	is.NoErr(out.Close())
}
