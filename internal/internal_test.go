package internal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyphengolang/prelude/testing/is"
)

func TestNewer(t *testing.T) {
	is := is.New(t)

	is.True(Newer(2, 1))    // next
	is.True(!Newer(1, 2))   // previous
	is.True(!Newer(7, 7))   // equal is not newer
	is.True(Newer(0, 255))  // wraps around
	is.True(Newer(127, 0))  // forward distance 127
	is.True(!Newer(128, 0)) // forward distance 128 is behind
	is.True(Newer(10, 200)) // forward distance 66
}

func TestDatagram(t *testing.T) {
	is := is.New(t)

	e := Tag(MidiEvent{Status: 0x91, Data1: 64, Data2: 127}, 3, 200)
	is.Equal(e.Bytes(), [DatagramSize]byte{0x91, 64, 127, 3, 200})
	is.Equal(e.AppendBytes([]byte{0xFF}), []byte{0xFF, 0x91, 64, 127, 3, 200})

	got, err := ParseDatagram([]byte{0x91, 64, 127, 3, 200})
	is.NoErr(err)
	is.Equal(got, e)
	is.Equal(got.Midi(), MidiEvent{Status: 0x91, Data1: 64, Data2: 127})

	for _, b := range [][]byte{nil, {0x90, 60, 100, 1}, {0x90, 60, 100, 1, 2, 3}} {
		_, err := ParseDatagram(b)
		is.True(errors.Is(err, ErrMalformed)) // wrong size
	}
}

func TestMidiEvent(t *testing.T) {
	is := is.New(t)

	e := MidiEvent{Status: 0x9A, Data1: 60, Data2: 100}
	is.Equal(e.Kind(), NoteOn)
	is.Equal(e.Channel(), uint8(10))
	is.True(e.Sounding())
	is.Equal(e.String(), "NOTE_ON ch=10 60/100")

	is.True(!MidiEvent{Status: 0x90, Data1: 60}.Sounding()) // velocity 0 is a release
	is.True(!MidiEvent{Status: 0x80, Data1: 60}.Sounding())

	is.Equal(NoteOff.Status(3), uint8(0x83))
	is.Equal(KindOf(0x3C), Kind(0)) // data byte
	is.Equal(Kind(0).String(), "UNKNOWN")

	b, err := json.Marshal(ControlChange)
	is.NoErr(err)
	is.Equal(string(b), `"CONTROL_CHANGE"`)
}
