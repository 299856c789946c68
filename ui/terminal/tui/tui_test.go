package tui

import (
	"net"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyphengolang/prelude/testing/is"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/client"
	"github.com/rapidmidiex/miditip/internal/msg"
)

func press(m Model, k string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return next.(Model)
}

func TestPiano(t *testing.T) {
	is := is.New(t)

	notes := make(chan miditip.MidiEvent, 8)
	m := New(nil, notes)

	m = press(m, "q")
	is.Equal(<-notes, miditip.MidiEvent{Status: 0x90, Data1: 72, Data2: velocity}) // note on

	m = press(m, "q")
	is.Equal(<-notes, miditip.MidiEvent{Status: 0x80, Data1: 72}) // second press releases

	m = press(m, "z")
	m = press(m, "w")
	is.Equal(<-notes, miditip.MidiEvent{Status: 0x90, Data1: 62, Data2: velocity}) // an octave down

	m = press(m, " ")
	is.Equal(<-notes, miditip.MidiEvent{Status: 0x80, Data1: 62}) // release all
	is.Equal(len(m.active), 0)
}

func TestOctaveBounds(t *testing.T) {
	is := is.New(t)

	m := New(nil, nil)
	for i := 0; i < 20; i++ {
		m = press(m, "x")
	}
	is.Equal(m.octave, maxOctave)

	n, ok := noteFor("i", m.octave)
	is.True(ok)
	is.True(n <= 127) // highest key stays a valid note

	for i := 0; i < 20; i++ {
		m = press(m, "z")
	}
	is.Equal(m.octave, minOctave)

	n, ok = noteFor("q", m.octave)
	is.True(ok)
	is.Equal(n, uint8(0)) // lowest key is note 0
}

func TestFullQueueDrops(t *testing.T) {
	is := is.New(t)

	notes := make(chan miditip.MidiEvent, 1)
	m := New(nil, notes)

	m = press(m, "q")
	m = press(m, "w")
	is.Equal(len(notes), 1)
	is.Equal(m.dropped, 1)
}

func TestStatus(t *testing.T) {
	is := is.New(t)

	status := make(chan client.Status, 1)
	m := New(status, nil)
	is.True(strings.Contains(m.View(), "Joining")) // nothing published yet

	s := client.Status{
		PeerID: 1,
		Peers: msg.PeerList{
			{ID: 0, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}},
			{ID: 2, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4002}},
		},
		Held: []miditip.MiditipEvent{
			{Status: 0x90, Data1: 76, Data2: 90, PeerID: 2, MsgID: 7},
		},
	}

	status <- s
	next, cmd := m.Update(m.Init()())
	m = next.(Model)
	is.True(cmd != nil) // keeps waiting for the next status

	v := m.View()
	is.True(strings.Contains(v, "peer 1, 2 others, 1 held")) // status bar
	is.True(strings.Contains(v, "127.0.0.1:4002"))           // peer row

	_, held := m.held()[76]
	is.True(held) // remote note lights the piano

	close(status)
	_, closed := waitStatus(status)().(closedMsg)
	is.True(closed)
}

func TestPeerRows(t *testing.T) {
	is := is.New(t)

	s := client.Status{
		Peers: msg.PeerList{
			{ID: 3, Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 9000}},
		},
		Held: []miditip.MiditipEvent{
			{Status: 0x90, Data1: 60, Data2: 1, PeerID: 3},
			{Status: 0x90, Data1: 64, Data2: 1, PeerID: 3},
			{Status: 0x90, Data1: 67, Data2: 1, PeerID: 1},
		},
	}

	rows := peerRows(s)
	is.Equal(len(rows), 1)
	is.Equal(rows[0][0], "3")
	is.Equal(rows[0][1], "10.0.0.3:9000")
	is.Equal(rows[0][2], "60 64") // only this peer's notes
}
