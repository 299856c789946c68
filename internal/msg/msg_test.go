package msg_test

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
	"github.com/rapidmidiex/miditip/internal/state"
)

func TestEncoding(t *testing.T) {
	t.Run("client init has an exact layout", func(t *testing.T) {
		b := msg.Encode(msg.ClientInit{Port: 8000})
		require.Equal(t, []byte{0x01, 0x1F, 0x40}, b)
	})

	t.Run("server init has an exact layout", func(t *testing.T) {
		b := msg.Encode(msg.ServerInit{PeerID: 10})
		require.Equal(t, []byte{0x02, 10}, b)
	})

	t.Run("events carry 5-byte records", func(t *testing.T) {
		in := msg.Events{
			{Status: 144, Data1: 60, Data2: 100, PeerID: 1, MsgID: 1},
			{Status: 128, Data1: 60, Data2: 0, PeerID: 1, MsgID: 2},
		}

		b := msg.Encode(in)
		require.Equal(t, []byte{0x03, 0, 2, 144, 60, 100, 1, 1, 128, 60, 0, 1, 2}, b)

		out, err := msg.Decode(b)
		require.NoError(t, err)
		require.Equal(t, in, out)
	})

	t.Run("peer list keeps ids and both address families", func(t *testing.T) {
		in := msg.PeerList{
			{ID: 0, Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2).To4(), Port: 8001}},
			{ID: 7, Addr: &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 9000}},
		}

		out, err := msg.Decode(msg.Encode(in))
		require.NoError(t, err)

		list, ok := out.(msg.PeerList)
		require.True(t, ok)
		require.Len(t, list, 2)
		require.Equal(t, uint8(7), list[1].ID)
		require.Equal(t, in[0].Addr.String(), list[0].Addr.String())
		require.Equal(t, in[1].Addr.String(), list[1].Addr.String())
	})

	t.Run("empty peer list", func(t *testing.T) {
		out, err := msg.Decode(msg.Encode(msg.PeerList{}))
		require.NoError(t, err)
		require.Len(t, out.(msg.PeerList), 0)
	})

	t.Run("snapshot carries the latest record per slot", func(t *testing.T) {
		s := state.New()
		s.Apply(miditip.MiditipEvent{Status: 144, Data1: 59, Data2: 126, PeerID: 0, MsgID: 1})
		s.Apply(miditip.MiditipEvent{Status: 128, Data1: 59, Data2: 0, PeerID: 0, MsgID: 2})

		out, err := msg.Decode(msg.Encode(msg.Snapshot{State: s}))
		require.NoError(t, err)

		snap, ok := out.(msg.Snapshot)
		require.True(t, ok)
		require.Equal(t, s.Events(), snap.State.Events())
		require.Equal(t, 1, snap.State.Len())
	})
}

func TestDecodeErrors(t *testing.T) {
	type testcase struct {
		name string
		in   []byte
		want error
	}

	tt := []testcase{
		{name: "empty frame", in: []byte{}, want: miditip.ErrMalformed},
		{name: "unknown type", in: []byte{0x7F}, want: miditip.ErrUnknownMessage},
		{name: "short client init", in: []byte{0x01, 0x1F}, want: miditip.ErrMalformed},
		{name: "trailing bytes", in: []byte{0x02, 1, 2}, want: miditip.ErrMalformed},
		{name: "truncated event", in: []byte{0x03, 0, 1, 144, 60}, want: miditip.ErrMalformed},
		{name: "bad address family", in: []byte{0x04, 1, 0, 5, 1, 2, 3, 4, 0, 80}, want: miditip.ErrMalformed},
		{name: "oversized snapshot count", in: []byte{0x05, 0xFF, 0xFF, 0xFF, 0xFF}, want: miditip.ErrMalformed},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := msg.Decode(tc.in)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestDatagram(t *testing.T) {
	e := miditip.MiditipEvent{Status: 144, Data1: 60, Data2: 100, PeerID: 1, MsgID: 1}
	b := e.Bytes()
	require.Equal(t, [5]byte{144, 60, 100, 1, 1}, b)

	got, err := miditip.ParseDatagram(b[:])
	require.NoError(t, err)
	require.Equal(t, e, got)

	_, err = miditip.ParseDatagram(b[:4])
	require.ErrorIs(t, err, miditip.ErrMalformed)

	_, err = miditip.ParseDatagram(append(b[:], 0))
	require.ErrorIs(t, err, miditip.ErrMalformed)
}

func TestSendRecv(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	cc, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	sc, ok := <-accepted
	require.True(t, ok)

	client, server := msg.NewStream(cc), msg.NewStream(sc)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	t.Run("handshake", func(t *testing.T) {
		require.NoError(t, msg.Write(client, msg.ClientInit{Port: 8000}))

		init, err := msg.Expect[msg.ClientInit](server)
		require.NoError(t, err)
		require.Equal(t, uint16(8000), init.Port)

		require.NoError(t, msg.Write(server, msg.ServerInit{PeerID: 10}))

		reply, err := msg.Expect[msg.ServerInit](client)
		require.NoError(t, err)
		require.Equal(t, uint8(10), reply.PeerID)
	})

	t.Run("peer list", func(t *testing.T) {
		require.NoError(t, msg.Write(server, msg.PeerList{}))

		m, err := msg.Read(client)
		require.NoError(t, err)
		require.Len(t, m.(msg.PeerList), 0)
	})

	t.Run("unexpected message", func(t *testing.T) {
		require.NoError(t, msg.Write(server, msg.PeerList{}))

		_, err := msg.Expect[msg.ServerInit](client)
		require.ErrorIs(t, err, miditip.ErrUnexpectedMessage)
	})

	t.Run("oversized batch is refused", func(t *testing.T) {
		err := msg.Write(client, make(msg.Events, msg.MaxEvents+1))
		require.ErrorIs(t, err, miditip.ErrMalformed)

		go func() { _ = msg.Write(client, make(msg.Events, msg.MaxEvents)) }()

		m, err := msg.Expect[msg.Events](server)
		require.NoError(t, err)
		require.Len(t, m, msg.MaxEvents) // nothing of the refused batch went out
	})

	t.Run("several frames back to back", func(t *testing.T) {
		s := state.New()
		s.Apply(miditip.MiditipEvent{Status: 0xB2, Data1: 7, Data2: 64, PeerID: 3, MsgID: 9})

		go func() {
			_ = msg.Write(server, msg.Snapshot{State: s})
			_ = msg.Write(server, msg.Snapshot{State: state.New()})
		}()

		first, err := msg.Expect[msg.Snapshot](client)
		require.NoError(t, err)
		require.Equal(t, 1, first.State.Len())

		second, err := msg.Expect[msg.Snapshot](client)
		require.NoError(t, err)
		require.Equal(t, 0, second.State.Len())
	})
}

func TestStreamRejectsHugeFrame(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	go func() { _, _ = a.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) }()

	_, err := msg.NewStream(b).ReadFrame()
	require.ErrorIs(t, err, miditip.ErrMalformed)
}
