package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyphengolang/prelude/testing/is"

	miditip "github.com/rapidmidiex/miditip/internal"
	"github.com/rapidmidiex/miditip/internal/msg"
	"github.com/rapidmidiex/miditip/internal/server"
	"github.com/rapidmidiex/miditip/internal/websocket"
)

const wait = 2 * time.Second

func startServer(t *testing.T, opts ...server.Option) (*server.Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := server.New(append([]server.Option{server.WithTick(20 * time.Millisecond)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go srv.Run(ctx)
	go srv.Serve(ctx, ln)

	return srv, ln.Addr().String()
}

func join(t *testing.T, addr string, port uint16) (msg.Stream, uint8) {
	t.Helper()

	c, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}

	st := msg.NewStream(c)
	t.Cleanup(func() { st.Close() })

	if err := msg.Write(st, msg.ClientInit{Port: port}); err != nil {
		t.Fatal(err)
	}

	st.SetReadDeadline(time.Now().Add(wait))
	init, err := msg.Expect[msg.ServerInit](st)
	if err != nil {
		t.Fatal(err)
	}

	return st, init.PeerID
}

// nextPeerList skips snapshots until a peer list arrives.
func nextPeerList(t *testing.T, st msg.Stream) msg.PeerList {
	t.Helper()

	st.SetReadDeadline(time.Now().Add(wait))
	for {
		m, err := msg.Read(st)
		if err != nil {
			t.Fatalf("waiting for peer list: %v", err)
		}
		if list, ok := m.(msg.PeerList); ok {
			return list
		}
	}
}

// nextSnapshot waits for a snapshot satisfying ok.
func nextSnapshot(t *testing.T, st msg.Stream, ok func(msg.Snapshot) bool) msg.Snapshot {
	t.Helper()

	st.SetReadDeadline(time.Now().Add(wait))
	for {
		m, err := msg.Read(st)
		if err != nil {
			t.Fatalf("waiting for snapshot: %v", err)
		}
		if snap, isSnap := m.(msg.Snapshot); isSnap && ok(snap) {
			return snap
		}
	}
}

func ids(list msg.PeerList) []uint8 {
	out := []uint8{}
	for _, p := range list {
		out = append(out, p.ID)
	}
	return out
}

func TestPeerChurn(t *testing.T) {
	is := is.New(t)

	_, addr := startServer(t)

	a, idA := join(t, addr, 9001)
	is.Equal(idA, uint8(0)) // first peer gets id 0

	is.Equal(ids(nextPeerList(t, a)), []uint8{}) // alone in the session

	b, idB := join(t, addr, 9002)
	is.Equal(idB, uint8(1)) // smallest free id

	listB := nextPeerList(t, b)
	is.Equal(ids(listB), []uint8{0})                   // B sees A
	is.Equal(listB[0].Addr.String(), "127.0.0.1:9001") // observed ip, reported port

	is.Equal(ids(nextPeerList(t, a)), []uint8{1}) // A sees B

	b.Close()
	is.Equal(ids(nextPeerList(t, a)), []uint8{}) // A is alone again

	c, idC := join(t, addr, 9003)
	is.Equal(idC, uint8(1)) // B's id is reused
	is.Equal(ids(nextPeerList(t, c)), []uint8{0})
}

func TestSnapshotBroadcast(t *testing.T) {
	is := is.New(t)

	srv, addr := startServer(t)

	a, idA := join(t, addr, 9001)
	b, _ := join(t, addr, 9002)

	on := miditip.MiditipEvent{Status: 0x90, Data1: 60, Data2: 100, PeerID: idA, MsgID: 1}
	spoofed := miditip.MiditipEvent{Status: 0x90, Data1: 61, Data2: 100, PeerID: 7, MsgID: 1}
	is.NoErr(msg.Write(a, msg.Events{on, spoofed})) // report a batch

	snap := nextSnapshot(t, b, func(s msg.Snapshot) bool { return s.State.Len() > 0 })
	is.Equal(snap.State.Events(), []miditip.MiditipEvent{on}) // only A's own namespace is accepted

	st, err := srv.State(context.Background())
	is.NoErr(err)               // query through the loop
	is.Equal(len(st.Held()), 1) // note 60 is held

	a.Close()
	snap = nextSnapshot(t, b, func(s msg.Snapshot) bool { return s.State.Len() == 0 })
	is.Equal(len(snap.State.Held()), 0) // departed peer's notes are forgotten
}

func TestUnexpectedMessageEndsSession(t *testing.T) {
	is := is.New(t)

	_, addr := startServer(t)

	a, _ := join(t, addr, 9001)
	b, _ := join(t, addr, 9002)
	is.Equal(len(nextPeerList(t, a)), 0) // first list, before B
	is.Equal(len(nextPeerList(t, a)), 1) // B joined

	is.NoErr(msg.Write(b, msg.ClientInit{Port: 1})) // a second handshake is a protocol error

	is.Equal(len(nextPeerList(t, a)), 0) // B was removed
}

func TestHandshakeTimeout(t *testing.T) {
	is := is.New(t)

	_, addr := startServer(t, server.WithHandshakeTimeout(50*time.Millisecond))

	c, err := net.Dial("tcp", addr)
	is.NoErr(err) // connect without sending ClientInit
	defer c.Close()

	c.SetReadDeadline(time.Now().Add(wait))
	_, err = c.Read(make([]byte, 1))
	is.Equal(err, io.EOF) // server hung up
}

func TestHTTP(t *testing.T) {
	is := is.New(t)

	srv, addr := startServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	a, _ := join(t, addr, 9001)
	nextPeerList(t, a)

	ws, err := websocket.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	is.NoErr(err) // dial
	t.Cleanup(func() { ws.Close() })

	t.Run("join over websocket", func(t *testing.T) {
		is.NoErr(msg.Write(ws, msg.ClientInit{Port: 9005}))

		init, err := msg.Expect[msg.ServerInit](ws)
		is.NoErr(err)                   // handshake
		is.Equal(init.PeerID, uint8(1)) // second peer

		is.Equal(ids(nextPeerList(t, ws)), []uint8{0}) // sees the TCP peer
		is.Equal(ids(nextPeerList(t, a)), []uint8{1})  // and is seen by it
	})

	t.Run("list peers", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/v0/peers")
		is.NoErr(err)
		defer resp.Body.Close()

		is.Equal(resp.StatusCode, http.StatusOK)

		var body struct {
			Peers []server.PeerInfo `json:"peers"`
			Free  int               `json:"free"`
		}
		is.NoErr(json.NewDecoder(resp.Body).Decode(&body))
		is.Equal(len(body.Peers), 2)
		is.Equal(body.Free, server.MaxPeers-2)
		is.Equal(body.Peers[0].Addr, "127.0.0.1:9001")
	})

	t.Run("state", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/v0/state")
		is.NoErr(err)
		defer resp.Body.Close()

		is.Equal(resp.StatusCode, http.StatusOK)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/metrics")
		is.NoErr(err)
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		is.NoErr(err)
		is.True(strings.Contains(string(b), "miditip_server_peers 2"))
		is.True(strings.Contains(string(b), `miditip_server_sessions_total{result="accepted"} 2`))
	})
}
