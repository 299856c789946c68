package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	miditip "github.com/rapidmidiex/miditip/internal"
	service "github.com/rapidmidiex/miditip/internal/http"
	"github.com/rapidmidiex/miditip/internal/websocket"
)

// Handler returns the HTTP surface of s: the WebSocket control endpoint,
// read-only JSON views and the Prometheus metrics.
func (s *Server) Handler() http.Handler {
	mux := service.New(
		service.WithLogger(s.log.With().Str("component", "http").Logger()),
		service.WithOrigins(s.origins...),
	)

	mux.Get("/ws", s.handleWebSocket())
	mux.Get("/v0/peers", s.handleListPeers(mux))
	mux.Get("/v0/state", s.handleGetState(mux))
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	return mux
}

func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := websocket.UpgradeHTTP(w, r)
		if err != nil {
			s.log.Warn().Err(err).Msg("upgrade")
			return
		}

		_ = s.Handle(r.Context(), st)
	}
}

func (s *Server) handleListPeers(mux service.Service) http.HandlerFunc {
	type response struct {
		Peers []PeerInfo `json:"peers"`
		Free  int        `json:"free"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ps, err := s.Peers(r.Context())
		if err != nil {
			mux.RespondText(w, r, http.StatusServiceUnavailable)
			return
		}

		if ps == nil {
			ps = []PeerInfo{}
		}
		mux.Respond(w, r, response{Peers: ps, Free: MaxPeers - s.ids.Len()}, http.StatusOK)
	}
}

func (s *Server) handleGetState(mux service.Service) http.HandlerFunc {
	type response struct {
		Slots  int                    `json:"slots"`
		Peers  []int                  `json:"peers"`
		Held   []miditip.MiditipEvent `json:"held"`
		Events []miditip.MiditipEvent `json:"events"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.State(r.Context())
		if err != nil {
			mux.RespondText(w, r, http.StatusServiceUnavailable)
			return
		}

		// []uint8 would be encoded as base64
		peers := make([]int, 0, len(st.Peers()))
		for _, id := range st.Peers() {
			peers = append(peers, int(id))
		}

		mux.Respond(w, r, response{
			Slots:  st.Len(),
			Peers:  peers,
			Held:   st.Held(),
			Events: st.Events(),
		}, http.StatusOK)
	}
}
