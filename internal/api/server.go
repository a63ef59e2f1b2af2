// Package api provides the per-peer debug/introspection HTTP surface. It
// is not a coordination authority — the protocol itself stays fully
// peer-to-peer; this is a window into one running peer's local state.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/htttp-net/htttp/internal/domain"
	"github.com/htttp-net/htttp/internal/engine"
	"github.com/htttp-net/htttp/internal/spectator"
)

// Server is one peer's debug HTTP server.
type Server struct {
	core           *engine.Core
	spectator      *spectator.Spectator
	metricsEnabled bool
}

// NewServer creates a debug server bound to core.
func NewServer(core *engine.Core) *Server {
	return &Server{core: core}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetSpectator attaches a spectator role so /status can report its
// fan-out pool statistics. Nil for a player-only peer.
func (s *Server) SetSpectator(sp *spectator.Spectator) { s.spectator = sp }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", s.handleStatus)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type statusResponse struct {
	PlayerID       domain.PlayerID           `json:"playerID"`
	ClientID       domain.ClientID           `json:"clientID"`
	GameState      string                    `json:"gameState"`
	Players        []domain.PlayerID         `json:"players"`
	MissingPlayers []domain.PlayerID         `json:"missingPlayers"`
	PlayerNumbers  map[domain.PlayerID]int   `json:"playerNumbers"`
	SeesawLock     int                       `json:"seesawLock"`
	Spectator      *spectator.Stats          `json:"spectator,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, req *http.Request) {
	if s.core == nil {
		writeJSON(w, http.StatusOK, statusResponse{GameState: domain.Disconnected.String()})
		return
	}

	players := s.core.Players()
	numbers := make(map[domain.PlayerID]int, len(players))
	for _, p := range players {
		if n, ok := s.core.PlayerNumber(p); ok {
			numbers[p] = n
		}
	}

	resp := statusResponse{
		PlayerID:       s.core.PlayerID(),
		ClientID:       s.core.ClientID(),
		GameState:      s.core.GameState().String(),
		Players:        players,
		MissingPlayers: s.core.MissingPlayers(),
		PlayerNumbers:  numbers,
		SeesawLock:     s.core.SeesawLock(),
	}
	if s.spectator != nil {
		stats := s.spectator.Stats()
		resp.Spectator = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
