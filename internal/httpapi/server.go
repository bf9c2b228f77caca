// Package httpapi hosts the broker's HTTP surface: the websocket upgrade
// endpoint agents speak the signaling protocol over, and a small set of
// operational endpoints alongside it.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/relayforge/broker/internal/registry"
	"github.com/relayforge/broker/internal/signaling"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the broker's HTTP listener.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	engine     *signaling.Engine
	state      *registry.State
	limiter    *rate.Limiter
}

// New builds a Server that upgrades /ws to websockets and dispatches every
// connection to engine, and exposes /healthz for operational visibility.
func New(addr string, engine *signaling.Engine, state *registry.State, rps float64, burst int) *Server {
	s := &Server{
		engine:  engine,
		state:   state,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/ws", s.handleWebsocket)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("agent connected")
	s.engine.Run(r.Context(), newSyncConn(conn))
	log.Info().Str("remote", r.RemoteAddr).Msg("agent disconnected")
}

// ListenAndServe starts the HTTP server; it blocks until Shutdown is
// called or the listener errors.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
