package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	mux     *chi.Mux
	timeout time.Duration
}

func New(timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	m := chi.NewRouter()

	// middlewares must be registered before any route
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	// outside Timeout so a timed-out request is recorded as the 503 it returns
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m, timeout: timeout}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}
