package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/store"
)

// FlowRunner exposes in-process flows over HTTP. *flows.PromptInvoker
// satisfies it.
type FlowRunner interface {
	flows.Invoker
	Flows() []string
}

// StatsSource reads the turn ledger. *store.Store satisfies it.
type StatsSource interface {
	Stats(ctx context.Context, since time.Time) (*store.Stats, error)
	RecentFailures(ctx context.Context, limit int) ([]store.TurnRecord, error)
}

// Options wires the optional parts of the server. Nil fields disable the
// matching routes.
type Options struct {
	Port     int
	APIToken string
	Flows    FlowRunner
	Stats    StatsSource
	Uploads  http.Handler
}

type Server struct {
	router   *chi.Mux
	port     int
	sessions *session.Manager
	flows    FlowRunner
	stats    StatsSource
	logger   *slog.Logger
	http     *http.Server
}

func NewServer(sessions *session.Manager, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     opts.Port,
		sessions: sessions,
		flows:    opts.Flows,
		stats:    opts.Stats,
		logger:   logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/macha/status", s.status)
	if opts.Uploads != nil {
		router.Handle("/uploads/*", opts.Uploads)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))

		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Put("/topic", s.setTopic)
			r.Post("/messages", s.sendMessage)
			r.Post("/attachments", s.uploadAttachment)
			r.Post("/messages/{mid}/speech", s.speakMessage)
			r.Get("/ws", s.watchSession)
		})

		r.Post("/speech", s.speak)
		r.Post("/flows/{flow}", s.runFlow)
		r.Get("/stats", s.getStats)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight turns.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	engine := s.sessions.Engine()

	topics := make([]map[string]string, 0, len(flows.Topics))
	for _, t := range flows.Topics {
		route, _ := flows.RouteFor(t)
		topics = append(topics, map[string]string{"topic": string(t), "flow": route.Flow})
	}
	var names []string
	if s.flows != nil {
		names = s.flows.Flows()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"agent":         "macha",
		"flows":         names,
		"topics":        topics,
		"sessions":      s.sessions.Len(),
		"requireSignIn": engine.RequireSignIn(),
		"uploads":       engine.UploadsEnabled(),
		"speech":        engine.SpeechEnabled(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
