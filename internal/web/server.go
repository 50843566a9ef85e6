// Package web is the HTTP surface: the Twilio webhook, a health probe
// and a small key-protected admin API.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/McdWebs/whatsapp-bot/internal/domain"
)

// Bot handles inbound conversation messages.
type Bot interface {
	HandleInbound(ctx context.Context, from, body string)
}

// SignatureValidator checks Twilio webhook signatures.
type SignatureValidator interface {
	ValidateSignature(url string, params map[string]string, signature string) bool
}

// Exporter dumps the database to an external spreadsheet.
type Exporter interface {
	ExportAll(ctx context.Context) (string, error)
}

// AdminStore is the slice of the repository the admin API reads.
type AdminStore interface {
	CountUsers(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	ListRemindersByUser(ctx context.Context, userID string) ([]domain.Reminder, error)
	HistoryStats(ctx context.Context, from, to *time.Time) (domain.DeliveryStats, error)
}

// Server is the HTTP server and its wiring.
type Server struct {
	http *http.Server
	log  *zap.Logger
}

// Config carries the server's collaborators and settings. Validator and
// Exporter may be nil: a nil validator disables signature checking (for
// local development), a nil exporter turns the export endpoint off.
type Config struct {
	Addr          string
	PublicBaseURL string // external URL Twilio signs requests against
	AdminAPIKey   string

	Bot       Bot
	Store     AdminStore
	Exporter  Exporter
	Validator SignatureValidator
}

// NewServer builds the router and server.
func NewServer(cfg Config, log *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	wh := &webhookHandler{
		bot:       cfg.Bot,
		validator: cfg.Validator,
		baseURL:   cfg.PublicBaseURL,
		log:       log,
	}
	r.Route("/webhooks/whatsapp", func(r chi.Router) {
		r.Get("/", wh.verify)
		r.Post("/", wh.receive)
	})

	admin := &adminHandler{
		store:    cfg.Store,
		exporter: cfg.Exporter,
		log:      log,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAPIKey(cfg.AdminAPIKey))
		r.Get("/stats", admin.stats)
		r.Get("/users", admin.users)
		r.Post("/export", admin.export)
	})

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server started", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing useful left to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
