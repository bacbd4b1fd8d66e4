package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/youmna-rabie/line-relay/internal/channel"
	"github.com/youmna-rabie/line-relay/internal/config"
	"github.com/youmna-rabie/line-relay/internal/outcome"
	"github.com/youmna-rabie/line-relay/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Relayer turns a verified batch of events into outcomes.
type Relayer interface {
	Relay(ctx context.Context, events []types.InboundEvent) []types.Outcome
}

// Server is the HTTP surface of the relay: the LINE webhook, liveness
// checks, and a read-only view of recent outcomes.
type Server struct {
	cfg      *config.Config
	channel  types.Channel
	relay    Relayer
	outcomes outcome.Store
	router   chi.Router
	logger   *slog.Logger
}

// NewServer creates a Server wired with the given dependencies. outcomes
// may be nil, in which case the admin routes are not mounted.
func NewServer(
	cfg *config.Config,
	ch types.Channel,
	relay Relayer,
	outcomes outcome.Store,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		channel:  ch,
		relay:    relay,
		outcomes: outcomes,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(AccessLog(logger))
	r.Use(Recovery(logger))

	r.Post("/webhook", s.handleWebhook)
	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	if outcomes != nil {
		r.Get("/admin/outcomes", s.handleAdminOutcomes)
		r.Get("/admin/outcomes/{id}", s.handleAdminOutcome)
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleWebhook processes POST /webhook.
// Pipeline: verify → relay every event → respond with outcomes.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if d := s.cfg.Server.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	log := LoggerFromContext(r.Context(), s.logger).With("channel", s.channel.Name())

	events, err := s.channel.ParseRequest(r)
	if err != nil {
		status := rejectStatus(err)
		log.Warn("webhook rejected", "status", status, "error", err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	outcomes := s.relay.Relay(ctx, events)
	if outcomes == nil {
		outcomes = []types.Outcome{}
	}

	log.Info("webhook handled",
		"events", len(events),
		"delivered", countStatus(outcomes, types.OutcomeDelivered),
		"skipped", countStatus(outcomes, types.OutcomeSkipped),
		"failed", countStatus(outcomes, types.OutcomeFailed),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// rejectStatus maps a verification failure to its HTTP status.
func rejectStatus(err error) int {
	switch {
	case errors.Is(err, channel.ErrMissingSignature):
		return http.StatusUnauthorized
	case errors.Is(err, channel.ErrAuthentication):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func countStatus(outcomes []types.Outcome, status types.OutcomeStatus) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// handleHealth responds to GET / and GET /health with a simple liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAdminOutcomes responds to GET /admin/outcomes with recent outcomes,
// newest first.
func (s *Server) handleAdminOutcomes(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxListLimit)
	}

	outcomes, err := s.outcomes.List(limit, 0)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list outcomes",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"count":    len(outcomes),
		"total":    s.outcomes.Count(),
	})
}

// handleAdminOutcome responds to GET /admin/outcomes/{id}.
func (s *Server) handleAdminOutcome(w http.ResponseWriter, r *http.Request) {
	o, err := s.outcomes.Get(chi.URLParam(r, "id"))
	if errors.Is(err, outcome.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read outcome",
		})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HTTPServer returns an http.Server for s bound to the configured address.
// The write timeout leaves room past the request deadline for the
// response to be flushed.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.RequestTimeout + 5*time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
