// Package api exposes the sidecar HTTP surface the game UI drives:
// rewarded flows, toasts, reconciler trigger signals and operational
// endpoints. It is meant to listen on loopback for the owning client only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
	xlog "github.com/arrowpuzzle/rewardflow/internal/log"
	"github.com/arrowpuzzle/rewardflow/internal/rewarded"
)

// FlowRunner is the orchestrator surface the API consumes.
type FlowRunner interface {
	Run(ctx context.Context, req rewarded.Request) (rewarded.Outcome, error)
	Resume(ctx context.Context, placement ledger.Placement, intentID string) (rewarded.Outcome, error)
}

// Notifier feeds external trigger signals to the reconciler.
type Notifier interface {
	Notify(reason string)
}

// Server wires the handlers to their collaborators.
type Server struct {
	flow     FlowRunner
	store    *intentstore.Store
	notifier Notifier
}

// NewServer creates the API server.
func NewServer(flow FlowRunner, store *intentstore.Store, notifier Notifier) *Server {
	return &Server{flow: flow, store: store, notifier: notifier}
}

// Router builds the chi router for the sidecar surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rewarded-flows", s.handleRunFlow)
		r.Post("/rewarded-flows/{intentID}/resume", s.handleResumeFlow)
		r.Get("/toasts", s.handleListToasts)
		r.Delete("/toasts/{toastID}", s.handleDismissToast)
		r.Post("/signals/{reason}", s.handleSignal)
	})

	return r
}

type flowResponse struct {
	rewarded.Outcome
	Message string `json:"message"`
}

func (s *Server) handleRunFlow(w http.ResponseWriter, r *http.Request) {
	var req rewarded.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Placement.Valid() {
		writeError(w, http.StatusBadRequest, "unknown placement")
		return
	}

	ctx := r.Context()
	if req.SessionID != "" {
		ctx = xlog.ContextWithSessionID(ctx, req.SessionID)
	}

	out, err := s.flow.Run(ctx, req)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Outcome: out, Message: rewarded.MessageFor(req.Placement, out)})
}

func (s *Server) handleResumeFlow(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	placement := ledger.Placement(r.URL.Query().Get("placement"))
	if intentID == "" || !placement.Valid() {
		writeError(w, http.StatusBadRequest, "intent id and a valid placement are required")
		return
	}

	out, err := s.flow.Resume(r.Context(), placement, intentID)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Outcome: out, Message: rewarded.MessageFor(placement, out)})
}

func (s *Server) handleListToasts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"toasts": s.store.Toasts()})
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	s.store.DismissToast(chi.URLParam(r, "toastID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	reason := chi.URLParam(r, "reason")
	if reason == "" {
		writeError(w, http.StatusBadRequest, "signal reason required")
		return
	}
	s.notifier.Notify(reason)
	w.WriteHeader(http.StatusAccepted)
}

// writeFlowError maps the one escaping failure class, session expiry, onto
// the transport so the UI can force re-authentication.
func (s *Server) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	logger := xlog.WithComponentFromContext(r.Context(), "api")
	if errors.Is(err, ledger.ErrSessionExpired) {
		logger.Warn().Str(xlog.FieldEvent, "api.session_expired").Msg("ledger session expired")
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}
	logger.Error().Err(err).Str(xlog.FieldEvent, "api.flow_failed").Msg("rewarded flow failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
