// Package server exposes the Doorwarden HTTP API:
//
//   - GET  /healthz                  — liveness probe
//   - GET  /readyz                   — readiness probe
//   - GET  /metrics                  — Prometheus scrape endpoint
//   - POST /v1/check                 — dry-run passphrase match (no audio involved)
//   - POST /v1/doorbell/{device_id}  — trigger a doorbell event and run the flow
//
// The doorbell endpoint blocks until the session reaches a terminal outcome,
// mirroring how a hardware bridge would hold the event callback open for the
// duration of the interaction. A second trigger for a device with a live
// session is answered with 409 Conflict.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/doorwarden/internal/doorbell"
	"github.com/MrWong99/doorwarden/internal/health"
	"github.com/MrWong99/doorwarden/internal/observe"
)

// Server bundles the HTTP handler stack for the Doorwarden API.
type Server struct {
	orch    *doorbell.Orchestrator
	health  *health.Handler
	metrics *observe.Metrics
	handler http.Handler
}

// New assembles the route table and observability middleware. The returned
// Server's [Server.Handler] is ready to be served.
func New(orch *doorbell.Orchestrator, h *health.Handler, m *observe.Metrics) *Server {
	s := &Server{
		orch:    orch,
		health:  h,
		metrics: m,
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("POST /v1/doorbell/{device_id}", s.handleDoorbell)

	s.handler = observe.Middleware(m)(mux)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// checkRequest is the body of POST /v1/check.
type checkRequest struct {
	Text string `json:"text"`
}

// checkResponse is the body returned by POST /v1/check. Threshold echoes the
// configured accept threshold so callers can see how far a score fell short.
type checkResponse struct {
	Matched   bool    `json:"matched"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Strategy  string  `json:"strategy,omitempty"`
}

// handleCheck runs the passphrase matcher over the supplied text. The matched
// secret itself is never echoed back; the endpoint exists for calibrating the
// threshold against real transcriptions, not for oracle-guessing passphrases.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	matcher := s.orch.Matcher()
	res := matcher.Check(req.Text)
	writeJSON(w, http.StatusOK, checkResponse{
		Matched:   res.Matched,
		Score:     res.Score,
		Threshold: matcher.Threshold(),
		Strategy:  res.Strategy,
	})
}

// handleDoorbell runs the full authentication flow for one doorbell press.
func (s *Server) handleDoorbell(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	outcome, err := s.orch.HandleEvent(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, doorbell.ErrSessionActive) {
			writeError(w, http.StatusConflict, "a session is already active for this device")
			return
		}
		slog.ErrorContext(r.Context(), "doorbell event failed", "device", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, "doorbell event failed")
		return
	}

	status := http.StatusOK
	if outcome.Status == doorbell.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, outcome)
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
