// Package httpapi exposes the gated triggers and read-only views over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"GradScrape/internal/domain"
)

// Puller is the ingestion side the API drives.
type Puller interface {
	StartPull(trigger domain.Trigger) domain.TriggerStatus
	LastRun() (domain.IngestionRun, bool)
	Busy() bool
}

// Analyzer is the aggregation side the API drives.
type Analyzer interface {
	Refresh(ctx context.Context) (domain.RefreshResult, error)
	Latest() (domain.Aggregates, bool)
}

// Pinger reports store reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers to use cases.
type Deps struct {
	Ingestion Puller
	Analysis  Analyzer
	Store     Pinger
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Handler serves the API routes.
type Handler struct {
	ingestion Puller
	analysis  Analyzer
	store     Pinger
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewHandler registers every route on a fresh ServeMux.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		ingestion: deps.Ingestion,
		analysis:  deps.Analysis,
		store:     deps.Store,
		gatherer:  deps.Gatherer,
		logger:    deps.Logger,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /pull_data", h.pullData)
	h.mux.HandleFunc("POST /update_analysis", h.updateAnalysis)
	h.mux.HandleFunc("GET /analysis", h.analysisView)
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("GET /health", h.health)
	if h.gatherer != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type busyResponse struct {
	Busy bool `json:"busy"`
}

type statusResponse struct {
	Status domain.TriggerStatus `json:"status"`
}

type analysisResponse struct {
	Busy    bool               `json:"busy"`
	Summary *domain.Aggregates `json:"summary"`
}

type runResponse struct {
	Busy    bool                 `json:"busy"`
	LastRun *domain.IngestionRun `json:"last_run"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) pullData(w http.ResponseWriter, _ *http.Request) {
	if h.ingestion.StartPull(domain.TriggerHTTP) == domain.StatusBusy {
		h.writeJSON(w, http.StatusConflict, busyResponse{Busy: true})
		return
	}
	h.writeJSON(w, http.StatusAccepted, statusResponse{Status: domain.StatusStarted})
}

func (h *Handler) updateAnalysis(w http.ResponseWriter, r *http.Request) {
	result, err := h.analysis.Refresh(r.Context())
	switch {
	case errors.Is(err, domain.ErrGateBusy) || (err == nil && result.Status == domain.StatusBusy):
		h.writeJSON(w, http.StatusConflict, busyResponse{Busy: true})
	case err != nil:
		h.logError("analysis refresh failed", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handler) analysisView(w http.ResponseWriter, _ *http.Request) {
	resp := analysisResponse{Busy: h.ingestion.Busy()}
	if summary, ok := h.analysis.Latest(); ok {
		resp.Summary = &summary
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := runResponse{Busy: h.ingestion.Busy()}
	if run, ok := h.ingestion.LastRun(); ok {
		resp.LastRun = &run
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		if h.logger != nil {
			h.logger.Warn("health check failed", "error", err)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(err.Error())); err != nil {
			h.logError("write health response", err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logError("encode response", err)
	}
}

func (h *Handler) logError(msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, "error", err)
	}
}
