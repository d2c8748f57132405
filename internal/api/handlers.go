package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/health"
	"diagnosys-poller/internal/logger"
	"diagnosys-poller/internal/metrics"
	"diagnosys-poller/internal/poller"
	"diagnosys-poller/internal/report"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 500
)

// StatusProvider is implemented by *poller.Orchestrator.
type StatusProvider interface {
	Status() poller.Status
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	metrics      *metrics.Registry
	analyzer     *health.Analyzer
	reporter     *report.Reporter
	tracker      *poller.EndpointTracker
	orchestrator []StatusProvider
	history      ReportHistory
	logger       *zap.SugaredLogger
}

// Deps wires the handler. History may be nil, reports are then served from
// the in-memory buffer.
type Deps struct {
	Metrics       *metrics.Registry
	Reporter      *report.Reporter
	Tracker       *poller.EndpointTracker
	Orchestrators []StatusProvider
	History       ReportHistory
	Logger        *zap.SugaredLogger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	var (
		reports   health.ReportSource
		endpoints health.EndpointSource
	)
	if deps.Reporter != nil {
		reports = deps.Reporter
	}
	if deps.Tracker != nil {
		endpoints = deps.Tracker
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	return &Handler{
		metrics:      deps.Metrics,
		analyzer:     health.NewAnalyzer(deps.Metrics, reports, endpoints),
		reporter:     deps.Reporter,
		tracker:      deps.Tracker,
		orchestrator: deps.Orchestrators,
		history:      deps.History,
		logger:       logger.OrNop(deps.Logger),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.analyzer.Analyze())
}

/* ---------------- GET /status ---------------- */

type statusResponse struct {
	Assets    []poller.Status          `json:"assets"`
	Endpoints []poller.Endpoint        `json:"endpoints"`
	Latest    map[string]report.Report `json:"latest"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Assets:    make([]poller.Status, 0, len(h.orchestrator)),
		Endpoints: []poller.Endpoint{},
		Latest:    map[string]report.Report{},
	}
	for _, o := range h.orchestrator {
		resp.Assets = append(resp.Assets, o.Status())
	}
	if h.tracker != nil {
		resp.Endpoints = h.tracker.Snapshot()
	}
	if h.reporter != nil {
		resp.Latest = h.reporter.Latest()
	}
	writeJSON(w, http.StatusOK, resp)
}

/* ---------------- GET /reports/{asset} ---------------- */

func (h *Handler) GetReports(w http.ResponseWriter, r *http.Request) {
	asset := domain.AssetID(mux.Vars(r)["asset"])

	limit := defaultReportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxReportLimit {
		limit = maxReportLimit
	}

	if h.history != nil {
		reports, err := h.history.Recent(r.Context(), asset, limit)
		if err != nil {
			h.logger.Errorw("History query failed", "asset", asset, "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, reports)
		return
	}

	out := []report.Report{}
	if h.reporter != nil {
		for _, rep := range h.reporter.GetLast(maxReportLimit) {
			if rep.Asset == asset {
				out = append(out, rep)
			}
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

/* ---------------- GET /metrics/snapshot ---------------- */

func (h *Handler) GetMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
