package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"diagnosys-poller/internal/domain"
	"diagnosys-poller/internal/report"
)

// ReportHistory is implemented by *history.Store.
type ReportHistory interface {
	Recent(ctx context.Context, asset domain.AssetID, limit int) ([]report.Report, error)
}

func RegisterRoutes(router *mux.Router, h *Handler) http.Handler {
	// Observability APIs
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	router.HandleFunc("/reports/{asset}", h.GetReports).Methods(http.MethodGet)
	router.HandleFunc("/metrics/snapshot", h.GetMetricsSnapshot).Methods(http.MethodGet)
	router.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)

	// Middlewares
	return Chain(
		router,
		RecoveryMiddleware(h.logger),
		LoggingMiddleware(h.logger),
	)
}
