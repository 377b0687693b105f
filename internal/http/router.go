package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
)

// NewRouter wires the dashboard API. Session routes are rate limited and
// carry the request timeout; health, metrics and lookups are not.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/controls", h.GetControls).Methods(http.MethodGet)
	router.HandleFunc("/cities", h.ListCities).Methods(http.MethodGet)
	router.HandleFunc("/cities/{city}", h.GetCity).Methods(http.MethodGet)

	sessions := router.PathPrefix("/sessions").Subrouter()
	sessions.Use(RateLimitMiddleware(limiter))
	if requestTimeout > 0 {
		sessions.Use(TimeoutMiddleware(requestTimeout))
	}
	sessions.HandleFunc("", h.CreateSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}", h.DeleteSession).Methods(http.MethodDelete)
	sessions.HandleFunc("/{id}/query", h.PutQuery).Methods(http.MethodPut)
	sessions.HandleFunc("/{id}/forecast-config", h.PutForecastConfig).Methods(http.MethodPut)
	sessions.HandleFunc("/{id}/history", h.GetHistory).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/history/thresholds", h.GetHistoryThresholds).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/forecast", h.GetForecast).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/forecast/thresholds", h.GetForecastThresholds).Methods(http.MethodGet)
	return router
}
