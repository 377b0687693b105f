package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/dashboard"
	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	"github.com/kjstillabower/mintemp-dashboard/internal/lifecycle"
	"github.com/kjstillabower/mintemp-dashboard/internal/locations"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/traffic"
)

// maxCityLength bounds the "City, State" key accepted from clients.
const maxCityLength = 100

// HealthConfig holds the degraded thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinFetches int
	// CachePing, when set, is called to check cache reachability.
	CachePing func() error
}

// DashboardConfig holds the query window and defaults served to clients.
// Query dates must fall within DateMin..DateMax.
type DashboardConfig struct {
	DateMin          time.Time
	DateMax          time.Time
	DefaultStartDate time.Time
	DefaultEndDate   time.Time
	DefaultCity      string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions         *dashboard.Store
	cities           *locations.Table
	healthConfig     *HealthConfig
	dashboardConfig  DashboardConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	sessions *dashboard.Store,
	cities *locations.Table,
	healthConfig *HealthConfig,
	dashboardConfig DashboardConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessions:        sessions,
		cities:          cities,
		healthConfig:    healthConfig,
		dashboardConfig: dashboardConfig,
		logger:          logger,
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"archiveApi": "healthy"}
	if result.reason == "error_rate_breach" {
		checks["archiveApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":        result.status,
		"service":       "mintemp-dashboard",
		"version":       "dev",
		"checks":        checks,
		"sessions":      h.sessions.Len(),
		"uptimeSeconds": int64(lifecycle.Uptime().Seconds()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if since, ok := lifecycle.DrainingSince(); ok {
		resp["drainingSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates shutting-down, then the archive error rate.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil || h.healthConfig.DegradedWindow <= 0 || h.healthConfig.DegradedErrorPct <= 0 {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if traffic.Degraded(h.healthConfig.DegradedWindow, float64(h.healthConfig.DegradedErrorPct)/100, h.healthConfig.DegradedMinFetches) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

type dateWindow struct {
	Min          string `json:"min"`
	Max          string `json:"max"`
	DefaultStart string `json:"defaultStart"`
	DefaultEnd   string `json:"defaultEnd"`
}

type controlsResponse struct {
	models.Controls
	Dates        dateWindow `json:"dates"`
	DefaultCity  string     `json:"defaultCity"`
	DefaultTrend string     `json:"defaultTrend"`
}

// GetControls handles GET /controls?unit=.
func (h *Handler) GetControls(w http.ResponseWriter, r *http.Request) {
	unit, err := models.ParseUnit(r.URL.Query().Get("unit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UNIT", err.Error())
		return
	}
	dc := h.dashboardConfig
	writeJSON(w, http.StatusOK, controlsResponse{
		Controls: models.ControlsFor(unit),
		Dates: dateWindow{
			Min:          dc.DateMin.Format(models.DateLayout),
			Max:          dc.DateMax.Format(models.DateLayout),
			DefaultStart: dc.DefaultStartDate.Format(models.DateLayout),
			DefaultEnd:   dc.DefaultEndDate.Format(models.DateLayout),
		},
		DefaultCity:  dc.DefaultCity,
		DefaultTrend: string(forecast.Flat),
	})
}

// ListCities handles GET /cities.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cities": h.cities.Keys(),
	})
}

// GetCity handles GET /cities/{city}.
func (h *Handler) GetCity(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(mux.Vars(r)["city"])
	rec, err := h.cities.Record(city)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeViewError maps a session view failure to a response. The stored
// fetch error and the missing history are conflicts with session state.
func writeViewError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dashboard.ErrFetchFailed):
		writeError(w, r, http.StatusConflict, "FETCH_FAILED", err.Error())
	case errors.Is(err, dashboard.ErrNoData):
		writeError(w, r, http.StatusConflict, "NO_DATA", "no history loaded; apply a query first")
	case errors.Is(err, forecast.ErrMalformedForecast):
		observability.LoggerFromContext(r.Context()).Error("malformed forecast", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "MALFORMED_FORECAST", "forecast failed")
	default:
		writeContextOrInternal(w, r, err)
	}
}

func writeContextOrInternal(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
		return
	}
	observability.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
}
