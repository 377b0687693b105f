package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/mintemp-dashboard/internal/dashboard"
	"github.com/kjstillabower/mintemp-dashboard/internal/forecast"
	"github.com/kjstillabower/mintemp-dashboard/internal/locations"
	"github.com/kjstillabower/mintemp-dashboard/internal/models"
	"github.com/kjstillabower/mintemp-dashboard/internal/observability"
	"github.com/kjstillabower/mintemp-dashboard/internal/series"
	"github.com/kjstillabower/mintemp-dashboard/internal/validation"
)

type queryRequest struct {
	City      string `json:"city" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Unit      string `json:"unit"`
}

type queryResponse struct {
	SessionID   string                `json:"sessionId"`
	City        string                `json:"city"`
	StartDate   string                `json:"startDate"`
	EndDate     string                `json:"endDate"`
	Unit        models.Unit           `json:"unit"`
	Coordinates dashboard.Coordinates `json:"coordinates"`
}

type forecastConfigRequest struct {
	Trend        string `json:"trend"`
	HorizonYears int    `json:"horizon_years" validate:"min=1,max=5"`
}

type pointJSON struct {
	Date           string   `json:"date"`
	TemperatureMin *float64 `json:"temperatureMin"`
}

type rollingJSON struct {
	Window int        `json:"window"`
	Values []*float64 `json:"values"`
}

type extentsJSON struct {
	XMin string  `json:"xMin"`
	XMax string  `json:"xMax"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
}

type historyResponse struct {
	Unit      models.Unit   `json:"unit"`
	Symbol    string        `json:"symbol"`
	Threshold float64       `json:"threshold"`
	AtOrAbove []pointJSON   `json:"atOrAbove"`
	Below     []pointJSON   `json:"below"`
	Dates     []string      `json:"dates"`
	Rolling   []rollingJSON `json:"rolling"`
	Extents   *extentsJSON  `json:"extents"`
}

type forecastPointJSON struct {
	Date          string  `json:"date"`
	PointEstimate float64 `json:"pointEstimate"`
	LowerBound    float64 `json:"lowerBound"`
	UpperBound    float64 `json:"upperBound"`
}

type forecastResponse struct {
	Unit       models.Unit         `json:"unit"`
	Symbol     string              `json:"symbol"`
	Threshold  float64             `json:"threshold"`
	Eligible   bool                `json:"eligible"`
	Trend      string              `json:"trend"`
	Horizon    int                 `json:"horizonYears"`
	Confidence float64             `json:"confidence"`
	Points     []forecastPointJSON `json:"points"`
}

type forecastTableResponse struct {
	models.ThresholdTable
	Eligible bool `json:"eligible"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	observability.LoggerFromContext(r.Context()).Info("session created", zap.String("session_id", s.ID))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":        s.ID,
		"createdAt": s.Created.UTC().Format(time.RFC3339),
	})
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.sessions.Delete(id) {
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "unknown session "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutQuery handles PUT /sessions/{id}/query. The fetch runs in the request;
// a failure is stored on the session and answered with 502.
func (h *Handler) PutQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body queryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	q, err := h.parseQuery(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	err = s.ApplyQuery(r.Context(), q)
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrSuperseded):
		writeError(w, r, http.StatusConflict, "SUPERSEDED", err.Error())
		return
	case errors.Is(err, locations.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", err.Error())
		return
	case errors.Is(err, series.ErrMalformedResponse):
		writeError(w, r, http.StatusBadGateway, "MALFORMED_RESPONSE", err.Error())
		return
	default:
		writeError(w, r, http.StatusBadGateway, "FETCH_FAILED", err.Error())
		return
	}

	coords, err := s.Coordinates()
	if err != nil {
		writeViewError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		SessionID:   s.ID,
		City:        q.City,
		StartDate:   q.StartDate.Format(models.DateLayout),
		EndDate:     q.EndDate.Format(models.DateLayout),
		Unit:        q.Unit,
		Coordinates: coords,
	})
}

// parseQuery validates the body against the configured date window.
func (h *Handler) parseQuery(body queryRequest) (dashboard.Query, error) {
	if err := validation.Struct(body); err != nil {
		return dashboard.Query{}, err
	}
	city, err := validation.ValidateCityKey(body.City, maxCityLength)
	if err != nil {
		return dashboard.Query{}, err
	}
	unit, err := models.ParseUnit(body.Unit)
	if err != nil {
		return dashboard.Query{}, err
	}
	start, _ := time.Parse(models.DateLayout, body.StartDate)
	end, _ := time.Parse(models.DateLayout, body.EndDate)
	if !end.After(start) {
		return dashboard.Query{}, fmt.Errorf("end_date %s must be after start_date %s", body.EndDate, body.StartDate)
	}
	dc := h.dashboardConfig
	if !dc.DateMin.IsZero() && start.Before(dc.DateMin) {
		return dashboard.Query{}, fmt.Errorf("start_date must be on or after %s", dc.DateMin.Format(models.DateLayout))
	}
	if !dc.DateMax.IsZero() && end.After(dc.DateMax) {
		return dashboard.Query{}, fmt.Errorf("end_date must be on or before %s", dc.DateMax.Format(models.DateLayout))
	}
	return dashboard.Query{City: city, StartDate: start, EndDate: end, Unit: unit}, nil
}

// PutForecastConfig handles PUT /sessions/{id}/forecast-config.
func (h *Handler) PutForecastConfig(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var body forecastConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	if err := validation.Struct(body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORECAST_CONFIG", err.Error())
		return
	}
	trend, err := forecast.ParseTrend(body.Trend)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORECAST_CONFIG", err.Error())
		return
	}
	if err := s.SetForecastConfig(trend, body.HorizonYears); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORECAST_CONFIG", err.Error())
		return
	}
	cfg := s.ForecastConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trend":        cfg.Trend,
		"horizonYears": cfg.HorizonYears,
		"confidence":   cfg.Confidence,
	})
}

// GetHistory handles GET /sessions/{id}/history?threshold=&rolling=7,30.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	controls := models.ControlsFor(s.Unit())
	threshold, err := thresholdParam(r, controls)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	windows, err := windowsParam(r, "rolling")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	view, err := s.Historical(threshold, windows)
	if err != nil {
		writeViewError(w, r, err)
		return
	}

	resp := historyResponse{
		Unit:      view.Unit,
		Symbol:    view.Unit.Symbol(),
		Threshold: view.Threshold,
		AtOrAbove: pointsJSON(view.AtOrAbove),
		Below:     pointsJSON(view.Below),
		Dates:     make([]string, len(view.Points)),
		Rolling:   make([]rollingJSON, 0, len(view.Rolling)),
	}
	for i, p := range view.Points {
		resp.Dates[i] = p.Date.Format(models.DateLayout)
	}
	for _, rm := range view.Rolling {
		resp.Rolling = append(resp.Rolling, rollingJSON{Window: rm.Window, Values: models.NullableFloats(rm.Values)})
	}
	if view.HasExtent {
		resp.Extents = &extentsJSON{
			XMin: view.Extents.XMin.Format(models.DateLayout),
			XMax: view.Extents.XMax.Format(models.DateLayout),
			YMin: view.Extents.YMin,
			YMax: view.Extents.YMax,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistoryThresholds handles GET /sessions/{id}/history/thresholds?low=&high=.
func (h *Handler) GetHistoryThresholds(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	low, high, err := rangeParams(r, models.ControlsFor(s.Unit()))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	table, err := s.HistoricalTable(low, high)
	if err != nil {
		writeViewError(w, r, err)
		return
	}
	if table.Rows == nil {
		table.Rows = []models.ThresholdRow{}
	}
	writeJSON(w, http.StatusOK, table)
}

// GetForecast handles GET /sessions/{id}/forecast?threshold=.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	controls := models.ControlsFor(s.Unit())
	threshold, err := thresholdParam(r, controls)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	view, err := s.Forecast(r.Context(), threshold)
	if err != nil {
		writeViewError(w, r, err)
		return
	}
	resp := forecastResponse{
		Unit:       view.Unit,
		Symbol:     view.Unit.Symbol(),
		Threshold:  view.Threshold,
		Eligible:   view.Eligible,
		Trend:      view.Series.Trend,
		Horizon:    view.Series.Horizon,
		Confidence: view.Series.Confidence,
		Points:     make([]forecastPointJSON, len(view.Series.Points)),
	}
	for i, p := range view.Series.Points {
		resp.Points[i] = forecastPointJSON{
			Date:          p.Date.Format(models.DateLayout),
			PointEstimate: p.PointEstimate,
			LowerBound:    p.LowerBound,
			UpperBound:    p.UpperBound,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetForecastThresholds handles GET /sessions/{id}/forecast/thresholds?low=&high=.
func (h *Handler) GetForecastThresholds(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	low, high, err := rangeParams(r, models.ControlsFor(s.Unit()))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	table, eligible, err := s.ForecastTable(r.Context(), low, high)
	if err != nil {
		writeViewError(w, r, err)
		return
	}
	if table.Rows == nil {
		table.Rows = []models.ThresholdRow{}
	}
	writeJSON(w, http.StatusOK, forecastTableResponse{ThresholdTable: table, Eligible: eligible})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	id := mux.Vars(r)["id"]
	s, ok := h.sessions.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "unknown session "+id)
		return nil, false
	}
	return s, true
}

func pointsJSON(points []models.DailyPoint) []pointJSON {
	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointJSON{Date: p.Date.Format(models.DateLayout), TemperatureMin: models.Nullable(p.TemperatureMin)}
	}
	return out
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a finite number", name)
	}
	return v, nil
}

// thresholdParam reads threshold within the unit's slider bounds.
func thresholdParam(r *http.Request, controls models.Controls) (float64, error) {
	p := controls.Threshold
	v, err := floatParam(r, "threshold", float64(p.Default))
	if err != nil {
		return 0, err
	}
	if v < float64(p.Min) || v > float64(p.Max) {
		return 0, fmt.Errorf("threshold must be between %d and %d", p.Min, p.Max)
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

// rangeParams reads low/high, defaulting to the unit's table range. Both
// must lie within the range slider bounds.
func rangeParams(r *http.Request, controls models.Controls) (low, high int, err error) {
	p := controls.Table
	if low, err = intParam(r, "low", p.DefaultLow); err != nil {
		return 0, 0, err
	}
	if high, err = intParam(r, "high", p.DefaultHigh); err != nil {
		return 0, 0, err
	}
	for _, v := range []int{low, high} {
		if v < p.Min || v > p.Max {
			return 0, 0, fmt.Errorf("low and high must be between %d and %d", p.Min, p.Max)
		}
	}
	return low, high, nil
}

// windowsParam parses a comma-separated list of positive window sizes.
func windowsParam(r *http.Request, name string) ([]int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%s must be a list of positive integers", name)
		}
		out = append(out, v)
	}
	return out, nil
}
