package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rishirilab/weather-fusion-service/internal/service"
	"github.com/rishirilab/weather-fusion-service/internal/source"
	"github.com/rishirilab/weather-fusion-service/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	fusion            *service.FusionService
	adapters          []source.Adapter
	defaultMinQuality float64
	maxWindow         time.Duration
	// cachePing, when set, checks cache reachability for /health. Used when
	// the backend is memcached.
	cachePing func() error
	logger    *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(fusion *service.FusionService, adapters []source.Adapter, defaultMinQuality float64, maxWindow time.Duration, cachePing func() error, logger *zap.Logger) *Handler {
	return &Handler{
		fusion:            fusion,
		adapters:          adapters,
		defaultMinQuality: defaultMinQuality,
		maxWindow:         maxWindow,
		cachePing:         cachePing,
		logger:            logger,
	}
}

// Router builds the service router with the shared middleware chain.
func (h *Handler) Router(logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/fused-weather", h.GetFusedWeather).Methods(http.MethodGet)

	return r
}

// GetFusedWeather handles GET /v1/fused-weather?lat=&lon=&start=&end=&min_quality=.
// start/end are RFC3339; min_quality is optional and defaults from config.
func (h *Handler) GetFusedWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LATITUDE", "lat must be a number")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LONGITUDE", "lon must be a number")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_WINDOW", "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_WINDOW", "end must be RFC3339")
		return
	}
	minQuality := h.defaultMinQuality
	if raw := q.Get("min_quality"); raw != "" {
		minQuality, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_MIN_QUALITY", "min_quality must be a number")
			return
		}
	}

	if err := validation.ValidateRequest(lat, lon, start, end, minQuality, h.maxWindow); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	series, err := h.fusion.GetFusedWeather(r.Context(), lat, lon, start, end, minQuality)
	if err != nil {
		if errors.Is(err, service.ErrNoUsableData) {
			// The explicit no-data signal: empty series plus reason, never a
			// bare empty 200 that looks like a calm day.
			writeNoUsableData(w, r, err, series)
			return
		}
		if errors.Is(err, r.Context().Err()) {
			writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timed out")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// GetHealth handles GET /health. Degraded when no source adapter is
// available or the cache backend is unreachable.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	available := 0
	for _, a := range h.adapters {
		if a.Available() {
			available++
		}
	}

	checks := map[string]string{}
	status := "healthy"
	statusCode := http.StatusOK

	if available == 0 {
		checks["sources"] = "unhealthy"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["sources"] = "healthy"
	}

	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	resp := map[string]interface{}{
		"status":           status,
		"service":          "weather-fusion-service",
		"sourcesAvailable": available,
		"sourcesTotal":     len(h.adapters),
		"checks":           checks,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, statusCode, resp)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("request rejected",
			zap.Int("status", status),
			zap.String("code", code),
			zap.String("message", message))
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// writeNoUsableData returns 502 with the failure reason and whatever
// diagnostics the pipeline collected before giving up.
func writeNoUsableData(w http.ResponseWriter, r *http.Request, err error, series interface{}) {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Info("no usable data", zap.Error(err))
	}
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{
		"error":  errorBody{Code: "NO_USABLE_DATA", Message: err.Error()},
		"series": series,
	})
}
