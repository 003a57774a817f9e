package httpd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/algolog/stats-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Handler struct {
	refetchService service.RefetchService
	logger         zerolog.Logger
}

func NewHandler(refetchService service.RefetchService, logger zerolog.Logger) *Handler {
	return &Handler{
		refetchService: refetchService,
		logger:         logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)

	router.Route("/api/v1", func(api chi.Router) {
		api.Post("/refetch", h.RefetchAll)

		api.Route("/students/{id}", func(r chi.Router) {
			r.Post("/refetch", h.RefetchOne)
			r.Get("/attempts", h.GetAttempts)
		})

		api.Route("/platforms", func(r chi.Router) {
			r.Get("/throttle", h.GetThrottleState)
			r.Get("/health", h.GetPlatformHealth)
		})
	})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// handleServiceError maps service errors onto status codes.
func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusServiceUnavailable, "Stats service temporarily unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	response := map[string]interface{}{
		"success": true,
		"data":    data,
	}
	writeJSON(w, http.StatusOK, response)
}
