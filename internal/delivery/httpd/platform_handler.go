package httpd

import (
	"net/http"
	"time"
)

func (h *Handler) GetThrottleState(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.refetchService.GetThrottleState())
}

// GetPlatformHealth reports attempt outcomes per platform over the last
// `hours` hours.
func (h *Handler) GetPlatformHealth(w http.ResponseWriter, r *http.Request) {
	hours := getIntQueryParam(r, "hours", 0)
	if hours < 0 {
		writeError(w, http.StatusBadRequest, "hours must be positive")
		return
	}

	health, err := h.refetchService.GetPlatformHealth(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, health)
}
