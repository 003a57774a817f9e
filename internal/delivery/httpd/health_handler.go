package httpd

import (
	"net/http"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, err := h.refetchService.GetServiceStatus(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get service status")
		writeError(w, http.StatusInternalServerError, "Failed to get service status")
		return
	}

	code := http.StatusOK
	if !status.Database {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
