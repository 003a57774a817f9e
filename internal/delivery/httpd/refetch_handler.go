package httpd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/algolog/stats-service/internal/models"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) RefetchOne(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")

	resp, err := h.refetchService.RefetchOne(r.Context(), studentID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefetchAll accepts an optional filter body. An empty body means the whole
// roster.
func (h *Handler) RefetchAll(w http.ResponseWriter, r *http.Request) {
	var req models.RefetchAllRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	resp, err := h.refetchService.RefetchAll(r.Context(), req.Filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	limit := getIntQueryParam(r, "limit", 0)

	attempts, err := h.refetchService.GetAttempts(r.Context(), studentID, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeSuccess(w, attempts)
}
