package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"htmlpng/internal/httpkit"
	"htmlpng/internal/pkg/errors"
)

// ListRenders handles GET /api/renders?limit=N. It is only routed when a
// history backend is configured.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if s := strings.TrimSpace(r.URL.Query().Get("limit")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		limit = v
	}

	recs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		return errors.Wrap(err, "handlers.history", "failed to load render history")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"renders": recs})
	return nil
}
