package notification

import (
	"net/http"

	"bookswap/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ListUnread handles GET /notifications.
func (h *Handler) ListUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}
	list, err := h.service.UnreadFor(r.Context(), userID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkReadFor(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		httpx.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
