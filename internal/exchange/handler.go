package exchange

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

// Propose handles POST /books/{id}/propose.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}

	proposal, err := h.service.Propose(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, proposal)
}

// Confirm handles POST /notifications/{id}/confirm.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	confirmation, err := h.service.Confirm(r.Context(), userID, chi.URLParam(r, "id"), req.OfferedBookID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, confirmation)
}

// OfferableBooks handles GET /notifications/{id}/books.
func (h *Handler) OfferableBooks(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}

	books, err := h.service.OfferableBooks(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Get handles GET /notifications/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}

	negotiation, err := h.service.Negotiation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, negotiation)
}
