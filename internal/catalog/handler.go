package catalog

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

// ListAvailable handles GET /books.
func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListAvailable(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Get handles GET /books/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.GetBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, book)
}

// ListMine handles GET /me/books.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}
	books, err := h.service.ListOwnedBy(r.Context(), userID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Add handles POST /books.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.CurrentUser(w, r)
	if !ok {
		return
	}

	var req AddBookRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), userID, req.Title, req.Author)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, book)
}
