package membership

import (
	"net/http"

	"bookswap/internal/httpx"
)

type Handler struct {
	service  Service
	sessions *Sessions
}

func NewHandler(service Service, sessions *Sessions) *Handler {
	return &Handler{service: service, sessions: sessions}
}

// Register handles POST /users.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, user)
}

// Login handles POST /sessions.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	token, expiresAt, err := h.sessions.Issue(user.ID)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, SessionResponse{Token: token, ExpiresAt: expiresAt, User: user})
}
