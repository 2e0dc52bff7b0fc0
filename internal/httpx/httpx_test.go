package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookswap/internal/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

type stubVerifier struct {
	id  uuid.UUID
	err error
}

func (s stubVerifier) Verify(string) (uuid.UUID, error) { return s.id, s.err }

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusOf(fmt.Errorf("x: %w", apperr.ErrValidation)))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("x: %w", apperr.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("x: %w", apperr.ErrUnavailable)))
	assert.Equal(t, http.StatusConflict, StatusOf(fmt.Errorf("x: %w", apperr.ErrConflict)))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(apperr.ErrUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestError_HidesInternalMessages(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)
	assert.Equal(t, "internal", body.Code)
}

func TestError_KeepsDomainMessages(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, fmt.Errorf("book ZZZZZ: %w", apperr.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Contains(t, body.Error, "ZZZZZ")
	assert.Equal(t, "not_found", body.Code)
}

type addBook struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
}

func TestDecode(t *testing.T) {
	var ok addBook
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"title":"Dune","author":"Herbert"}`))
	require.NoError(t, Decode(r, &ok))
	assert.Equal(t, "Dune", ok.Title)

	var missing addBook
	r = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"title":"Dune"}`))
	err := Decode(r, &missing)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Author")

	var garbage addBook
	r = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("not-json"))
	assert.ErrorIs(t, Decode(r, &garbage), apperr.ErrValidation)
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Authenticate(stubVerifier{id: uuid.New()})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticate_BadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()
	Authenticate(stubVerifier{err: apperr.ErrUnauthorized})(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticate_InjectsUserID(t *testing.T) {
	want := uuid.New()
	var got uuid.UUID
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	Authenticate(stubVerifier{id: want})(capture).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, want, got)
}

func TestCurrentUser_NoSession(t *testing.T) {
	rr := httptest.NewRecorder()
	_, ok := CurrentUser(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-Ip", "9.10.11.12")
	assert.Equal(t, "192.168.1.1", clientIP(req), "client supplied headers are ignored")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-a-host-port"
	assert.Equal(t, "not-a-host-port", clientIP(req))
}

func TestRateLimiter_IgnoresForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(0.001), 1)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for _, fwd := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", fwd)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(0.001), 2)
	h := rl.Limit(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusOK, rr.Code)
}
