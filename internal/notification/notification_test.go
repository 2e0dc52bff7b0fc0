package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/internal/apperr"
	"bookswap/internal/httpx"
	"bookswap/internal/storage"
	"bookswap/internal/storage/storagetest"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db    *storage.DB
	svc   Service
	alice uuid.UUID
	bob   uuid.UUID
	book  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.New(t)
	f := &fixture{
		db:    db,
		svc:   NewService(db),
		alice: storagetest.CreateUser(t, db, "alice"),
		bob:   storagetest.CreateUser(t, db, "bob"),
		book:  "DUNE1",
	}
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO books (id, title, author, available, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.book, "Dune", "Frank Herbert", true, f.alice, time.Now().UTC())
	require.NoError(t, err)
	return f
}

func (f *fixture) proposal(t *testing.T, msg string) *Notification {
	t.Helper()
	n, err := f.svc.Record(context.Background(), &Notification{
		Kind:        KindProposal,
		RecipientID: f.alice,
		ProposerID:  f.bob,
		BookID:      f.book,
		Message:     msg,
	})
	require.NoError(t, err)
	return n
}

func TestRecordAndUnreadFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.proposal(t, "first")
	second := f.proposal(t, "second")
	third := f.proposal(t, "third")
	assert.False(t, first.IsRead)
	assert.NotEmpty(t, first.ID)

	unread, err := f.svc.UnreadFor(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID},
		[]string{unread[0].ID, unread[1].ID, unread[2].ID})
	assert.Equal(t, f.bob, unread[0].ProposerID)
	assert.Equal(t, f.book, unread[0].BookID)
	assert.Empty(t, unread[0].ReplyTo)

	none, err := f.svc.UnreadFor(ctx, f.bob)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecord_UnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(context.Background(), &Notification{Kind: "gossip", RecipientID: f.alice, ProposerID: f.bob, BookID: f.book})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMarkRead_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.proposal(t, "hello")

	require.NoError(t, f.svc.MarkRead(ctx, n.ID))
	require.NoError(t, f.svc.MarkRead(ctx, n.ID))

	got, err := f.svc.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	unread, err := f.svc.UnreadFor(ctx, f.alice)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, "missing"), apperr.ErrNotFound)
}

func TestMarkReadFor_OnlyRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.proposal(t, "hello")

	assert.ErrorIs(t, f.svc.MarkReadFor(ctx, f.bob, n.ID), apperr.ErrNotFound)
	require.NoError(t, f.svc.MarkReadFor(ctx, f.alice, n.ID))
}

func TestReplyIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.proposal(t, "hello")

	reply := func() error {
		_, err := f.svc.Record(ctx, &Notification{
			Kind:          KindConfirmation,
			RecipientID:   f.bob,
			ProposerID:    f.alice,
			BookID:        f.book,
			OfferedBookID: f.book,
			ReplyTo:       p.ID,
			Message:       "deal",
		})
		return err
	}
	require.NoError(t, reply())
	assert.ErrorIs(t, reply(), apperr.ErrConflict)

	repo := NewRepository()
	got, err := repo.ReplyTo(ctx, f.db, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindConfirmation, got.Kind)
	assert.Equal(t, p.ID, got.ReplyTo)

	none, err := repo.ReplyTo(ctx, f.db, got.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestHandler_ListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	n := f.proposal(t, "hello")
	h := NewHandler(f.svc)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req = req.WithContext(httpx.WithUserID(req.Context(), f.alice))
	rec := httptest.NewRecorder()
	h.ListUnread(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []Notification
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, n.ID, list[0].ID)

	markRead := func(user uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/notifications/"+n.ID+"/read", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", n.ID)
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
		req = req.WithContext(httpx.WithUserID(ctx, user))
		rec := httptest.NewRecorder()
		h.MarkRead(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNotFound, markRead(f.bob))
	assert.Equal(t, http.StatusNoContent, markRead(f.alice))
	assert.Equal(t, http.StatusNoContent, markRead(f.alice))
}
