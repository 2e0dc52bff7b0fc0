package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookswap/internal/apperr"
	"bookswap/internal/httpx"
	"bookswap/internal/journal"
	"bookswap/internal/storage"
	"bookswap/internal/storage/storagetest"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func setup(t *testing.T) (*storage.DB, *journal.Journal, Service) {
	t.Helper()
	db := storagetest.New(t)
	j := journal.New(db)
	return db, j, NewService(db, j)
}

func TestNewBookID_Shape(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id, err := NewBookID()
		if err != nil {
			t.Fatalf("NewBookID: %v", err)
		}
		if len(id) != idLength {
			t.Fatalf("id %q has length %d", id, len(id))
		}
		for _, c := range id {
			if !strings.ContainsRune(idAlphabet, c) {
				t.Fatalf("id %q contains %q", id, c)
			}
		}
	})
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "AB12C", NormalizeID(" ab12c "))
}

func TestAddBook(t *testing.T) {
	db, j, svc := setup(t)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, db, "alice")

	book, err := svc.AddBook(ctx, owner, "  Dune ", "Frank Herbert")
	require.NoError(t, err)
	assert.Len(t, book.ID, idLength)
	assert.Equal(t, "Dune", book.Title)
	assert.True(t, book.Available)
	assert.Equal(t, owner, book.OwnerID)

	got, err := svc.GetBook(ctx, strings.ToLower(book.ID))
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)
	assert.Equal(t, "Frank Herbert", got.Author)
	assert.True(t, got.Available)

	version, err := j.CurrentVersion(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestAddBook_Validation(t *testing.T) {
	db, _, svc := setup(t)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, db, "alice")

	cases := []struct {
		name          string
		title, author string
	}{
		{"empty title", "", "Someone"},
		{"blank author", "Title", "   "},
		{"long title", strings.Repeat("x", 101), "Someone"},
		{"long author", "Title", strings.Repeat("y", 101)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddBook(ctx, owner, tc.title, tc.author)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	book, err := svc.AddBook(ctx, owner, strings.Repeat("é", 100), "A")
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(book.Title)))
}

func TestAddBook_RegeneratesOnCollision(t *testing.T) {
	db := storagetest.New(t)
	j := journal.New(db)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, db, "alice")

	ids := []string{"AAAAA", "AAAAA", "AAAAA", "BBBBB"}
	gen := func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	svc := newService(db, NewRepository(j), gen)

	first, err := svc.AddBook(ctx, owner, "Dune", "Frank Herbert")
	require.NoError(t, err)
	assert.Equal(t, "AAAAA", first.ID)

	second, err := svc.AddBook(ctx, owner, "Hyperion", "Dan Simmons")
	require.NoError(t, err)
	assert.Equal(t, "BBBBB", second.ID)
	assert.Empty(t, ids)
}

func TestAddBook_GivesUpAfterMaxAttempts(t *testing.T) {
	db := storagetest.New(t)
	j := journal.New(db)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, db, "alice")

	svc := newService(db, NewRepository(j), func() (string, error) { return "AAAAA", nil })
	_, err := svc.AddBook(ctx, owner, "Dune", "Frank Herbert")
	require.NoError(t, err)

	_, err = svc.AddBook(ctx, owner, "Hyperion", "Dan Simmons")
	assert.Error(t, err)
}

func TestGetBook_NotFound(t *testing.T) {
	_, _, svc := setup(t)
	_, err := svc.GetBook(context.Background(), "ZZZZZ")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkUnavailable(t *testing.T) {
	db, j, svc := setup(t)
	ctx := context.Background()
	alice := storagetest.CreateUser(t, db, "alice")
	bob := storagetest.CreateUser(t, db, "bob")

	dune, err := svc.AddBook(ctx, alice, "Dune", "Frank Herbert")
	require.NoError(t, err)
	hyperion, err := svc.AddBook(ctx, bob, "Hyperion", "Dan Simmons")
	require.NoError(t, err)

	require.NoError(t, svc.MarkUnavailable(ctx, dune.ID))
	require.NoError(t, svc.MarkUnavailable(ctx, dune.ID), "marking twice succeeds")

	got, err := svc.GetBook(ctx, dune.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)

	version, err := j.CurrentVersion(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, version, "second mark does not journal")

	available, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, hyperion.ID, available[0].ID)

	owned, err := svc.ListOwnedBy(ctx, alice)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.False(t, owned[0].Available)

	assert.ErrorIs(t, svc.MarkUnavailable(ctx, "ZZZZZ"), apperr.ErrNotFound)
}

func TestRepository_Reserve(t *testing.T) {
	db, j, svc := setup(t)
	ctx := context.Background()
	alice := storagetest.CreateUser(t, db, "alice")
	bob := storagetest.CreateUser(t, db, "bob")
	repo := NewRepository(j)

	book, err := svc.AddBook(ctx, alice, "Dune", "Frank Herbert")
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *storage.Tx) error { return repo.Reserve(ctx, tx, book.ID, bob) })
	assert.ErrorIs(t, err, apperr.ErrConflict, "wrong owner")

	err = db.WithTx(ctx, func(tx *storage.Tx) error { return repo.Reserve(ctx, tx, book.ID, alice) })
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *storage.Tx) error { return repo.Reserve(ctx, tx, book.ID, alice) })
	assert.ErrorIs(t, err, apperr.ErrConflict, "already reserved")

	mine, err := repo.ListAvailableOwnedBy(ctx, db, alice)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestLockQuery(t *testing.T) {
	assert.Equal(t, "SELECT id FROM books WHERE id IN (?, ?) ORDER BY id FOR UPDATE", lockQuery(2))
	assert.Equal(t, []any{"AAAAA", "ZZZZZ"}, sortedArgs([]string{"ZZZZZ", "AAAAA", "ZZZZZ"}))
	assert.Equal(t, sortedArgs([]string{"B1234", "A1234"}), sortedArgs([]string{"A1234", "B1234"}),
		"lock order does not depend on argument order")
}

func TestRepository_LockOnSQLite(t *testing.T) {
	db, j, svc := setup(t)
	ctx := context.Background()
	alice := storagetest.CreateUser(t, db, "alice")
	repo := NewRepository(j)

	book, err := svc.AddBook(ctx, alice, "Dune", "Frank Herbert")
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := repo.Lock(ctx, tx, book.ID, "ZZZZZ"); err != nil {
			return err
		}
		return repo.Reserve(ctx, tx, book.ID, alice)
	})
	require.NoError(t, err)
}

func TestAvailabilityNeverComesBack(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		db, _, svc := setup(t)
		ctx := context.Background()
		owner := storagetest.CreateUser(t, db, "owner")

		n := rapid.IntRange(1, 4).Draw(rt, "books")
		ids := make([]string, n)
		for i := range ids {
			book, err := svc.AddBook(ctx, owner, "Title", "Author")
			if err != nil {
				rt.Fatalf("add: %v", err)
			}
			ids[i] = book.ID
		}

		unavailable := map[string]bool{}
		ops := rapid.SliceOfN(rapid.IntRange(0, n-1), 0, 10).Draw(rt, "marks")
		for _, i := range ops {
			if err := svc.MarkUnavailable(ctx, ids[i]); err != nil {
				rt.Fatalf("mark: %v", err)
			}
			unavailable[ids[i]] = true
			for _, id := range ids {
				book, err := svc.GetBook(ctx, id)
				if err != nil {
					rt.Fatalf("get: %v", err)
				}
				if unavailable[id] && book.Available {
					rt.Fatalf("book %s became available again", id)
				}
			}
		}
	})
}

func TestHandler_AddAndGet(t *testing.T) {
	db, _, svc := setup(t)
	owner := storagetest.CreateUser(t, db, "alice")
	h := NewHandler(svc)

	body, _ := json.Marshal(AddBookRequest{Title: "Dune", Author: "Frank Herbert"})
	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewReader(body))
	req = req.WithContext(httpx.WithUserID(req.Context(), owner))
	rec := httptest.NewRecorder()
	h.Add(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	req = httptest.NewRequest(http.MethodGet, "/books/"+created.ID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", created.ID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec = httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "Dune", got.Title)
}

func TestHandler_AddRequiresSession(t *testing.T) {
	_, _, svc := setup(t)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{"title":"Dune","author":"Frank Herbert"}`))
	rec := httptest.NewRecorder()
	h.Add(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_GetUnknown(t *testing.T) {
	_, _, svc := setup(t)
	h := NewHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/books/ZZZZZ", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "ZZZZZ")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env httpx.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "not_found", env.Code)
}

func TestHandler_ListMine(t *testing.T) {
	db, _, svc := setup(t)
	ctx := context.Background()
	alice := storagetest.CreateUser(t, db, "alice")
	bob := storagetest.CreateUser(t, db, "bob")
	_, err := svc.AddBook(ctx, alice, "Dune", "Frank Herbert")
	require.NoError(t, err)
	_, err = svc.AddBook(ctx, bob, "Hyperion", "Dan Simmons")
	require.NoError(t, err)

	h := NewHandler(svc)
	req := httptest.NewRequest(http.MethodGet, "/me/books", nil)
	req = req.WithContext(httpx.WithUserID(req.Context(), alice))
	rec := httptest.NewRecorder()
	h.ListMine(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var books []Book
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)
}
