package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bookswap/internal/apperr"
	"bookswap/internal/journal"
	"bookswap/internal/storage"

	"github.com/google/uuid"
)

const bookColumns = `id, title, author, available, owner_id, created_at`

// Repository is the SQL access to books. Every method runs on the Querier it
// is given, so the exchange coordinator can compose them into one transaction.
type Repository struct {
	journal *journal.Journal
}

func NewRepository(j *journal.Journal) *Repository {
	return &Repository{journal: j}
}

// Exists reports whether a book with the given code is stored.
func (r *Repository) Exists(ctx context.Context, q storage.Querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM books WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check book id: %w", err)
	}
	return true, nil
}

// Insert stores a new book and journals BookAdded.
func (r *Repository) Insert(ctx context.Context, q storage.Querier, book *Book) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, book.ID, book.Title, book.Author, book.Available, book.OwnerID, book.CreatedAt)
	if err != nil {
		return err
	}

	event, err := journal.NewEvent("BookAdded", BookAddedEvent{
		ID:      book.ID,
		Title:   book.Title,
		Author:  book.Author,
		OwnerID: book.OwnerID,
	})
	if err != nil {
		return err
	}
	if err := r.journal.Append(ctx, q, book.ID, AggregateType, 0, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Get loads a book, failing with apperr.ErrNotFound.
func (r *Repository) Get(ctx context.Context, q storage.Querier, id string) (*Book, error) {
	book := &Book{}
	err := q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id).Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Available,
		&book.OwnerID,
		&book.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("book %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// ListAvailable returns every available book across owners.
func (r *Repository) ListAvailable(ctx context.Context, q storage.Querier) ([]*Book, error) {
	return r.list(ctx, q, `SELECT `+bookColumns+` FROM books WHERE available = ? ORDER BY created_at, id`, true)
}

// ListOwnedBy returns all books of owner regardless of availability.
func (r *Repository) ListOwnedBy(ctx context.Context, q storage.Querier, owner uuid.UUID) ([]*Book, error) {
	return r.list(ctx, q, `SELECT `+bookColumns+` FROM books WHERE owner_id = ? ORDER BY created_at, id`, owner)
}

// ListAvailableOwnedBy returns the books owner can still offer.
func (r *Repository) ListAvailableOwnedBy(ctx context.Context, q storage.Querier, owner uuid.UUID) ([]*Book, error) {
	return r.list(ctx, q, `SELECT `+bookColumns+` FROM books WHERE owner_id = ? AND available = ? ORDER BY created_at, id`, owner, true)
}

// MarkUnavailable clears the available flag. It is idempotent; changed
// reports whether this call flipped the flag.
func (r *Repository) MarkUnavailable(ctx context.Context, q storage.Querier, id string) (changed bool, err error) {
	res, err := q.ExecContext(ctx, `UPDATE books SET available = ? WHERE id = ? AND available = ?`, false, id, true)
	if err != nil {
		return false, fmt.Errorf("mark book unavailable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark book unavailable: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, q, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, r.journalUnavailable(ctx, q, id)
}

// Lock takes row locks on the given books in id order, so transactions that
// write the same pair of books never wait on each other in a cycle. SQLite
// transactions already hold the database write lock, so there it is a no-op.
func (r *Repository) Lock(ctx context.Context, tx *storage.Tx, ids ...string) error {
	if tx.Dialect() != storage.Postgres || len(ids) == 0 {
		return nil
	}
	args := sortedArgs(ids)
	rows, err := tx.QueryContext(ctx, lockQuery(len(args)), args...)
	if err != nil {
		return fmt.Errorf("lock books: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock books: %w", err)
	}
	return nil
}

func lockQuery(n int) string {
	return `SELECT id FROM books WHERE id IN (` +
		strings.TrimSuffix(strings.Repeat("?, ", n), ", ") +
		`) ORDER BY id FOR UPDATE`
}

func sortedArgs(ids []string) []any {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	args := make([]any, len(sorted))
	for i, id := range sorted {
		args[i] = id
	}
	return args
}

// Reserve clears the available flag only if owner owns the book and it is
// still available at write time. A concurrent writer that got there first
// makes Reserve fail with apperr.ErrConflict.
func (r *Repository) Reserve(ctx context.Context, q storage.Querier, id string, owner uuid.UUID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE books SET available = ?
		WHERE id = ? AND owner_id = ? AND available = ?
	`, false, id, owner, true)
	if err != nil {
		return fmt.Errorf("reserve book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve book: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %s was taken by a concurrent exchange: %w", id, apperr.ErrConflict)
	}
	return r.journalUnavailable(ctx, q, id)
}

func (r *Repository) journalUnavailable(ctx context.Context, q storage.Querier, id string) error {
	event, err := journal.NewEvent("BookMarkedUnavailable", BookMarkedUnavailableEvent{ID: id})
	if err != nil {
		return err
	}
	// The row update above serializes writers of this book until commit.
	if err := r.journal.AppendNext(ctx, q, id, AggregateType, event); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *Repository) list(ctx context.Context, q storage.Querier, query string, args ...any) ([]*Book, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]*Book, 0)
	for rows.Next() {
		book := &Book{}
		if err := rows.Scan(&book.ID, &book.Title, &book.Author, &book.Available, &book.OwnerID, &book.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func newBook(id string, owner uuid.UUID, title, author string) *Book {
	return &Book{
		ID:        id,
		Title:     title,
		Author:    author,
		Available: true,
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
	}
}
