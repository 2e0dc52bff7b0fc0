package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"bookswap/internal/apperr"
	"bookswap/internal/journal"
	"bookswap/internal/storage"

	"github.com/google/uuid"
)

const (
	maxFieldLength = 100
	maxIDAttempts  = 8
)

var errIDTaken = errors.New("book id already taken")

// service implements the Service interface.
type service struct {
	db    *storage.DB
	repo  *Repository
	newID IDGenerator
}

// NewService creates a new catalog service instance.
func NewService(db *storage.DB, j *journal.Journal) Service {
	return newService(db, NewRepository(j), NewBookID)
}

func newService(db *storage.DB, repo *Repository, gen IDGenerator) *service {
	return &service{db: db, repo: repo, newID: gen}
}

// AddBook creates a new available book owned by owner under a fresh code.
func (s *service) AddBook(ctx context.Context, owner uuid.UUID, title, author string) (*Book, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if err := checkField("title", title); err != nil {
		return nil, err
	}
	if err := checkField("author", author); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}
		book := newBook(id, owner, title, author)

		err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
			taken, err := s.repo.Exists(ctx, tx, id)
			if err != nil {
				return err
			}
			if taken {
				return errIDTaken
			}
			if err := s.repo.Insert(ctx, tx, book); err != nil {
				if storage.IsUniqueViolation(err) {
					return errIDTaken
				}
				return fmt.Errorf("failed to insert book: %w", err)
			}
			return nil
		})
		if errors.Is(err, errIDTaken) {
			log.Printf("book id %s collided, retrying (attempt %d)", id, attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return book, nil
	}
	return nil, fmt.Errorf("no free book id after %d attempts", maxIDAttempts)
}

// GetBook retrieves a book by its code.
func (s *service) GetBook(ctx context.Context, id string) (*Book, error) {
	return s.repo.Get(ctx, s.db, NormalizeID(id))
}

// ListAvailable lists every book that can still be negotiated.
func (s *service) ListAvailable(ctx context.Context) ([]*Book, error) {
	return s.repo.ListAvailable(ctx, s.db)
}

// ListOwnedBy lists owner's books, including ones already exchanged.
func (s *service) ListOwnedBy(ctx context.Context, owner uuid.UUID) ([]*Book, error) {
	return s.repo.ListOwnedBy(ctx, s.db, owner)
}

// MarkUnavailable takes a book out of circulation. Calling it on a book that
// is already unavailable succeeds.
func (s *service) MarkUnavailable(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := s.repo.MarkUnavailable(ctx, tx, NormalizeID(id))
		return err
	})
}

func checkField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", name, apperr.ErrValidation)
	}
	if utf8.RuneCountInString(value) > maxFieldLength {
		return fmt.Errorf("%s must be at most %d characters: %w", name, maxFieldLength, apperr.ErrValidation)
	}
	return nil
}
