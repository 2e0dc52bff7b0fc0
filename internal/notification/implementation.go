package notification

import (
	"context"
	"fmt"

	"bookswap/internal/apperr"
	"bookswap/internal/storage"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	db   *storage.DB
	repo *Repository
}

// NewService creates a new notification log backed by db.
func NewService(db *storage.DB) Service {
	return &service{db: db, repo: NewRepository()}
}

// Record appends n to the log. n gets a fresh ID and starts unread.
func (s *service) Record(ctx context.Context, n *Notification) (*Notification, error) {
	if n.Kind != KindProposal && n.Kind != KindConfirmation {
		return nil, fmt.Errorf("unknown notification kind %q: %w", n.Kind, apperr.ErrValidation)
	}
	if err := s.repo.Insert(ctx, s.db, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Get retrieves a notification regardless of recipient.
func (s *service) Get(ctx context.Context, id string) (*Notification, error) {
	return s.repo.Get(ctx, s.db, id)
}

// GetFor retrieves a notification addressed to recipient. Notifications of
// other users are reported as not found.
func (s *service) GetFor(ctx context.Context, recipient uuid.UUID, id string) (*Notification, error) {
	n, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipient {
		return nil, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// UnreadFor lists recipient's unread notifications, oldest first.
func (s *service) UnreadFor(ctx context.Context, recipient uuid.UUID) ([]*Notification, error) {
	return s.repo.UnreadFor(ctx, s.db, recipient)
}

// MarkRead marks a notification read. It is idempotent.
func (s *service) MarkRead(ctx context.Context, id string) error {
	return s.repo.MarkRead(ctx, s.db, id)
}

// MarkReadFor is MarkRead restricted to the notification's recipient.
func (s *service) MarkReadFor(ctx context.Context, recipient uuid.UUID, id string) error {
	if _, err := s.GetFor(ctx, recipient, id); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, s.db, id)
}
