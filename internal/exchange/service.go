package exchange

import (
	"context"

	"bookswap/internal/catalog"
	"bookswap/internal/membership"
	"bookswap/internal/notification"

	"github.com/google/uuid"
)

// Directory resolves user ids to users. membership.Service satisfies it.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*membership.User, error)
}

// Service defines the interface for the exchange coordinator.
type Service interface {
	Propose(ctx context.Context, proposer uuid.UUID, bookID string) (*notification.Notification, error)
	Confirm(ctx context.Context, confirmer uuid.UUID, proposalID, offeredBookID string) (*notification.Notification, error)
	OfferableBooks(ctx context.Context, confirmer uuid.UUID, proposalID string) ([]*catalog.Book, error)
	Negotiation(ctx context.Context, viewer uuid.UUID, notificationID string) (*Negotiation, error)
}
