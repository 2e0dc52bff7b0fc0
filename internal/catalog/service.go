package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog.
type Service interface {
	AddBook(ctx context.Context, owner uuid.UUID, title, author string) (*Book, error)
	GetBook(ctx context.Context, id string) (*Book, error)
	ListAvailable(ctx context.Context) ([]*Book, error)
	ListOwnedBy(ctx context.Context, owner uuid.UUID) ([]*Book, error)
	MarkUnavailable(ctx context.Context, id string) error
}
