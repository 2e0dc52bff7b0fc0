package notification

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the notification log.
type Service interface {
	Record(ctx context.Context, n *Notification) (*Notification, error)
	Get(ctx context.Context, id string) (*Notification, error)
	GetFor(ctx context.Context, recipient uuid.UUID, id string) (*Notification, error)
	UnreadFor(ctx context.Context, recipient uuid.UUID) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkReadFor(ctx context.Context, recipient uuid.UUID, id string) error
}
