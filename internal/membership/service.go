package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the account directory.
type Service interface {
	Register(ctx context.Context, username, password string) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}
