package membership

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. Users own books and receive notifications.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential represents a user's login credentials.
type Credential struct {
	UserID       uuid.UUID `json:"-"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
}

// RegisterRequest is the body of POST /users.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=2,max=20"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginRequest is the body of POST /sessions.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse is returned on successful login.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
