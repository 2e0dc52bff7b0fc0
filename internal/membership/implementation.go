package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"bookswap/internal/apperr"
	"bookswap/internal/storage"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	db *storage.DB
}

// NewService creates a new account directory backed by db.
func NewService(db *storage.DB) Service {
	return &service{db: db}
}

// Register creates a new user with a hashed password.
func (s *service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 2 || n > 20 {
		return nil, fmt.Errorf("username must be 2 to 20 characters: %w", apperr.ErrValidation)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required: %w", apperr.ErrValidation)
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:        uuid.New(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	credential := &Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, salt, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Username, credential.PasswordHash, credential.Salt, user.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, fmt.Errorf("username %q is already taken: %w", username, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// Authenticate verifies a user's credentials and returns the user if successful.
func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user := &User{}
	credential := &Credential{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, created_at, password_hash, salt
		FROM users
		WHERE username = ?
	`, strings.TrimSpace(username)).Scan(
		&user.ID,
		&user.Username,
		&user.CreatedAt,
		&credential.PasswordHash,
		&credential.Salt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("authentication failed: %w", apperr.ErrUnauthorized)
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("authentication failed: invalid credentials: %w", apperr.ErrUnauthorized)
	}

	return user, nil
}

// GetUser retrieves a user by their ID.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user := &User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, created_at
		FROM users
		WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
