package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookswap/internal/apperr"
	"bookswap/internal/storage"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const columns = `id, kind, recipient_id, proposer_id, book_id, offered_book_id, reply_to, message, is_read, created_at`

// Repository is the SQL access to the notification log. Like the catalog
// repository it runs on whatever Querier it is handed.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert assigns n an ID and timestamp and stores it unread. A second reply
// to the same notification fails with apperr.ErrConflict.
func (r *Repository) Insert(ctx context.Context, q storage.Querier, n *Notification) error {
	n.ID = ulid.Make().String()
	n.IsRead = false
	n.CreatedAt = time.Now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO notifications (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, string(n.Kind), n.RecipientID, n.ProposerID, n.BookID,
		nullable(n.OfferedBookID), nullable(n.ReplyTo), n.Message, n.IsRead, n.CreatedAt)
	if err != nil {
		if storage.IsUniqueViolation(err) && n.ReplyTo != "" {
			return fmt.Errorf("notification %s already has a reply: %w", n.ReplyTo, apperr.ErrConflict)
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Get loads one notification, failing with apperr.ErrNotFound.
func (r *Repository) Get(ctx context.Context, q storage.Querier, id string) (*Notification, error) {
	n, err := scan(q.QueryRowContext(ctx, `SELECT `+columns+` FROM notifications WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ReplyTo returns the notification answering id, or nil when there is none.
func (r *Repository) ReplyTo(ctx context.Context, q storage.Querier, id string) (*Notification, error) {
	n, err := scan(q.QueryRowContext(ctx, `SELECT `+columns+` FROM notifications WHERE reply_to = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reply: %w", err)
	}
	return n, nil
}

// UnreadFor lists recipient's unread notifications in insertion order.
func (r *Repository) UnreadFor(ctx context.Context, q storage.Querier, recipient uuid.UUID) ([]*Notification, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+columns+` FROM notifications
		WHERE recipient_id = ? AND is_read = ?
		ORDER BY id ASC
	`, recipient, false)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*Notification, 0)
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead sets is_read. Marking a read notification again succeeds.
func (r *Repository) MarkRead(ctx context.Context, q storage.Querier, id string) error {
	res, err := q.ExecContext(ctx, `UPDATE notifications SET is_read = ? WHERE id = ?`, true, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Notification, error) {
	var (
		n       Notification
		kind    string
		offered sql.NullString
		replyTo sql.NullString
	)
	err := s.Scan(&n.ID, &kind, &n.RecipientID, &n.ProposerID, &n.BookID,
		&offered, &replyTo, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Kind = Kind(kind)
	n.OfferedBookID = offered.String
	n.ReplyTo = replyTo.String
	return &n, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
