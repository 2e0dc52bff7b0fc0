package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Book is a copy owned by one user. Ownership never changes; an exchange only
// clears Available, and nothing ever sets it again.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Available bool      `json:"available"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AddBookRequest is the body of POST /books.
type AddBookRequest struct {
	Title  string `json:"title" validate:"required,max=100"`
	Author string `json:"author" validate:"required,max=100"`
}

// AggregateType is the journal aggregate type for books.
const AggregateType = "book"

// BookAddedEvent is journaled when a book enters the catalog.
type BookAddedEvent struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Author  string    `json:"author"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// BookMarkedUnavailableEvent is journaled when a book stops being negotiable.
type BookMarkedUnavailableEvent struct {
	ID string `json:"id"`
}
