package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two messages of a negotiation.
type Kind string

const (
	KindProposal     Kind = "proposal"
	KindConfirmation Kind = "confirmation"
)

// Notification is a message addressed to one user. IDs are ULIDs, so
// ordering by ID is insertion order.
type Notification struct {
	ID            string    `json:"id"`
	Kind          Kind      `json:"kind"`
	RecipientID   uuid.UUID `json:"recipient_id"`
	ProposerID    uuid.UUID `json:"proposer_id"`
	BookID        string    `json:"book_id"`
	OfferedBookID string    `json:"offered_book_id,omitempty"`
	ReplyTo       string    `json:"reply_to,omitempty"`
	Message       string    `json:"message"`
	IsRead        bool      `json:"is_read"`
	CreatedAt     time.Time `json:"created_at"`
}
