package exchange

import (
	"bookswap/internal/catalog"
	"bookswap/internal/notification"

	"github.com/google/uuid"
)

// State is the derived stage of one negotiation. It is computed from the
// notification log on every read and never stored.
type State string

const (
	StateOpen      State = "OPEN"
	StateProposed  State = "PROPOSED"
	StateConfirmed State = "CONFIRMED"
)

// DeriveState maps the notifications of a negotiation to its state. The
// requested book's availability is not consulted: a confirm succeeds even when
// that book is already gone. StateOpen only applies before any proposal exists.
func DeriveState(proposal, confirmation *notification.Notification) State {
	switch {
	case confirmation != nil:
		return StateConfirmed
	case proposal != nil:
		return StateProposed
	default:
		return StateOpen
	}
}

// Negotiation is one proposal together with everything that followed it.
type Negotiation struct {
	State         State                      `json:"state"`
	Proposal      *notification.Notification `json:"proposal"`
	Confirmation  *notification.Notification `json:"confirmation,omitempty"`
	RequestedBook *catalog.Book              `json:"requested_book"`
}

// ConfirmRequest is the body of POST /notifications/{id}/confirm.
type ConfirmRequest struct {
	OfferedBookID string `json:"offered_book_id" validate:"required,len=5,alphanum"`
}

// AggregateType is the journal aggregate type for negotiations. The aggregate
// id is the proposal notification id.
const AggregateType = "negotiation"

// ExchangeProposedEvent is journaled with the proposal notification.
type ExchangeProposedEvent struct {
	ProposalID string    `json:"proposal_id"`
	BookID     string    `json:"book_id"`
	ProposerID uuid.UUID `json:"proposer_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
}

// ExchangeConfirmedEvent is journaled with the confirmation notification.
type ExchangeConfirmedEvent struct {
	ProposalID     string    `json:"proposal_id"`
	ConfirmationID string    `json:"confirmation_id"`
	BookID         string    `json:"book_id"`
	OfferedBookID  string    `json:"offered_book_id"`
	ConfirmerID    uuid.UUID `json:"confirmer_id"`
}
