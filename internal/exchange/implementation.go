package exchange

import (
	"context"
	"errors"
	"fmt"
	"log"

	"bookswap/internal/apperr"
	"bookswap/internal/catalog"
	"bookswap/internal/journal"
	"bookswap/internal/notification"
	"bookswap/internal/storage"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	db        *storage.DB
	journal   *journal.Journal
	books     *catalog.Repository
	inbox     *notification.Repository
	directory Directory
	tracer    trace.Tracer

	proposals     metric.Int64Counter
	confirmations metric.Int64Counter
	conflicts     metric.Int64Counter
}

// NewService creates a new exchange coordinator. Catalog and notification
// writes of one transition share a single transaction on db.
func NewService(db *storage.DB, j *journal.Journal, directory Directory) Service {
	return newService(db, j, directory, otel.GetMeterProvider())
}

func newService(db *storage.DB, j *journal.Journal, directory Directory, mp metric.MeterProvider) *service {
	meter := mp.Meter("bookswap/exchange")
	return &service{
		db:            db,
		journal:       j,
		books:         catalog.NewRepository(j),
		inbox:         notification.NewRepository(),
		directory:     directory,
		tracer:        otel.Tracer("bookswap/exchange"),
		proposals:     newCounter(meter, "exchange.proposals", "Exchange proposals recorded"),
		confirmations: newCounter(meter, "exchange.confirmations", "Exchanges confirmed"),
		conflicts:     newCounter(meter, "exchange.conflicts", "Confirmations that lost a race"),
	}
}

// Propose asks the owner of bookID for an exchange on behalf of proposer.
// Availability is not changed.
func (s *service) Propose(ctx context.Context, proposer uuid.UUID, bookID string) (*notification.Notification, error) {
	bookID = catalog.NormalizeID(bookID)
	ctx, span := s.tracer.Start(ctx, "exchange.propose",
		trace.WithAttributes(
			attribute.String("book.id", bookID),
			attribute.String("proposer.id", proposer.String()),
		),
	)
	defer span.End()

	user, err := s.directory.GetUser(ctx, proposer)
	if err != nil {
		return nil, fail(span, err)
	}

	var proposal *notification.Notification
	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		book, err := s.books.Get(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !book.Available {
			return fmt.Errorf("book %s is no longer available: %w", book.ID, apperr.ErrUnavailable)
		}

		n := &notification.Notification{
			Kind:        notification.KindProposal,
			RecipientID: book.OwnerID,
			ProposerID:  proposer,
			BookID:      book.ID,
			Message:     fmt.Sprintf("%s would like to exchange for your book %q by %s", user.Username, book.Title, book.Author),
		}
		if err := s.inbox.Insert(ctx, tx, n); err != nil {
			return err
		}

		event, err := journal.NewEvent("ExchangeProposed", ExchangeProposedEvent{
			ProposalID: n.ID,
			BookID:     book.ID,
			ProposerID: proposer,
			OwnerID:    book.OwnerID,
		})
		if err != nil {
			return err
		}
		if err := s.journal.Append(ctx, tx, n.ID, AggregateType, 0, event); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		proposal = n
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("proposal.id", proposal.ID))
	s.proposals.Add(ctx, 1)
	return proposal, nil
}

// Confirm accepts a proposal by offering one of the confirmer's own books.
// Both books become unavailable and the proposer is notified, all in one
// transaction.
func (s *service) Confirm(ctx context.Context, confirmer uuid.UUID, proposalID, offeredBookID string) (*notification.Notification, error) {
	offeredBookID = catalog.NormalizeID(offeredBookID)
	ctx, span := s.tracer.Start(ctx, "exchange.confirm",
		trace.WithAttributes(
			attribute.String("proposal.id", proposalID),
			attribute.String("offered_book.id", offeredBookID),
			attribute.String("confirmer.id", confirmer.String()),
		),
	)
	defer span.End()

	user, err := s.directory.GetUser(ctx, confirmer)
	if err != nil {
		return nil, fail(span, err)
	}
	proposal, err := s.proposalFor(ctx, confirmer, proposalID)
	if err != nil {
		return nil, fail(span, err)
	}
	if proposal.Kind != notification.KindProposal {
		return nil, fail(span, fmt.Errorf("notification %s is not a proposal: %w", proposal.ID, apperr.ErrValidation))
	}
	if offeredBookID == proposal.BookID {
		return nil, fail(span, fmt.Errorf("cannot offer the requested book in exchange for itself: %w", apperr.ErrValidation))
	}

	var confirmation *notification.Notification
	err = s.db.WithTx(ctx, func(tx *storage.Tx) error {
		if err := s.books.Lock(ctx, tx, offeredBookID, proposal.BookID); err != nil {
			return err
		}
		reply, err := s.inbox.ReplyTo(ctx, tx, proposal.ID)
		if err != nil {
			return err
		}
		if reply != nil {
			return fmt.Errorf("proposal %s was already confirmed: %w", proposal.ID, apperr.ErrConflict)
		}

		offered, err := s.books.Get(ctx, tx, offeredBookID)
		if err != nil {
			return err
		}
		if offered.OwnerID != confirmer {
			return fmt.Errorf("book %s is not yours to offer: %w", offered.ID, apperr.ErrValidation)
		}
		if !offered.Available {
			return fmt.Errorf("book %s is no longer available: %w", offered.ID, apperr.ErrUnavailable)
		}
		requested, err := s.books.Get(ctx, tx, proposal.BookID)
		if err != nil {
			return err
		}

		if err := s.books.Reserve(ctx, tx, offered.ID, confirmer); err != nil {
			return err
		}
		// The requested book may already be gone; marking it again is a no-op.
		if _, err := s.books.MarkUnavailable(ctx, tx, requested.ID); err != nil {
			return err
		}

		n := &notification.Notification{
			Kind:          notification.KindConfirmation,
			RecipientID:   proposal.ProposerID,
			ProposerID:    confirmer,
			BookID:        requested.ID,
			OfferedBookID: offered.ID,
			ReplyTo:       proposal.ID,
			Message: fmt.Sprintf("%s accepted your request for %q and offered %q by %s in exchange",
				user.Username, requested.Title, offered.Title, offered.Author),
		}
		if err := s.inbox.Insert(ctx, tx, n); err != nil {
			return err
		}
		// Acting on a proposal settles it for the owner.
		if err := s.inbox.MarkRead(ctx, tx, proposal.ID); err != nil {
			return err
		}

		event, err := journal.NewEvent("ExchangeConfirmed", ExchangeConfirmedEvent{
			ProposalID:     proposal.ID,
			ConfirmationID: n.ID,
			BookID:         requested.ID,
			OfferedBookID:  offered.ID,
			ConfirmerID:    confirmer,
		})
		if err != nil {
			return err
		}
		if err := s.journal.Append(ctx, tx, proposal.ID, AggregateType, 1, event); err != nil {
			if errors.Is(err, journal.ErrConcurrencyConflict) {
				return fmt.Errorf("proposal %s was confirmed concurrently: %w", proposal.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("failed to append event: %w", err)
		}

		confirmation = n
		return nil
	})
	if storage.IsSerializationFailure(err) {
		err = fmt.Errorf("proposal %s collided with a concurrent exchange: %v: %w", proposal.ID, err, apperr.ErrConflict)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrUnavailable) {
			log.Printf("Confirmation of proposal %s lost a race: %v", proposal.ID, err)
			s.conflicts.Add(ctx, 1)
		}
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("confirmation.id", confirmation.ID))
	s.confirmations.Add(ctx, 1)
	return confirmation, nil
}

// OfferableBooks lists the confirmer's available books that could be offered
// for the given proposal.
func (s *service) OfferableBooks(ctx context.Context, confirmer uuid.UUID, proposalID string) ([]*catalog.Book, error) {
	proposal, err := s.proposalFor(ctx, confirmer, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.Kind != notification.KindProposal {
		return nil, fmt.Errorf("notification %s is not a proposal: %w", proposal.ID, apperr.ErrValidation)
	}

	books, err := s.books.ListAvailableOwnedBy(ctx, s.db, confirmer)
	if err != nil {
		return nil, err
	}
	out := make([]*catalog.Book, 0, len(books))
	for _, b := range books {
		if b.ID != proposal.BookID {
			out = append(out, b)
		}
	}
	return out, nil
}

// Negotiation returns the negotiation a notification belongs to. Only the two
// parties can see it.
func (s *service) Negotiation(ctx context.Context, viewer uuid.UUID, notificationID string) (*Negotiation, error) {
	n, err := s.inbox.Get(ctx, s.db, notificationID)
	if err != nil {
		return nil, err
	}
	proposal := n
	if n.Kind == notification.KindConfirmation {
		if proposal, err = s.inbox.Get(ctx, s.db, n.ReplyTo); err != nil {
			return nil, err
		}
	}
	if viewer != proposal.RecipientID && viewer != proposal.ProposerID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, apperr.ErrNotFound)
	}

	confirmation, err := s.inbox.ReplyTo(ctx, s.db, proposal.ID)
	if err != nil {
		return nil, err
	}
	book, err := s.books.Get(ctx, s.db, proposal.BookID)
	if err != nil {
		return nil, err
	}

	return &Negotiation{
		State:         DeriveState(proposal, confirmation),
		Proposal:      proposal,
		Confirmation:  confirmation,
		RequestedBook: book,
	}, nil
}

// proposalFor loads a notification addressed to recipient. Anyone else's
// notification is reported as not found.
func (s *service) proposalFor(ctx context.Context, recipient uuid.UUID, id string) (*notification.Notification, error) {
	n, err := s.inbox.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != recipient {
		return nil, fmt.Errorf("notification %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func newCounter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Printf("Failed to create counter %s: %v", name, err)
		return noop.Int64Counter{}
	}
	return c
}
