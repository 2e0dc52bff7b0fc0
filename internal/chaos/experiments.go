package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bookswap/internal/apperr"
	"bookswap/internal/catalog"
	"bookswap/internal/exchange"
	"bookswap/internal/membership"
	"bookswap/internal/notification"
	"bookswap/internal/storage"

	"github.com/google/uuid"
)

// Target is the system the experiments drive.
type Target struct {
	DB       *storage.DB
	Members  membership.Service
	Catalog  catalog.Service
	Inbox    notification.Service
	Exchange exchange.Service
}

// RegisterExperiments registers the predefined experiments with e.
func RegisterExperiments(e *Engine, t Target, concurrency int) {
	e.Register(ConfirmStorm(t, concurrency))
	e.Register(ProposalFlood(t, concurrency))
}

// ConsistencyProbes measure invariants that must hold at all times.
func ConsistencyProbes(db *storage.DB) []Probe {
	return []Probe{
		{
			Name: "books_offered_twice",
			Query: func(ctx context.Context) (float64, error) {
				var n int
				err := db.QueryRowContext(ctx, `
					SELECT COUNT(*) FROM (
						SELECT offered_book_id FROM notifications
						WHERE kind = ?
						GROUP BY offered_book_id
						HAVING COUNT(*) > 1
					) dup
				`, string(notification.KindConfirmation)).Scan(&n)
				return float64(n), err
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name: "confirmed_books_still_available",
			Query: func(ctx context.Context) (float64, error) {
				var n int
				err := db.QueryRowContext(ctx, `
					SELECT COUNT(*) FROM notifications n
					JOIN books b ON b.id = n.offered_book_id OR b.id = n.book_id
					WHERE n.kind = ? AND b.available = ?
				`, string(notification.KindConfirmation), true).Scan(&n)
				return float64(n), err
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
	}
}

// ConfirmStorm confirms many proposals at once, all offering the same book.
func ConfirmStorm(t Target, concurrency int) Experiment {
	var winners, losers atomic.Int64

	probes := append(ConsistencyProbes(t.DB), Probe{
		Name:      "storm_winners",
		Query:     func(context.Context) (float64, error) { return float64(winners.Load()), nil },
		Threshold: Threshold{Operator: "<=", Value: 1},
	})

	return Experiment{
		Name:        "concurrent-confirm-race",
		Hypothesis:  "Exactly one of many concurrent confirmations can claim the same offered book",
		SteadyState: probes,
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "exchange",
				Execute: func(ctx context.Context) error {
					confirmer, err := register(ctx, t.Members)
					if err != nil {
						return err
					}
					offered, err := t.Catalog.AddBook(ctx, confirmer.ID, "Offered in a storm", "bookswap chaos")
					if err != nil {
						return err
					}

					proposals := make([]*notification.Notification, 0, concurrency)
					for i := 0; i < concurrency; i++ {
						requested, err := t.Catalog.AddBook(ctx, confirmer.ID, fmt.Sprintf("Requested #%d", i), "bookswap chaos")
						if err != nil {
							return err
						}
						proposer, err := register(ctx, t.Members)
						if err != nil {
							return err
						}
						p, err := t.Exchange.Propose(ctx, proposer.ID, requested.ID)
						if err != nil {
							return err
						}
						proposals = append(proposals, p)
					}

					var (
						wg         sync.WaitGroup
						mu         sync.Mutex
						unexpected []error
					)
					for _, p := range proposals {
						wg.Add(1)
						go func(id string) {
							defer wg.Done()
							_, err := t.Exchange.Confirm(ctx, confirmer.ID, id, offered.ID)
							switch {
							case err == nil:
								winners.Add(1)
							case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrUnavailable):
								losers.Add(1)
							default:
								mu.Lock()
								unexpected = append(unexpected, err)
								mu.Unlock()
							}
						}(p.ID)
					}
					wg.Wait()
					return errors.Join(unexpected...)
				},
			},
		},
		Validation: []Assertion{
			{
				Probe:     "storm_winners",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "exactly one confirmation should win the offered book",
			},
			{
				Probe:     "confirmed_books_still_available",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "every confirmed book should be unavailable",
			},
		},
		Duration:    2 * time.Second,
		SampleEvery: 250 * time.Millisecond,
	}
}

// ProposalFlood sends many concurrent proposals for one book.
func ProposalFlood(t Target, concurrency int) Experiment {
	var (
		owner uuid.UUID
		book  string
	)

	inbox := Probe{
		Name: "flood_inbox_size",
		Query: func(ctx context.Context) (float64, error) {
			if owner == uuid.Nil {
				return 0, nil
			}
			list, err := t.Inbox.UnreadFor(ctx, owner)
			return float64(len(list)), err
		},
		Threshold: Threshold{Operator: "<=", Value: float64(concurrency)},
	}
	available := Probe{
		Name: "flood_book_available",
		Query: func(ctx context.Context) (float64, error) {
			if book == "" {
				return 1, nil
			}
			b, err := t.Catalog.GetBook(ctx, book)
			if err != nil {
				return 0, err
			}
			if b.Available {
				return 1, nil
			}
			return 0, nil
		},
		Threshold: Threshold{Operator: "==", Value: 1},
	}

	return Experiment{
		Name:        "proposal-flood",
		Hypothesis:  "Concurrent proposals are all recorded in order and never reserve the book",
		SteadyState: append(ConsistencyProbes(t.DB), inbox, available),
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "exchange",
				Execute: func(ctx context.Context) error {
					u, err := register(ctx, t.Members)
					if err != nil {
						return err
					}
					b, err := t.Catalog.AddBook(ctx, u.ID, "Flooded", "bookswap chaos")
					if err != nil {
						return err
					}
					owner, book = u.ID, b.ID

					proposers := make([]uuid.UUID, concurrency)
					for i := range proposers {
						p, err := register(ctx, t.Members)
						if err != nil {
							return err
						}
						proposers[i] = p.ID
					}

					errs := make([]error, concurrency)
					var wg sync.WaitGroup
					for i, id := range proposers {
						wg.Add(1)
						go func(i int, id uuid.UUID) {
							defer wg.Done()
							_, errs[i] = t.Exchange.Propose(ctx, id, book)
						}(i, id)
					}
					wg.Wait()
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Probe:     "flood_inbox_size",
				Condition: func(v float64) bool { return v == float64(concurrency) },
				Message:   "every proposal should reach the owner's inbox",
			},
			{
				Probe:     "flood_book_available",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "proposals should not change availability",
			},
		},
		Duration:    time.Second,
		SampleEvery: 250 * time.Millisecond,
	}
}

func register(ctx context.Context, members membership.Service) (*membership.User, error) {
	name := "chaos-" + uuid.NewString()[:8]
	user, err := members.Register(ctx, name, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	return user, nil
}
