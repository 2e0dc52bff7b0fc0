// Package journal is the append-only record of domain events for books and
// negotiations. Events are written through the caller's transaction so an
// event exists if and only if the state change it describes was committed.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookswap/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event represents a domain event with full metadata
type Event struct {
	ID            int64           `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewEvent marshals data into an event of the given type.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: raw}, nil
}

// Journal appends and reads events.
type Journal struct {
	db     *storage.DB
	tracer trace.Tracer
}

func New(db *storage.DB) *Journal {
	return &Journal{
		db:     db,
		tracer: otel.Tracer("bookswap/journal"),
	}
}

// Append writes events for an aggregate through q, failing with
// ErrConcurrencyConflict when the aggregate is not at expectedVersion.
func (j *Journal) Append(ctx context.Context, q storage.Querier, aggregateID, aggregateType string, expectedVersion int, events ...Event) error {
	ctx, span := j.tracer.Start(ctx, "journal.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	currentVersion, err := currentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}
	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	return j.insert(ctx, span, q, aggregateID, aggregateType, expectedVersion, events)
}

// AppendNext writes events after whatever version the aggregate is at. Use it
// only when the caller already serializes writers of the aggregate, e.g. by
// holding the row it describes.
func (j *Journal) AppendNext(ctx context.Context, q storage.Querier, aggregateID, aggregateType string, events ...Event) error {
	ctx, span := j.tracer.Start(ctx, "journal.append_next",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	version, err := currentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}
	return j.insert(ctx, span, q, aggregateID, aggregateType, version, events)
}

func (j *Journal) insert(ctx context.Context, span trace.Span, q storage.Querier, aggregateID, aggregateType string, base int, events []Event) error {
	for i, event := range events {
		version := base + i + 1
		var metadata any
		if event.Metadata != nil {
			raw, err := json.Marshal(event.Metadata)
			if err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
			metadata = string(raw)
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, aggregateID, aggregateType, event.EventType, string(event.EventData), metadata, version, time.Now().UTC())
		if err != nil {
			if storage.IsUniqueViolation(err) {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// Load retrieves the events of an aggregate, oldest first. A toVersion of 0
// means no upper bound.
func (j *Journal) Load(ctx context.Context, aggregateID string, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE aggregate_id = ?
		AND version >= ?
	`
	args := []any{aggregateID, fromVersion}
	if toVersion > 0 {
		query += " AND version <= ?"
		args = append(args, toVersion)
	}
	query += " ORDER BY version ASC"

	events, err := j.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

// CurrentVersion returns the latest version for an aggregate, 0 if it has no
// events.
func (j *Journal) CurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	ctx, span := j.tracer.Start(ctx, "journal.get_version",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID)),
	)
	defer span.End()

	version, err := currentVersion(ctx, j.db, aggregateID)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

// Stream provides a cursor over all events in append order.
func (j *Journal) Stream(ctx context.Context, fromID int64, batchSize int) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "journal.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	events, err := j.query(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, fromID, batchSize)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var data []byte
		var metadata sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&data,
			&metadata,
			&event.Version,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = json.RawMessage(data)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func currentVersion(ctx context.Context, q storage.Querier, aggregateID string) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = ?
	`, aggregateID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}
