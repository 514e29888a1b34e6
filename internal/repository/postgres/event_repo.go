package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// eventRepository implements repository.EventRepository for PostgreSQL.
// It is strictly a read interface; appends happen only inside
// lendingRepository transactions.
type eventRepository struct {
	db *DB
}

// NewEventRepository creates a new PostgreSQL event repository.
func NewEventRepository(db *DB) repository.EventRepository {
	return &eventRepository{db: db}
}

// LatestByCopy returns the most recent event for a copy, using the
// per-copy sequence number to break timestamp ties.
func (r *eventRepository) LatestByCopy(ctx context.Context, copyID uuid.UUID) (*domain.LendingEvent, error) {
	query := `
		SELECT id, copy_id, user_id, action, timestamp, seq
		FROM lending_events
		WHERE copy_id = $1
		ORDER BY timestamp DESC, seq DESC
		LIMIT 1
	`

	event, err := scanEvent(r.db.Pool.QueryRow(ctx, query, copyID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNoEvents
		}
		return nil, fmt.Errorf("failed to get latest event: %w", err)
	}

	return event, nil
}

// ListByCopy returns a copy's events, newest first.
func (r *eventRepository) ListByCopy(ctx context.Context, copyID uuid.UUID) ([]*domain.LendingEvent, error) {
	query := `
		SELECT id, copy_id, user_id, action, timestamp, seq
		FROM lending_events
		WHERE copy_id = $1
		ORDER BY timestamp DESC, seq DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, copyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by copy: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListByUser returns a user's events across all copies, newest first.
func (r *eventRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LendingEvent, error) {
	query := `
		SELECT id, copy_id, user_id, action, timestamp, seq
		FROM lending_events
		WHERE user_id = $1
		ORDER BY timestamp DESC, seq DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by user: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func scanEvent(row pgx.Row) (*domain.LendingEvent, error) {
	event := &domain.LendingEvent{}
	var action string
	err := row.Scan(
		&event.ID,
		&event.CopyID,
		&event.UserID,
		&action,
		&event.Timestamp,
		&event.Seq,
	)
	if err != nil {
		return nil, err
	}
	event.Action = domain.EventAction(action)
	if !event.Action.Valid() {
		return nil, fmt.Errorf("unknown event action %q", action)
	}
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}

func collectEvents(rows pgx.Rows) ([]*domain.LendingEvent, error) {
	var events []*domain.LendingEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Ensure eventRepository implements repository.EventRepository.
var _ repository.EventRepository = (*eventRepository)(nil)
