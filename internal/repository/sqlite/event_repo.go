package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// eventRepository implements repository.EventRepository for SQLite.
// It is strictly read-only: appends go through the lending repository's
// transactions.
type eventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) repository.EventRepository {
	return &eventRepository{db: db}
}

// LatestByCopy returns the most recent event for a copy.
func (r *eventRepository) LatestByCopy(ctx context.Context, copyID uuid.UUID) (*domain.LendingEvent, error) {
	query := `
		SELECT id, copy_id, user_id, action, timestamp, seq
		FROM lending_events
		WHERE copy_id = ?
		ORDER BY timestamp DESC, seq DESC
		LIMIT 1
	`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, copyID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrNoEvents
		}
		return nil, err
	}
	return event, nil
}

// ListByCopy returns a copy's events, newest first.
func (r *eventRepository) ListByCopy(ctx context.Context, copyID uuid.UUID) ([]*domain.LendingEvent, error) {
	query := `
		SELECT id, copy_id, user_id, action, timestamp, seq
		FROM lending_events
		WHERE copy_id = ?
		ORDER BY timestamp DESC, seq DESC
	`

	rows, err := r.db.QueryContext(ctx, query, copyID.String())
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
		WHERE user_id = ?
		ORDER BY timestamp DESC, seq DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list events by user: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func scanEvent(row rowScanner) (*domain.LendingEvent, error) {
	event := &domain.LendingEvent{}
	var eventID, copyID, userID, action, timestamp string

	err := row.Scan(&eventID, &copyID, &userID, &action, &timestamp, &event.Seq)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.ID, _ = uuid.Parse(eventID)
	event.CopyID, _ = uuid.Parse(copyID)
	event.UserID, _ = uuid.Parse(userID)
	event.Action = domain.EventAction(action)
	if !event.Action.Valid() {
		return nil, fmt.Errorf("unknown event action %q", action)
	}

	ts, err := time.Parse(timeFormat, timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event timestamp: %w", err)
	}
	event.Timestamp = ts

	return event, nil
}

func collectEvents(rows *sql.Rows) ([]*domain.LendingEvent, error) {
	var events []*domain.LendingEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
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
