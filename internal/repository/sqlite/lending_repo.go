package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// lendingRepository implements repository.LendingRepository for SQLite.
// Every method is a single transaction pairing the event append with
// the copy mutation, so either both land or neither does.
type lendingRepository struct {
	db *DB
}

// NewLendingRepository creates a new SQLite lending repository.
func NewLendingRepository(db *DB) repository.LendingRepository {
	return &lendingRepository{db: db}
}

// RegisterCopy inserts a new copy together with its synthesized
// registered event in one transaction.
func (r *lendingRepository) RegisterCopy(ctx context.Context, copy *domain.Copy, event *domain.LendingEvent) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO copies (id, book_id, available, deleted, version)
			VALUES (?, ?, 1, 0, ?)
		`,
			copy.ID.String(),
			copy.BookID.String(),
			copy.Version.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert copy: %w", err)
		}

		return appendEvent(ctx, tx, event)
	})
}

// CommitBorrow appends a borrowed event and marks the copy unavailable,
// committing only if the observed version token still matches storage.
func (r *lendingRepository) CommitBorrow(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error {
	return r.commit(ctx, event, observedVersion, newVersion, false)
}

// CommitReturn appends a returned event and marks the copy available,
// under the same compare-and-swap rule as CommitBorrow.
func (r *lendingRepository) CommitReturn(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error {
	return r.commit(ctx, event, observedVersion, newVersion, true)
}

// commit performs the atomic flag flip + version swap + event append.
// The UPDATE's WHERE clause is the optimistic concurrency check: zero
// affected rows means another transaction changed the copy (or deleted
// it) between our read and this commit, and the whole transaction is
// rolled back with domain.ErrVersionConflict.
func (r *lendingRepository) commit(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID, available bool) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE copies
			SET available = ?, version = ?
			WHERE id = ? AND version = ? AND deleted = 0
		`,
			boolToInt(available),
			newVersion.String(),
			event.CopyID.String(),
			observedVersion.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update copy: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrVersionConflict
		}

		return appendEvent(ctx, tx, event)
	})
}

// appendEvent inserts one immutable event, assigning the next per-copy
// sequence number inside the transaction. The (copy_id, seq) unique
// index turns a lost race on the sequence number into a version
// conflict instead of a corrupted log.
func appendEvent(ctx context.Context, tx *sql.Tx, event *domain.LendingEvent) error {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1
		FROM lending_events
		WHERE copy_id = ?
	`, event.CopyID.String()).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to assign event sequence: %w", err)
	}
	event.Seq = seq

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lending_events (id, copy_id, user_id, action, timestamp, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.ID.String(),
		event.CopyID.String(),
		event.UserID.String(),
		string(event.Action),
		event.Timestamp.UTC().Format(timeFormat),
		event.Seq,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure lendingRepository implements repository.LendingRepository.
var _ repository.LendingRepository = (*lendingRepository)(nil)
