package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// copyRepository implements repository.CopyRepository for SQLite.
type copyRepository struct {
	db *DB
}

// NewCopyRepository creates a new SQLite copy repository.
func NewCopyRepository(db *DB) repository.CopyRepository {
	return &copyRepository{db: db}
}

// GetByID retrieves a non-deleted copy by ID.
func (r *copyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	query := `
		SELECT id, book_id, available, deleted, version
		FROM copies
		WHERE id = ? AND deleted = 0
	`

	return r.scanCopy(r.db.QueryRowContext(ctx, query, id.String()))
}

// ListByBook returns all non-deleted copies of a book.
func (r *copyRepository) ListByBook(ctx context.Context, bookID uuid.UUID) ([]*domain.Copy, error) {
	query := `
		SELECT id, book_id, available, deleted, version
		FROM copies
		WHERE book_id = ? AND deleted = 0
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, bookID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	return r.collectCopies(rows)
}

// ListBorrowedByUser returns the non-deleted copies whose latest event
// is a borrow by the given user. The latest event is resolved through
// the per-copy maximum sequence number, which by construction agrees
// with the timestamp order.
func (r *copyRepository) ListBorrowedByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Copy, error) {
	query := `
		SELECT c.id, c.book_id, c.available, c.deleted, c.version
		FROM copies c
		JOIN lending_events le ON le.copy_id = c.id
		WHERE c.deleted = 0
		  AND c.available = 0
		  AND le.user_id = ?
		  AND le.action = 'borrowed'
		  AND le.seq = (SELECT MAX(seq) FROM lending_events WHERE copy_id = c.id)
		ORDER BY le.timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list borrowed copies: %w", err)
	}
	defer rows.Close()

	return r.collectCopies(rows)
}

// SoftDelete marks a copy as deleted under the version compare-and-swap.
func (r *copyRepository) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	query := `
		UPDATE copies
		SET deleted = 1, version = ?
		WHERE id = ? AND version = ? AND deleted = 0
	`

	result, err := r.db.ExecContext(ctx, query, newVersion.String(), id.String(), version.String())
	if err != nil {
		return fmt.Errorf("failed to soft-delete copy: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *copyRepository) scanCopy(row rowScanner) (*domain.Copy, error) {
	c := &domain.Copy{}
	var copyID, bookID, version string
	var available, deleted int

	err := row.Scan(&copyID, &bookID, &available, &deleted, &version)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCopyNotFound
		}
		return nil, fmt.Errorf("failed to scan copy: %w", err)
	}

	c.ID, _ = uuid.Parse(copyID)
	c.BookID, _ = uuid.Parse(bookID)
	c.Version, _ = uuid.Parse(version)
	c.Available = available != 0
	c.Deleted = deleted != 0

	return c, nil
}

func (r *copyRepository) collectCopies(rows *sql.Rows) ([]*domain.Copy, error) {
	var copies []*domain.Copy
	for rows.Next() {
		c, err := r.scanCopy(rows)
		if err != nil {
			return nil, err
		}
		copies = append(copies, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating copies: %w", err)
	}

	return copies, nil
}

// Ensure copyRepository implements repository.CopyRepository.
var _ repository.CopyRepository = (*copyRepository)(nil)
