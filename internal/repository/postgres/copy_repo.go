package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// copyRepository implements repository.CopyRepository for PostgreSQL.
type copyRepository struct {
	db *DB
}

// NewCopyRepository creates a new PostgreSQL copy repository.
func NewCopyRepository(db *DB) repository.CopyRepository {
	return &copyRepository{db: db}
}

// GetByID retrieves a non-deleted copy by ID.
func (r *copyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	query := `
		SELECT id, book_id, available, deleted, version
		FROM copies
		WHERE id = $1 AND NOT deleted
	`

	c := &domain.Copy{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.BookID,
		&c.Available,
		&c.Deleted,
		&c.Version,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCopyNotFound
		}
		return nil, fmt.Errorf("failed to get copy by ID: %w", err)
	}

	return c, nil
}

// ListByBook returns all non-deleted copies of a book.
func (r *copyRepository) ListByBook(ctx context.Context, bookID uuid.UUID) ([]*domain.Copy, error) {
	query := `
		SELECT id, book_id, available, deleted, version
		FROM copies
		WHERE book_id = $1 AND NOT deleted
		ORDER BY id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list copies: %w", err)
	}
	defer rows.Close()

	return collectCopies(rows)
}

// ListBorrowedByUser returns the non-deleted copies whose latest event
// is a borrow by the given user.
func (r *copyRepository) ListBorrowedByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Copy, error) {
	query := `
		SELECT c.id, c.book_id, c.available, c.deleted, c.version
		FROM copies c
		JOIN lending_events le ON le.copy_id = c.id
		WHERE NOT c.deleted
		  AND NOT c.available
		  AND le.user_id = $1
		  AND le.action = 'borrowed'
		  AND le.seq = (SELECT MAX(seq) FROM lending_events WHERE copy_id = c.id)
		ORDER BY le.timestamp DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrowed copies: %w", err)
	}
	defer rows.Close()

	return collectCopies(rows)
}

// SoftDelete marks a copy as deleted under the version compare-and-swap.
func (r *copyRepository) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	query := `
		UPDATE copies
		SET deleted = TRUE, version = $1
		WHERE id = $2 AND version = $3 AND NOT deleted
	`

	tag, err := r.db.Pool.Exec(ctx, query, newVersion, id, version)
	if err != nil {
		return fmt.Errorf("failed to soft-delete copy: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

func collectCopies(rows pgx.Rows) ([]*domain.Copy, error) {
	var copies []*domain.Copy
	for rows.Next() {
		c := &domain.Copy{}
		err := rows.Scan(&c.ID, &c.BookID, &c.Available, &c.Deleted, &c.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copy: %w", err)
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
