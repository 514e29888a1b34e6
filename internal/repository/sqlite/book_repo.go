package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// bookRepository implements repository.BookRepository for SQLite.
type bookRepository struct {
	db *DB
}

// NewBookRepository creates a new SQLite book repository.
func NewBookRepository(db *DB) repository.BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (id, title, author, isbn, year, deleted, version)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		book.ID.String(),
		book.Title,
		book.Author,
		book.ISBN,
		book.Year,
		book.Version.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}

	return nil
}

// GetByID retrieves a non-deleted book by ID.
func (r *bookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	query := `
		SELECT id, title, author, isbn, year, deleted, version
		FROM books
		WHERE id = ? AND deleted = 0
	`

	book := &domain.Book{}
	var bookID, version string
	var deleted int

	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&bookID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Year,
		&deleted,
		&version,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}

	book.ID, _ = uuid.Parse(bookID)
	book.Version, _ = uuid.Parse(version)
	book.Deleted = deleted != 0

	return book, nil
}

// List returns all non-deleted books with available-copy counts,
// optionally filtered by a case-insensitive search over title, author
// and ISBN.
func (r *bookRepository) List(ctx context.Context, search string) ([]*domain.BookSummary, error) {
	query := `
		SELECT b.id, b.title, b.author, b.isbn, b.year,
		       (SELECT COUNT(*) FROM copies c
		        WHERE c.book_id = b.id AND c.available = 1 AND c.deleted = 0)
		FROM books b
		WHERE b.deleted = 0
	`
	var args []interface{}

	if search != "" {
		query += `
		AND (LOWER(b.title) LIKE ? OR LOWER(b.author) LIKE ? OR LOWER(b.isbn) LIKE ?)
		`
		pattern := "%" + strings.ToLower(search) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query += ` ORDER BY b.title ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.BookSummary
	for rows.Next() {
		summary := &domain.BookSummary{}
		var bookID string

		err := rows.Scan(
			&bookID,
			&summary.Title,
			&summary.Author,
			&summary.ISBN,
			&summary.Year,
			&summary.AvailableCopies,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}

		summary.ID, _ = uuid.Parse(bookID)
		books = append(books, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating books: %w", err)
	}

	return books, nil
}

// CountAvailableCopies returns the number of available, non-deleted
// copies of a book.
func (r *bookRepository) CountAvailableCopies(ctx context.Context, bookID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM copies
		WHERE book_id = ? AND available = 1 AND deleted = 0
	`, bookID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count available copies: %w", err)
	}
	return count, nil
}

// SoftDelete marks a book as deleted under the version compare-and-swap.
func (r *bookRepository) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	query := `
		UPDATE books
		SET deleted = 1, version = ?
		WHERE id = ? AND version = ? AND deleted = 0
	`

	result, err := r.db.ExecContext(ctx, query, newVersion.String(), id.String(), version.String())
	if err != nil {
		return fmt.Errorf("failed to soft-delete book: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

// Exists checks whether a non-deleted book with the ID exists.
func (r *bookRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE id = ? AND deleted = 0`,
		id.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check book existence: %w", err)
	}
	return count > 0, nil
}

// Ensure bookRepository implements repository.BookRepository.
var _ repository.BookRepository = (*bookRepository)(nil)
