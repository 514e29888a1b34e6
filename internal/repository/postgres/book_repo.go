package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// bookRepository implements repository.BookRepository for PostgreSQL.
type bookRepository struct {
	db *DB
}

// NewBookRepository creates a new PostgreSQL book repository.
func NewBookRepository(db *DB) repository.BookRepository {
	return &bookRepository{db: db}
}

// Create creates a new book.
func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	query := `
		INSERT INTO books (id, title, author, isbn, year, deleted, version)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		book.ID,
		book.Title,
		book.Author,
		book.ISBN,
		book.Year,
		book.Version,
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
		WHERE id = $1 AND NOT deleted
	`

	book := &domain.Book{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Year,
		&book.Deleted,
		&book.Version,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book by ID: %w", err)
	}

	return book, nil
}

// List returns all non-deleted books with available-copy counts,
// optionally filtered by a case-insensitive search over title, author
// and ISBN.
func (r *bookRepository) List(ctx context.Context, search string) ([]*domain.BookSummary, error) {
	query := `
		SELECT b.id, b.title, b.author, b.isbn, b.year,
		       (SELECT COUNT(*) FROM copies c
		        WHERE c.book_id = b.id AND c.available AND NOT c.deleted)
		FROM books b
		WHERE NOT b.deleted
	`
	var args []any

	if search != "" {
		query += ` AND (b.title ILIKE $1 OR b.author ILIKE $1 OR b.isbn ILIKE $1)`
		args = append(args, "%"+search+"%")
	}

	query += ` ORDER BY b.title ASC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.BookSummary
	for rows.Next() {
		summary := &domain.BookSummary{}
		err := rows.Scan(
			&summary.ID,
			&summary.Title,
			&summary.Author,
			&summary.ISBN,
			&summary.Year,
			&summary.AvailableCopies,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
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
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM copies
		WHERE book_id = $1 AND available AND NOT deleted
	`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count available copies: %w", err)
	}
	return count, nil
}

// SoftDelete marks a book as deleted under the version compare-and-swap.
func (r *bookRepository) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	query := `
		UPDATE books
		SET deleted = TRUE, version = $1
		WHERE id = $2 AND version = $3 AND NOT deleted
	`

	tag, err := r.db.Pool.Exec(ctx, query, newVersion, id, version)
	if err != nil {
		return fmt.Errorf("failed to soft-delete book: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}

	return nil
}

// Exists checks whether a non-deleted book with the ID exists.
func (r *bookRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1 AND NOT deleted)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check book existence: %w", err)
	}
	return exists, nil
}

// Ensure bookRepository implements repository.BookRepository.
var _ repository.BookRepository = (*bookRepository)(nil)
