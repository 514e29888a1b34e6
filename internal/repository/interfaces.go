// Package repository defines data access interfaces for Athenaeum.
// These interfaces abstract database operations, allowing for different
// implementations (PostgreSQL, SQLite, in-memory for testing) while
// keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
)

// =============================================================================
// Book Repository
// =============================================================================

// BookRepository defines the interface for book catalog access.
// All read methods exclude soft-deleted books.
type BookRepository interface {
	// Create creates a new book.
	Create(ctx context.Context, book *domain.Book) error

	// GetByID retrieves a non-deleted book by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)

	// List returns all non-deleted books with their available-copy
	// counts. An empty search term returns everything; otherwise
	// title, author and ISBN are matched case-insensitively.
	List(ctx context.Context, search string) ([]*domain.BookSummary, error)

	// CountAvailableCopies returns the number of available, non-deleted
	// copies of a book.
	CountAvailableCopies(ctx context.Context, bookID uuid.UUID) (int, error)

	// SoftDelete marks a book as deleted, guarded by its version
	// token. Returns domain.ErrVersionConflict when the token no
	// longer matches.
	SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error

	// Exists checks whether a non-deleted book with the ID exists.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// =============================================================================
// Copy Repository
// =============================================================================

// CopyRepository defines the interface for copy access.
// All read methods exclude soft-deleted copies.
type CopyRepository interface {
	// GetByID retrieves a non-deleted copy by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Copy, error)

	// ListByBook returns all non-deleted copies of a book.
	ListByBook(ctx context.Context, bookID uuid.UUID) ([]*domain.Copy, error)

	// ListBorrowedByUser returns the non-deleted copies whose latest
	// event is a borrow by the given user.
	ListBorrowedByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Copy, error)

	// SoftDelete marks a copy as deleted, guarded by its version
	// token. History is untouched.
	SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user. Returns domain.ErrUserAlreadyExists
	// when the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Exists checks whether a user with the ID exists.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns all users ordered by name.
	List(ctx context.Context) ([]*domain.User, error)
}

// =============================================================================
// Event Repository (read side of the event log)
// =============================================================================

// EventRepository defines the read interface over the append-only
// lending event log. Appends happen exclusively inside
// LendingRepository transactions, so no public Append exists here;
// events are never updated or deleted.
type EventRepository interface {
	// LatestByCopy returns the most recent event for a copy (maximum
	// timestamp, per-copy sequence number as tie-break), or
	// domain.ErrNoEvents when the copy has none.
	LatestByCopy(ctx context.Context, copyID uuid.UUID) (*domain.LendingEvent, error)

	// ListByCopy returns a copy's events, newest first.
	ListByCopy(ctx context.Context, copyID uuid.UUID) ([]*domain.LendingEvent, error)

	// ListByUser returns a user's events across all copies, newest
	// first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LendingEvent, error)
}

// =============================================================================
// Lending Repository (atomic write side)
// =============================================================================

// LendingRepository performs the atomic mutations of the lending state
// machine. Each method runs a single transaction that appends exactly
// one event, flips the copy's cached availability flag and swaps the
// version token, committing only if the observed token still matches
// storage (compare-and-swap). On a token mismatch the transaction
// aborts with domain.ErrVersionConflict and no partial effect.
type LendingRepository interface {
	// RegisterCopy inserts a new copy together with its synthesized
	// registered event in one transaction.
	RegisterCopy(ctx context.Context, copy *domain.Copy, event *domain.LendingEvent) error

	// CommitBorrow appends a borrowed event and marks the copy
	// unavailable. observedVersion is the token read before
	// validation; newVersion replaces it on success.
	CommitBorrow(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error

	// CommitReturn appends a returned event and marks the copy
	// available again, under the same compare-and-swap rule.
	CommitReturn(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error
}

// =============================================================================
// Aggregate wiring
// =============================================================================

// Repositories holds all repository instances for one backend.
type Repositories struct {
	Books   BookRepository
	Copies  CopyRepository
	Users   UserRepository
	Events  EventRepository
	Lending LendingRepository
}

// DatabaseHealth is an interface for database health checks, satisfied
// by both backend DB wrappers.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Clock supplies timestamps for appended events. Production code uses
// SystemClock; tests substitute a fixed clock to make event ordering
// deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used in production.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
