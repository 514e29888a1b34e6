package domain

import (
	"github.com/google/uuid"
)

// Copy represents one physical, individually lendable instance of a
// book. The Available flag is a cached projection of the copy's event
// log: it must always equal "latest event action != borrowed" for
// non-deleted copies.
type Copy struct {
	// ID is the unique identifier for the copy.
	ID uuid.UUID `json:"id"`

	// BookID references the owning book.
	BookID uuid.UUID `json:"book_id"`

	// Available reports whether the copy can currently be borrowed.
	// Cached for query efficiency; the event log is authoritative.
	Available bool `json:"available"`

	// Deleted marks the copy as logically removed without touching
	// its lending history.
	Deleted bool `json:"-"`

	// Version is the optimistic concurrency token, regenerated on
	// every successful mutation of the copy.
	Version uuid.UUID `json:"-"`
}

// NewCopy creates a new available Copy for the given book.
func NewCopy(bookID uuid.UUID) *Copy {
	return &Copy{
		ID:        uuid.New(),
		BookID:    bookID,
		Available: true,
		Version:   uuid.New(),
	}
}

// CopyDetail is the per-copy catalog view: the copy joined with its
// book metadata and, when unavailable, the name of the current holder.
type CopyDetail struct {
	ID        uuid.UUID `json:"id"`
	BookID    uuid.UUID `json:"book_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn"`
	Year      int       `json:"year"`
	Available bool      `json:"available"`

	// Borrower is the display name of the current holder, empty when
	// the copy is available.
	Borrower string `json:"borrower,omitempty"`
}
