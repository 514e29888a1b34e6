// Package domain contains the core business entities for Athenaeum.
// These are pure Go structs with no external service dependencies,
// representing the fundamental concepts of the lending system.
package domain

import (
	"github.com/google/uuid"
)

// Book represents a catalog title. A book owns zero or more physical
// copies; only copies are lendable.
type Book struct {
	// ID is the unique identifier for the book.
	ID uuid.UUID `json:"id"`

	// Title is the display title of the book.
	// Constraints: 1-128 characters.
	Title string `json:"title"`

	// Author is the book's author.
	// Constraints: 1-128 characters.
	Author string `json:"author"`

	// ISBN is the ISBN-10 or ISBN-13 of the book.
	ISBN string `json:"isbn"`

	// Year is the publication year.
	Year int `json:"year"`

	// Deleted marks the book as logically removed. Soft-deleted books
	// are excluded from all active queries but keep their history.
	Deleted bool `json:"-"`

	// Version is the optimistic concurrency token. It is regenerated
	// on every successful mutation and never reused.
	Version uuid.UUID `json:"-"`
}

// NewBook creates a new Book with a fresh identity and version token.
func NewBook(title, author, isbn string, year int) *Book {
	return &Book{
		ID:      uuid.New(),
		Title:   title,
		Author:  author,
		ISBN:    isbn,
		Year:    year,
		Version: uuid.New(),
	}
}

// BookSummary is the catalog listing view of a book, including the
// number of copies currently available for borrowing.
type BookSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Year            int       `json:"year"`
	AvailableCopies int       `json:"available_copies"`
}
