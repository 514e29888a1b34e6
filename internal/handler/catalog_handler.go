package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/service"
)

// CatalogHandler serves the book and copy endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With().Str("handler", "catalog").Logger(),
	}
}

// RegisterRoutes registers catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/books", h.handleListBooks)
	r.Post("/api/books", h.handleAddBook)
	r.Get("/api/books/{bookID}", h.handleGetBook)
	r.Delete("/api/books/{bookID}", h.handleRemoveBook)
	r.Get("/api/books/{bookID}/copies", h.handleListCopies)
	r.Post("/api/books/{bookID}/copies", h.handleAddCopy)
	r.Delete("/api/copies/{copyID}", h.handleRemoveCopy)
}

// addBookRequest is the JSON body for POST /api/books.
type addBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
	Year   int    `json:"year"`
}

// addCopyRequest is the JSON body for POST /api/books/{bookID}/copies.
type addCopyRequest struct {
	UserID string `json:"user_id"`
}

func (h *CatalogHandler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListBooks(r.Context(), service.ListBooksInput{
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	books := out.Books
	if books == nil {
		books = []*domain.BookSummary{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *CatalogHandler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req addBookRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.catalog.AddBook(r.Context(), service.AddBookInput{
		Title:  req.Title,
		Author: req.Author,
		ISBN:   req.ISBN,
		Year:   req.Year,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidTitle) ||
			errors.Is(err, service.ErrInvalidAuthor) ||
			errors.Is(err, service.ErrInvalidYear) {
			writeValidationError(w, err)
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.Book)
}

func (h *CatalogHandler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := uuidParam(w, r, "bookID")
	if !ok {
		return
	}

	out, err := h.catalog.GetBook(r.Context(), service.GetBookInput{BookID: bookID})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":               out.Book.ID,
		"title":            out.Book.Title,
		"author":           out.Book.Author,
		"isbn":             out.Book.ISBN,
		"year":             out.Book.Year,
		"available_copies": out.AvailableCopies,
	})
}

func (h *CatalogHandler) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := uuidParam(w, r, "bookID")
	if !ok {
		return
	}

	if err := h.catalog.RemoveBook(r.Context(), service.RemoveBookInput{BookID: bookID}); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) handleListCopies(w http.ResponseWriter, r *http.Request) {
	bookID, ok := uuidParam(w, r, "bookID")
	if !ok {
		return
	}

	out, err := h.catalog.ListCopiesByBook(r.Context(), service.ListCopiesByBookInput{BookID: bookID})
	if err != nil {
		writeError(w, err)
		return
	}

	copies := out.Copies
	if copies == nil {
		copies = []*domain.CopyDetail{}
	}
	writeJSON(w, http.StatusOK, copies)
}

func (h *CatalogHandler) handleAddCopy(w http.ResponseWriter, r *http.Request) {
	bookID, ok := uuidParam(w, r, "bookID")
	if !ok {
		return
	}

	var req addCopyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	actingUser, err := parseUUIDField(req.UserID, "user_id")
	if err != nil {
		writeValidationError(w, err)
		return
	}

	out, err := h.catalog.AddCopy(r.Context(), service.AddCopyInput{
		BookID:       bookID,
		ActingUserID: actingUser,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, out.Copy)
}

func (h *CatalogHandler) handleRemoveCopy(w http.ResponseWriter, r *http.Request) {
	copyID, ok := uuidParam(w, r, "copyID")
	if !ok {
		return
	}

	if err := h.catalog.RemoveCopy(r.Context(), service.RemoveCopyInput{CopyID: copyID}); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
