package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// CatalogService manages books and their physical copies. Adding a
// copy seeds the copy's event log with its registered event, so every
// copy's history starts at registration.
type CatalogService struct {
	books    repository.BookRepository
	copies   repository.CopyRepository
	users    repository.UserRepository
	events   repository.EventRepository
	lending  repository.LendingRepository
	cache    repository.Cache
	clock    repository.Clock
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewCatalogService creates a new CatalogService. cache may be nil.
func NewCatalogService(
	repos *repository.Repositories,
	cache repository.Cache,
	clock repository.Clock,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) *CatalogService {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	return &CatalogService{
		books:    repos.Books,
		copies:   repos.Copies,
		users:    repos.Users,
		events:   repos.Events,
		lending:  repos.Lending,
		cache:    cache,
		clock:    clock,
		cacheTTL: cacheTTL,
		logger:   logger.With().Str("service", "catalog").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// AddBookInput contains the data needed to add a book.
type AddBookInput struct {
	Title  string
	Author string
	ISBN   string
	Year   int
}

// AddBookOutput contains the result of adding a book.
type AddBookOutput struct {
	Book *domain.Book
}

// GetBookInput contains the data needed to get a book.
type GetBookInput struct {
	BookID uuid.UUID
}

// GetBookOutput contains the book and its current availability.
type GetBookOutput struct {
	Book            *domain.Book
	AvailableCopies int
}

// ListBooksInput contains the data needed to list books.
type ListBooksInput struct {
	// Search filters title, author and ISBN case-insensitively.
	// Empty returns the whole catalog.
	Search string
}

// ListBooksOutput contains the catalog listing.
type ListBooksOutput struct {
	Books []*domain.BookSummary
}

// RemoveBookInput contains the data needed to remove a book.
type RemoveBookInput struct {
	BookID uuid.UUID
}

// AddCopyInput contains the data needed to register a new copy.
type AddCopyInput struct {
	BookID uuid.UUID

	// ActingUserID is recorded on the copy's registered event.
	ActingUserID uuid.UUID
}

// AddCopyOutput contains the newly registered copy.
type AddCopyOutput struct {
	Copy *domain.Copy
}

// RemoveCopyInput contains the data needed to remove a copy.
type RemoveCopyInput struct {
	CopyID uuid.UUID
}

// ListCopiesByBookInput contains the data needed to list a book's copies.
type ListCopiesByBookInput struct {
	BookID uuid.UUID
}

// ListCopiesByBookOutput contains the per-copy catalog view.
type ListCopiesByBookOutput struct {
	Copies []*domain.CopyDetail
}

// ListCopiesByUserInput contains the data needed to list a user's
// currently borrowed copies.
type ListCopiesByUserInput struct {
	UserID uuid.UUID
}

// ListCopiesByUserOutput contains the copies a user currently holds.
type ListCopiesByUserOutput struct {
	Copies []*domain.CopyDetail
}

// =============================================================================
// Service Methods
// =============================================================================

// AddBook adds a new title to the catalog.
func (s *CatalogService) AddBook(ctx context.Context, input AddBookInput) (*AddBookOutput, error) {
	if err := validateBookInput(input); err != nil {
		return nil, err
	}

	book := domain.NewBook(strings.TrimSpace(input.Title), strings.TrimSpace(input.Author), strings.TrimSpace(input.ISBN), input.Year)

	if err := s.books.Create(ctx, book); err != nil {
		s.logger.Error().Err(err).Str("title", book.Title).Msg("failed to create book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("book_id", book.ID.String()).
		Str("title", book.Title).
		Msg("book added")

	return &AddBookOutput{Book: book}, nil
}

// GetBook returns a book with its current available-copy count.
func (s *CatalogService) GetBook(ctx context.Context, input GetBookInput) (*GetBookOutput, error) {
	book, err := s.books.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Str("book_id", input.BookID.String()).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	available, err := s.availableCount(ctx, book.ID)
	if err != nil {
		return nil, err
	}

	return &GetBookOutput{Book: book, AvailableCopies: available}, nil
}

// ListBooks returns the catalog, optionally filtered by a search term.
func (s *CatalogService) ListBooks(ctx context.Context, input ListBooksInput) (*ListBooksOutput, error) {
	books, err := s.books.List(ctx, strings.TrimSpace(input.Search))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list books")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &ListBooksOutput{Books: books}, nil
}

// RemoveBook soft-deletes a book. Copies and their histories are kept;
// the book simply disappears from active queries.
func (s *CatalogService) RemoveBook(ctx context.Context, input RemoveBookInput) error {
	book, err := s.books.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Str("book_id", input.BookID.String()).Msg("failed to get book")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	err = s.books.SoftDelete(ctx, book.ID, book.Version, uuid.New())
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.ErrVersionConflict
		}
		s.logger.Error().Err(err).Str("book_id", book.ID.String()).Msg("failed to delete book")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidateBook(ctx, book.ID)
	s.logger.Info().Str("book_id", book.ID.String()).Msg("book removed")
	return nil
}

// AddCopy registers a new physical copy of a book. The copy starts
// available and its event log starts with a registered event recording
// the acting user.
func (s *CatalogService) AddCopy(ctx context.Context, input AddCopyInput) (*AddCopyOutput, error) {
	exists, err := s.books.Exists(ctx, input.BookID)
	if err != nil {
		s.logger.Error().Err(err).Str("book_id", input.BookID.String()).Msg("failed to check book existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !exists {
		return nil, domain.ErrBookNotFound
	}

	userExists, err := s.users.Exists(ctx, input.ActingUserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.ActingUserID.String()).Msg("failed to check user existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !userExists {
		return nil, domain.ErrUserNotFound
	}

	cp := domain.NewCopy(input.BookID)
	event := domain.NewLendingEvent(cp.ID, input.ActingUserID, domain.ActionRegistered, s.clock.Now())

	if err := s.lending.RegisterCopy(ctx, cp, event); err != nil {
		s.logger.Error().Err(err).Str("book_id", input.BookID.String()).Msg("failed to register copy")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidateBook(ctx, input.BookID)

	s.logger.Info().
		Str("copy_id", cp.ID.String()).
		Str("book_id", input.BookID.String()).
		Str("user_id", input.ActingUserID.String()).
		Msg("copy registered")

	return &AddCopyOutput{Copy: cp}, nil
}

// RemoveCopy soft-deletes a copy. A borrowed copy cannot be removed;
// it has to come back first. The copy's history is kept.
func (s *CatalogService) RemoveCopy(ctx context.Context, input RemoveCopyInput) error {
	cp, err := s.copies.GetByID(ctx, input.CopyID)
	if err != nil {
		if errors.Is(err, domain.ErrCopyNotFound) {
			return domain.ErrCopyNotFound
		}
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to get copy")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	latest, err := s.events.LatestByCopy(ctx, cp.ID)
	if err != nil && !errors.Is(err, domain.ErrNoEvents) {
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to get latest event")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if latest != nil && latest.Action == domain.ActionBorrowed {
		return domain.ErrCopyUnavailable
	}

	err = s.copies.SoftDelete(ctx, cp.ID, cp.Version, uuid.New())
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return domain.ErrVersionConflict
		}
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to delete copy")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidateBook(ctx, cp.BookID)
	s.logger.Info().Str("copy_id", cp.ID.String()).Msg("copy removed")
	return nil
}

// ListCopiesByBook returns the per-copy view of a book, including the
// display name of the current holder for borrowed copies.
func (s *CatalogService) ListCopiesByBook(ctx context.Context, input ListCopiesByBookInput) (*ListCopiesByBookOutput, error) {
	book, err := s.books.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, domain.ErrBookNotFound) {
			return nil, domain.ErrBookNotFound
		}
		s.logger.Error().Err(err).Str("book_id", input.BookID.String()).Msg("failed to get book")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	copies, err := s.copies.ListByBook(ctx, book.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("book_id", book.ID.String()).Msg("failed to list copies")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	details := make([]*domain.CopyDetail, 0, len(copies))
	for _, cp := range copies {
		detail, err := s.copyDetail(ctx, book, cp)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}

	return &ListCopiesByBookOutput{Copies: details}, nil
}

// ListCopiesByUser returns the copies a user currently holds, with
// their book metadata.
func (s *CatalogService) ListCopiesByUser(ctx context.Context, input ListCopiesByUserInput) (*ListCopiesByUserOutput, error) {
	user, err := s.users.GetByID(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to get user")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	copies, err := s.copies.ListBorrowedByUser(ctx, user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to list borrowed copies")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	details := make([]*domain.CopyDetail, 0, len(copies))
	for _, cp := range copies {
		book, err := s.books.GetByID(ctx, cp.BookID)
		if err != nil {
			if errors.Is(err, domain.ErrBookNotFound) {
				// Book was soft-deleted while the copy is out. Skip it
				// from the view; the history keeps the record.
				continue
			}
			s.logger.Error().Err(err).Str("book_id", cp.BookID.String()).Msg("failed to get book")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		details = append(details, &domain.CopyDetail{
			ID:        cp.ID,
			BookID:    cp.BookID,
			Title:     book.Title,
			Author:    book.Author,
			ISBN:      book.ISBN,
			Year:      book.Year,
			Available: false,
			Borrower:  user.Name,
		})
	}

	return &ListCopiesByUserOutput{Copies: details}, nil
}

// =============================================================================
// Internal helpers
// =============================================================================

// copyDetail builds the catalog view of one copy, resolving the
// holder's name from the latest event when the copy is out.
func (s *CatalogService) copyDetail(ctx context.Context, book *domain.Book, cp *domain.Copy) (*domain.CopyDetail, error) {
	detail := &domain.CopyDetail{
		ID:        cp.ID,
		BookID:    cp.BookID,
		Title:     book.Title,
		Author:    book.Author,
		ISBN:      book.ISBN,
		Year:      book.Year,
		Available: true,
	}

	latest, err := s.events.LatestByCopy(ctx, cp.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoEvents) {
			detail.Available = false
			return detail, nil
		}
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to get latest event")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	state := domain.ProjectCopyState(latest)
	detail.Available = state.Available
	if state.HolderID != nil {
		holder, err := s.users.GetByID(ctx, *state.HolderID)
		if err != nil {
			if !errors.Is(err, domain.ErrUserNotFound) {
				s.logger.Error().Err(err).Str("user_id", state.HolderID.String()).Msg("failed to get holder")
				return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
			}
		} else {
			detail.Borrower = holder.Name
		}
	}

	return detail, nil
}

// availableCount returns the book's available-copy count, served from
// cache when fresh enough and recomputed from storage otherwise.
func (s *CatalogService) availableCount(ctx context.Context, bookID uuid.UUID) (int, error) {
	key := repository.CacheKey{}.BookAvailability(bookID.String())

	if s.cache != nil {
		if value, err := s.cache.Get(ctx, key); err == nil {
			if count, convErr := strconv.Atoi(string(value)); convErr == nil {
				return count, nil
			}
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
	}

	count, err := s.books.CountAvailableCopies(ctx, bookID)
	if err != nil {
		s.logger.Error().Err(err).Str("book_id", bookID.String()).Msg("failed to count available copies")
		return 0, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte(strconv.Itoa(count)), s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}

	return count, nil
}

// invalidateBook drops the cached availability count for a book.
func (s *CatalogService) invalidateBook(ctx context.Context, bookID uuid.UUID) {
	if s.cache == nil {
		return
	}
	key := repository.CacheKey{}.BookAvailability(bookID.String())
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to invalidate cache key")
	}
}

// validateBookInput checks the catalog constraints for a new book.
func validateBookInput(input AddBookInput) error {
	title := strings.TrimSpace(input.Title)
	if len(title) < 1 || len(title) > 128 {
		return ErrInvalidTitle
	}
	author := strings.TrimSpace(input.Author)
	if len(author) < 1 || len(author) > 128 {
		return ErrInvalidAuthor
	}
	if input.Year < 0 {
		return ErrInvalidYear
	}
	return nil
}
