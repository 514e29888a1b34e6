package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-io/athenaeum/internal/domain"
)

func newCatalogService(s *mockState) *CatalogService {
	return NewCatalogService(s.repositories(), nil, clockAt(testTime), 30*time.Second, zerolog.Nop())
}

func TestCatalogService_AddBook(t *testing.T) {
	tests := []struct {
		name    string
		input   AddBookInput
		wantErr error
	}{
		{
			name:  "success",
			input: AddBookInput{Title: "The Go Programming Language", Author: "Donovan", ISBN: "978-0134190440", Year: 2015},
		},
		{
			name:    "empty title",
			input:   AddBookInput{Title: "   ", Author: "Donovan", Year: 2015},
			wantErr: ErrInvalidTitle,
		},
		{
			name:    "title too long",
			input:   AddBookInput{Title: strings.Repeat("x", 129), Author: "Donovan", Year: 2015},
			wantErr: ErrInvalidTitle,
		},
		{
			name:    "empty author",
			input:   AddBookInput{Title: "The Go Programming Language", Author: "", Year: 2015},
			wantErr: ErrInvalidAuthor,
		},
		{
			name:    "negative year",
			input:   AddBookInput{Title: "The Go Programming Language", Author: "Donovan", Year: -1},
			wantErr: ErrInvalidYear,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newMockState()
			svc := newCatalogService(state)

			out, err := svc.AddBook(context.Background(), tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, out.Book.ID)
			require.NotEqual(t, uuid.Nil, out.Book.Version)
			require.Equal(t, tt.input.Title, out.Book.Title)
		})
	}
}

func TestCatalogService_AddCopy(t *testing.T) {
	t.Run("registers copy with event", func(t *testing.T) {
		state := newMockState()
		user := domain.NewUser("Ada Lovelace", "ada@example.com", "")
		book := domain.NewBook("SICP", "Abelson", "978-0262510875", 1985)
		state.addUser(user)
		state.addBook(book)
		svc := newCatalogService(state)

		out, err := svc.AddCopy(context.Background(), AddCopyInput{BookID: book.ID, ActingUserID: user.ID})
		require.NoError(t, err)
		require.True(t, out.Copy.Available)
		require.Equal(t, book.ID, out.Copy.BookID)

		require.Equal(t, 1, state.eventCount(out.Copy.ID), "registration must seed the event log")
		latest := state.latestLocked(out.Copy.ID)
		require.Equal(t, domain.ActionRegistered, latest.Action)
		require.Equal(t, user.ID, latest.UserID)
	})

	t.Run("unknown book", func(t *testing.T) {
		state := newMockState()
		user := domain.NewUser("Ada Lovelace", "ada@example.com", "")
		state.addUser(user)
		svc := newCatalogService(state)

		_, err := svc.AddCopy(context.Background(), AddCopyInput{BookID: uuid.New(), ActingUserID: user.ID})
		require.ErrorIs(t, err, domain.ErrBookNotFound)
	})

	t.Run("unknown acting user", func(t *testing.T) {
		state := newMockState()
		book := domain.NewBook("SICP", "Abelson", "978-0262510875", 1985)
		state.addBook(book)
		svc := newCatalogService(state)

		_, err := svc.AddCopy(context.Background(), AddCopyInput{BookID: book.ID, ActingUserID: uuid.New()})
		require.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestCatalogService_RemoveCopy(t *testing.T) {
	t.Run("available copy is removed", func(t *testing.T) {
		state := newMockState()
		_, _, cp := seedCopy(state)
		svc := newCatalogService(state)

		err := svc.RemoveCopy(context.Background(), RemoveCopyInput{CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, state.copies[cp.ID].Deleted)
		require.Equal(t, 1, state.eventCount(cp.ID), "removal keeps the history")
	})

	t.Run("borrowed copy cannot be removed", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		lending := newLendingService(state)
		svc := newCatalogService(state)

		out, err := lending.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, out.Succeeded)

		err = svc.RemoveCopy(context.Background(), RemoveCopyInput{CopyID: cp.ID})
		require.ErrorIs(t, err, domain.ErrCopyUnavailable)
		require.False(t, state.copies[cp.ID].Deleted)
	})
}

func TestCatalogService_ListBooks(t *testing.T) {
	state := newMockState()
	user := domain.NewUser("Ada Lovelace", "ada@example.com", "")
	state.addUser(user)

	sicp := domain.NewBook("SICP", "Abelson", "978-0262510875", 1985)
	gopl := domain.NewBook("The Go Programming Language", "Donovan", "978-0134190440", 2015)
	state.addBook(sicp)
	state.addBook(gopl)

	svc := newCatalogService(state)

	for i := 0; i < 2; i++ {
		_, err := svc.AddCopy(context.Background(), AddCopyInput{BookID: gopl.ID, ActingUserID: user.ID})
		require.NoError(t, err)
	}

	t.Run("all books with counts", func(t *testing.T) {
		out, err := svc.ListBooks(context.Background(), ListBooksInput{})
		require.NoError(t, err)
		require.Len(t, out.Books, 2)

		byTitle := map[string]int{}
		for _, b := range out.Books {
			byTitle[b.Title] = b.AvailableCopies
		}
		require.Equal(t, 0, byTitle["SICP"])
		require.Equal(t, 2, byTitle["The Go Programming Language"])
	})

	t.Run("search filters", func(t *testing.T) {
		out, err := svc.ListBooks(context.Background(), ListBooksInput{Search: "donovan"})
		require.NoError(t, err)
		require.Len(t, out.Books, 1)
		require.Equal(t, gopl.ID, out.Books[0].ID)
	})

	t.Run("removed books disappear", func(t *testing.T) {
		require.NoError(t, svc.RemoveBook(context.Background(), RemoveBookInput{BookID: sicp.ID}))

		out, err := svc.ListBooks(context.Background(), ListBooksInput{})
		require.NoError(t, err)
		require.Len(t, out.Books, 1)
	})
}

func TestCatalogService_ListCopiesByBook(t *testing.T) {
	state := newMockState()
	user, book, cp := seedCopy(state)
	lending := newLendingService(state)
	svc := newCatalogService(state)

	out, err := svc.ListCopiesByBook(context.Background(), ListCopiesByBookInput{BookID: book.ID})
	require.NoError(t, err)
	require.Len(t, out.Copies, 1)
	require.True(t, out.Copies[0].Available)
	require.Empty(t, out.Copies[0].Borrower)
	require.Equal(t, book.Title, out.Copies[0].Title)

	res, err := lending.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	require.True(t, res.Succeeded)

	out, err = svc.ListCopiesByBook(context.Background(), ListCopiesByBookInput{BookID: book.ID})
	require.NoError(t, err)
	require.Len(t, out.Copies, 1)
	require.False(t, out.Copies[0].Available)
	require.Equal(t, user.Name, out.Copies[0].Borrower)
}

func TestCatalogService_ListCopiesByUser(t *testing.T) {
	state := newMockState()
	user, book, cp := seedCopy(state)
	lending := newLendingService(state)
	svc := newCatalogService(state)

	out, err := svc.ListCopiesByUser(context.Background(), ListCopiesByUserInput{UserID: user.ID})
	require.NoError(t, err)
	require.Empty(t, out.Copies)

	res, err := lending.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	require.True(t, res.Succeeded)

	out, err = svc.ListCopiesByUser(context.Background(), ListCopiesByUserInput{UserID: user.ID})
	require.NoError(t, err)
	require.Len(t, out.Copies, 1)
	require.Equal(t, cp.ID, out.Copies[0].ID)
	require.Equal(t, book.Title, out.Copies[0].Title)
	require.Equal(t, user.Name, out.Copies[0].Borrower)

	_, err = svc.ListCopiesByUser(context.Background(), ListCopiesByUserInput{UserID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCatalogService_GetBook(t *testing.T) {
	state := newMockState()
	_, book, _ := seedCopy(state)
	svc := newCatalogService(state)

	out, err := svc.GetBook(context.Background(), GetBookInput{BookID: book.ID})
	require.NoError(t, err)
	require.Equal(t, book.ID, out.Book.ID)
	require.Equal(t, 1, out.AvailableCopies)

	_, err = svc.GetBook(context.Background(), GetBookInput{BookID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrBookNotFound)
}
