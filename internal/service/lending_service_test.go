package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedCopy creates a user, a book and a registered copy. The returned
// copy is available with its registration event in the log.
func seedCopy(s *mockState) (*domain.User, *domain.Book, *domain.Copy) {
	user := domain.NewUser("Ada Lovelace", "ada@example.com", "")
	book := domain.NewBook("Structure and Interpretation", "Abelson", "978-0262510875", 1985)
	cp := domain.NewCopy(book.ID)

	s.addUser(user)
	s.addBook(book)
	s.addCopy(cp)
	s.addEvent(domain.NewLendingEvent(cp.ID, user.ID, domain.ActionRegistered, testTime.Add(-time.Hour)))

	return user, book, cp
}

func newLendingService(s *mockState) *LendingService {
	return NewLendingService(s.repositories(), nil, clockAt(testTime), nil, zerolog.Nop())
}

func TestLendingService_BorrowCopy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, out.Succeeded)
		require.Equal(t, ReasonNone, out.Reason)

		stored := state.copies[cp.ID]
		require.False(t, stored.Available)
		require.NotEqual(t, cp.Version, stored.Version, "version token must rotate on mutation")
		require.Equal(t, 2, state.eventCount(cp.ID))
	})

	t.Run("copy already borrowed", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		other := domain.NewUser("Grace Hopper", "grace@example.com", "")
		state.addUser(other)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: other.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, out.Succeeded)

		before := state.eventCount(cp.ID)
		out, err = svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonUnavailable, out.Reason)
		require.Equal(t, before, state.eventCount(cp.ID), "failed borrow must not append an event")
	})

	t.Run("unknown copy", func(t *testing.T) {
		state := newMockState()
		user, _, _ := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: uuid.New()})
		require.NoError(t, err)
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonCopyNotFound, out.Reason)
	})

	t.Run("unknown user", func(t *testing.T) {
		state := newMockState()
		_, _, cp := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: uuid.New(), CopyID: cp.ID})
		require.NoError(t, err)
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonUserNotFound, out.Reason)
	})

	t.Run("concurrent mutation loses the race", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)

		repos := state.repositories()
		repos.Copies = &staleCopyRepo{inner: repos.Copies}
		svc := NewLendingService(repos, nil, clockAt(testTime), nil, zerolog.Nop())

		before := state.eventCount(cp.ID)
		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err, "lost race is an outcome, not an error")
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonConflict, out.Reason)
		require.Equal(t, before, state.eventCount(cp.ID), "lost race must not append an event")
		require.True(t, state.copies[cp.ID].Available, "lost race must not flip availability")
	})

	t.Run("storage fault propagates", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		state.failWith = errors.New("disk on fire")
		svc := newLendingService(state)

		_, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.Error(t, err)
		require.ErrorIs(t, err, ErrInternalError)
	})
}

func TestLendingService_ReturnCopy(t *testing.T) {
	t.Run("holder returns the copy", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, out.Succeeded)

		ret, err := svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, ret.Succeeded)

		require.True(t, state.copies[cp.ID].Available)
		require.Equal(t, 3, state.eventCount(cp.ID))
	})

	t.Run("copy already available", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonAlreadyAvailable, out.Reason)
	})

	t.Run("only the holder may return", func(t *testing.T) {
		state := newMockState()
		user, _, cp := seedCopy(state)
		other := domain.NewUser("Grace Hopper", "grace@example.com", "")
		state.addUser(other)
		svc := newLendingService(state)

		out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.True(t, out.Succeeded)

		before := state.eventCount(cp.ID)
		ret, err := svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: other.ID, CopyID: cp.ID})
		require.NoError(t, err)
		require.False(t, ret.Succeeded)
		require.Equal(t, ReasonNotHolder, ret.Reason)
		require.Equal(t, before, state.eventCount(cp.ID))
		require.False(t, state.copies[cp.ID].Available, "copy stays with its holder")
	})

	t.Run("unknown copy", func(t *testing.T) {
		state := newMockState()
		user, _, _ := seedCopy(state)
		svc := newLendingService(state)

		out, err := svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: uuid.New()})
		require.NoError(t, err)
		require.False(t, out.Succeeded)
		require.Equal(t, ReasonCopyNotFound, out.Reason)
	})
}

func TestLendingService_BorrowCopy_RaceExactlyOneWinner(t *testing.T) {
	state := newMockState()
	_, _, cp := seedCopy(state)

	const contenders = 16
	users := make([]*domain.User, contenders)
	for i := range users {
		users[i] = domain.NewUser("Contender", uuid.NewString()+"@example.com", "")
		state.addUser(users[i])
	}

	svc := NewLendingService(state.repositories(), nil, repository.SystemClock{}, nil, zerolog.Nop())

	var wg sync.WaitGroup
	outcomes := make([]bool, contenders)
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: users[i].ID, CopyID: cp.ID})
			errs[i] = err
			if err == nil {
				outcomes[i] = out.Succeeded
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	winners := 0
	for _, ok := range outcomes {
		if ok {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one concurrent borrow may win")
	require.Equal(t, 2, state.eventCount(cp.ID), "registered plus exactly one borrowed event")
	require.False(t, state.copies[cp.ID].Available)
}

func TestLendingService_GetCopyState(t *testing.T) {
	state := newMockState()
	user, _, cp := seedCopy(state)
	svc := newLendingService(state)

	out, err := svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.True(t, out.State.Available)
	require.Nil(t, out.State.HolderID)

	_, err = svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)

	out, err = svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.False(t, out.State.Available)
	require.NotNil(t, out.State.HolderID)
	require.Equal(t, user.ID, *out.State.HolderID)

	_, err = svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrCopyNotFound)
}

func TestLendingService_GetCopyState_ResolvesHolderName(t *testing.T) {
	state := newMockState()
	user, _, cp := seedCopy(state)
	svc := newLendingService(state)

	out, err := svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.True(t, out.State.Available)
	require.Empty(t, out.HolderName)

	_, err = svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)

	out, err = svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.False(t, out.State.Available)
	require.Equal(t, user.ID, *out.State.HolderID)
	require.Equal(t, user.Name, out.HolderName)
}

func TestLendingService_GetCopyState_CachedAndInvalidated(t *testing.T) {
	state := newMockState()
	user, _, cp := seedCopy(state)
	cache := newMockCache()
	svc := NewLendingService(state.repositories(), cache, clockAt(testTime), nil, zerolog.Nop())

	key := repository.CacheKey{}.CopyState(cp.ID.String())

	first, err := svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.True(t, first.State.Available)
	require.True(t, cache.has(key), "projection must be written to the cache")
	require.Equal(t, 1, cache.setCount())

	second, err := svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.setCount(), "second read must be served from the cache")

	_, err = svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	require.False(t, cache.has(key), "borrow must invalidate the cached state")

	after, err := svc.GetCopyState(context.Background(), GetCopyStateInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.False(t, after.State.Available)
	require.Equal(t, user.ID, *after.State.HolderID)
	require.Equal(t, user.Name, after.HolderName)
	require.Equal(t, 2, cache.setCount())

	_, err = svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	require.False(t, cache.has(key), "return must invalidate the cached state")
}

func TestLendingService_GetCopyHistory(t *testing.T) {
	state := newMockState()
	user, _, cp := seedCopy(state)

	clock := &fixedClock{times: []time.Time{
		testTime,
		testTime.Add(time.Minute),
	}}
	svc := NewLendingService(state.repositories(), nil, clock, nil, zerolog.Nop())

	_, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	_, err = svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)

	out, err := svc.GetCopyHistory(context.Background(), GetCopyHistoryInput{CopyID: cp.ID})
	require.NoError(t, err)
	require.Len(t, out.Events, 3)
	require.Equal(t, domain.ActionReturned, out.Events[0].Action)
	require.Equal(t, domain.ActionBorrowed, out.Events[1].Action)
	require.Equal(t, domain.ActionRegistered, out.Events[2].Action)

	for i := 1; i < len(out.Events); i++ {
		require.False(t, out.Events[i-1].Before(out.Events[i]), "history must be newest first")
	}
}

func TestLendingService_GetUserHistory(t *testing.T) {
	state := newMockState()
	user, _, cp := seedCopy(state)

	clock := &fixedClock{times: []time.Time{
		testTime,
		testTime.Add(time.Minute),
	}}
	svc := NewLendingService(state.repositories(), nil, clock, nil, zerolog.Nop())

	_, err := svc.BorrowCopy(context.Background(), BorrowCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)
	_, err = svc.ReturnCopy(context.Background(), ReturnCopyInput{UserID: user.ID, CopyID: cp.ID})
	require.NoError(t, err)

	out, err := svc.GetUserHistory(context.Background(), GetUserHistoryInput{UserID: user.ID})
	require.NoError(t, err)
	// Registration was also recorded by this user.
	require.Len(t, out.Events, 3)
	require.Equal(t, domain.ActionReturned, out.Events[0].Action)

	_, err = svc.GetUserHistory(context.Background(), GetUserHistoryInput{UserID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

// staleCopyRepo hands out copies with a version token that storage no
// longer holds, simulating a concurrent writer between read and commit.
type staleCopyRepo struct {
	inner repository.CopyRepository
}

func (r *staleCopyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	cp, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cp.Version = uuid.New()
	return cp, nil
}

func (r *staleCopyRepo) ListByBook(ctx context.Context, bookID uuid.UUID) ([]*domain.Copy, error) {
	return r.inner.ListByBook(ctx, bookID)
}

func (r *staleCopyRepo) ListBorrowedByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Copy, error) {
	return r.inner.ListBorrowedByUser(ctx, userID)
}

func (r *staleCopyRepo) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	return r.inner.SoftDelete(ctx, id, version, newVersion)
}
