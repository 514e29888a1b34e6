package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// mockState is shared in-memory storage backing all mock repositories,
// with the same compare-and-swap semantics as the real backends.
type mockState struct {
	mu     sync.Mutex
	books  map[uuid.UUID]*domain.Book
	copies map[uuid.UUID]*domain.Copy
	users  map[uuid.UUID]*domain.User
	events []*domain.LendingEvent

	// failWith, when set, makes every repository call return this error.
	failWith error
}

func newMockState() *mockState {
	return &mockState{
		books:  make(map[uuid.UUID]*domain.Book),
		copies: make(map[uuid.UUID]*domain.Copy),
		users:  make(map[uuid.UUID]*domain.User),
	}
}

func (s *mockState) repositories() *repository.Repositories {
	return &repository.Repositories{
		Books:   &mockBookRepo{s},
		Copies:  &mockCopyRepo{s},
		Users:   &mockUserRepo{s},
		Events:  &mockEventRepo{s},
		Lending: &mockLendingRepo{s},
	}
}

// addBook, addCopy and addUser seed state directly, bypassing services.
func (s *mockState) addBook(book *domain.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = book
}

func (s *mockState) addCopy(cp *domain.Copy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cp
	s.copies[cp.ID] = &c
}

func (s *mockState) addUser(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *mockState) addEvent(event *domain.LendingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(event)
}

func (s *mockState) appendLocked(event *domain.LendingEvent) {
	var maxSeq int64
	for _, e := range s.events {
		if e.CopyID == event.CopyID && e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	event.Seq = maxSeq + 1
	s.events = append(s.events, event)
}

func (s *mockState) eventCount(copyID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.events {
		if e.CopyID == copyID {
			count++
		}
	}
	return count
}

// fixedClock returns a preset sequence of instants, repeating the last
// one when exhausted.
type fixedClock struct {
	mu    sync.Mutex
	times []time.Time
	idx   int
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx < len(c.times)-1 {
		t := c.times[c.idx]
		c.idx++
		return t
	}
	return c.times[len(c.times)-1]
}

func clockAt(t time.Time) *fixedClock {
	return &fixedClock{times: []time.Time{t}}
}

// mockCache is a map-backed repository.Cache that counts writes so
// tests can tell a cache hit from a recomputation.
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (c *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return value, nil
}

func (c *mockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *mockCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mockCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *mockCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

// =============================================================================
// BookRepository
// =============================================================================

type mockBookRepo struct{ s *mockState }

func (m *mockBookRepo) Create(ctx context.Context, book *domain.Book) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	m.s.books[book.ID] = book
	return nil
}

func (m *mockBookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	book, ok := m.s.books[id]
	if !ok || book.Deleted {
		return nil, domain.ErrBookNotFound
	}
	b := *book
	return &b, nil
}

func (m *mockBookRepo) List(ctx context.Context, search string) ([]*domain.BookSummary, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.BookSummary
	needle := strings.ToLower(search)
	for _, book := range m.s.books {
		if book.Deleted {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(book.Title), needle) &&
			!strings.Contains(strings.ToLower(book.Author), needle) &&
			!strings.Contains(strings.ToLower(book.ISBN), needle) {
			continue
		}
		out = append(out, &domain.BookSummary{
			ID:              book.ID,
			Title:           book.Title,
			Author:          book.Author,
			ISBN:            book.ISBN,
			Year:            book.Year,
			AvailableCopies: m.s.countAvailableLocked(book.ID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *mockBookRepo) CountAvailableCopies(ctx context.Context, bookID uuid.UUID) (int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return 0, m.s.failWith
	}
	return m.s.countAvailableLocked(bookID), nil
}

func (s *mockState) countAvailableLocked(bookID uuid.UUID) int {
	count := 0
	for _, cp := range s.copies {
		if cp.BookID == bookID && cp.Available && !cp.Deleted {
			count++
		}
	}
	return count
}

func (m *mockBookRepo) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	book, ok := m.s.books[id]
	if !ok || book.Deleted || book.Version != version {
		return domain.ErrVersionConflict
	}
	book.Deleted = true
	book.Version = newVersion
	return nil
}

func (m *mockBookRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return false, m.s.failWith
	}
	book, ok := m.s.books[id]
	return ok && !book.Deleted, nil
}

// =============================================================================
// CopyRepository
// =============================================================================

type mockCopyRepo struct{ s *mockState }

func (m *mockCopyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Copy, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	cp, ok := m.s.copies[id]
	if !ok || cp.Deleted {
		return nil, domain.ErrCopyNotFound
	}
	c := *cp
	return &c, nil
}

func (m *mockCopyRepo) ListByBook(ctx context.Context, bookID uuid.UUID) ([]*domain.Copy, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.Copy
	for _, cp := range m.s.copies {
		if cp.BookID == bookID && !cp.Deleted {
			c := *cp
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *mockCopyRepo) ListBorrowedByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Copy, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.Copy
	for _, cp := range m.s.copies {
		if cp.Deleted || cp.Available {
			continue
		}
		latest := m.s.latestLocked(cp.ID)
		if latest != nil && latest.Action == domain.ActionBorrowed && latest.UserID == userID {
			c := *cp
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockCopyRepo) SoftDelete(ctx context.Context, id, version, newVersion uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	cp, ok := m.s.copies[id]
	if !ok || cp.Deleted || cp.Version != version {
		return domain.ErrVersionConflict
	}
	cp.Deleted = true
	cp.Version = newVersion
	return nil
}

// =============================================================================
// UserRepository
// =============================================================================

type mockUserRepo struct{ s *mockState }

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	for _, u := range m.s.users {
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}
	m.s.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	user, ok := m.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	for _, user := range m.s.users {
		if user.Email == email {
			u := *user
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return false, m.s.failWith
	}
	_, ok := m.s.users[id]
	return ok, nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.User
	for _, user := range m.s.users {
		u := *user
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// EventRepository
// =============================================================================

type mockEventRepo struct{ s *mockState }

func (m *mockEventRepo) LatestByCopy(ctx context.Context, copyID uuid.UUID) (*domain.LendingEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	latest := m.s.latestLocked(copyID)
	if latest == nil {
		return nil, domain.ErrNoEvents
	}
	e := *latest
	return &e, nil
}

func (s *mockState) latestLocked(copyID uuid.UUID) *domain.LendingEvent {
	var latest *domain.LendingEvent
	for _, e := range s.events {
		if e.CopyID != copyID {
			continue
		}
		if latest == nil || latest.Before(e) {
			latest = e
		}
	}
	return latest
}

func (m *mockEventRepo) ListByCopy(ctx context.Context, copyID uuid.UUID) ([]*domain.LendingEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.LendingEvent
	for _, e := range m.s.events {
		if e.CopyID == copyID {
			ev := *e
			out = append(out, &ev)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *mockEventRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.LendingEvent, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return nil, m.s.failWith
	}
	var out []*domain.LendingEvent
	for _, e := range m.s.events {
		if e.UserID == userID {
			ev := *e
			out = append(out, &ev)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(events []*domain.LendingEvent) {
	sort.Slice(events, func(i, j int) bool { return events[j].Before(events[i]) })
}

// =============================================================================
// LendingRepository
// =============================================================================

type mockLendingRepo struct{ s *mockState }

func (m *mockLendingRepo) RegisterCopy(ctx context.Context, cp *domain.Copy, event *domain.LendingEvent) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	m.s.copies[cp.ID] = cp
	m.s.appendLocked(event)
	return nil
}

func (m *mockLendingRepo) CommitBorrow(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error {
	return m.commit(event, observedVersion, newVersion, false)
}

func (m *mockLendingRepo) CommitReturn(ctx context.Context, event *domain.LendingEvent, observedVersion, newVersion uuid.UUID) error {
	return m.commit(event, observedVersion, newVersion, true)
}

func (m *mockLendingRepo) commit(event *domain.LendingEvent, observedVersion, newVersion uuid.UUID, available bool) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failWith != nil {
		return m.s.failWith
	}
	cp, ok := m.s.copies[event.CopyID]
	if !ok || cp.Deleted || cp.Version != observedVersion {
		return domain.ErrVersionConflict
	}
	cp.Available = available
	cp.Version = newVersion
	m.s.appendLocked(event)
	return nil
}
