package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/athenaeum-io/athenaeum/internal/domain"
	"github.com/athenaeum-io/athenaeum/internal/metrics"
	"github.com/athenaeum-io/athenaeum/internal/repository"
)

// copyStateTTL bounds how long a cached copy-state projection survives
// without an invalidating mutation.
const copyStateTTL = 30 * time.Second

// LendingService implements the borrow and return operations on top of
// the append-only event log. Business rule violations (copy already
// borrowed, wrong holder, lost race) are reported as failed outcomes,
// not errors; only storage faults surface as errors.
type LendingService struct {
	copies  repository.CopyRepository
	users   repository.UserRepository
	events  repository.EventRepository
	lending repository.LendingRepository
	cache   repository.Cache
	clock   repository.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewLendingService creates a new LendingService. cache and metrics may
// be nil when the deployment runs without them.
func NewLendingService(
	repos *repository.Repositories,
	cache repository.Cache,
	clock repository.Clock,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *LendingService {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	return &LendingService{
		copies:  repos.Copies,
		users:   repos.Users,
		events:  repos.Events,
		lending: repos.Lending,
		cache:   cache,
		clock:   clock,
		metrics: m,
		logger:  logger.With().Str("service", "lending").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// FailureReason explains why a lending operation did not succeed.
type FailureReason string

// Failure reasons for borrow and return outcomes.
const (
	ReasonNone             FailureReason = ""
	ReasonCopyNotFound     FailureReason = "copy_not_found"
	ReasonUserNotFound     FailureReason = "user_not_found"
	ReasonUnavailable      FailureReason = "unavailable"
	ReasonAlreadyAvailable FailureReason = "already_available"
	ReasonNotHolder        FailureReason = "not_holder"
	ReasonConflict         FailureReason = "conflict"
)

// BorrowCopyInput contains the data needed to borrow a copy.
type BorrowCopyInput struct {
	UserID uuid.UUID
	CopyID uuid.UUID
}

// BorrowCopyOutput contains the outcome of a borrow attempt.
type BorrowCopyOutput struct {
	// Succeeded reports whether the borrow was committed.
	Succeeded bool

	// Reason explains a failed outcome; empty on success.
	Reason FailureReason
}

// ReturnCopyInput contains the data needed to return a copy.
type ReturnCopyInput struct {
	UserID uuid.UUID
	CopyID uuid.UUID
}

// ReturnCopyOutput contains the outcome of a return attempt.
type ReturnCopyOutput struct {
	// Succeeded reports whether the return was committed.
	Succeeded bool

	// Reason explains a failed outcome; empty on success.
	Reason FailureReason
}

// GetCopyStateInput contains the data needed to query a copy's state.
type GetCopyStateInput struct {
	CopyID uuid.UUID
}

// GetCopyStateOutput contains a copy's projected state together with
// the resolved display name of the current holder, when there is one.
type GetCopyStateOutput struct {
	State      domain.CopyState
	HolderName string
}

// copyStateView is the cached JSON form of a projected copy state.
type copyStateView struct {
	Available  bool       `json:"available"`
	HolderID   *uuid.UUID `json:"holder_id,omitempty"`
	HolderName string     `json:"holder_name,omitempty"`
}

// GetCopyHistoryInput contains the data needed to query a copy's history.
type GetCopyHistoryInput struct {
	CopyID uuid.UUID
}

// GetCopyHistoryOutput contains a copy's events, newest first.
type GetCopyHistoryOutput struct {
	Events []*domain.LendingEvent
}

// GetUserHistoryInput contains the data needed to query a user's history.
type GetUserHistoryInput struct {
	UserID uuid.UUID
}

// GetUserHistoryOutput contains a user's events, newest first.
type GetUserHistoryOutput struct {
	Events []*domain.LendingEvent
}

// =============================================================================
// Service Methods
// =============================================================================

// BorrowCopy attempts to borrow a copy for a user. The sequence is
// read, validate against the projected state, then commit under the
// version token observed at read time. A concurrent mutation between
// read and commit loses the race and reports a failed outcome; the log
// gains no event in that case.
func (s *LendingService) BorrowCopy(ctx context.Context, input BorrowCopyInput) (*BorrowCopyOutput, error) {
	fail := func(reason FailureReason) (*BorrowCopyOutput, error) {
		s.countBorrow(string(reason))
		return &BorrowCopyOutput{Succeeded: false, Reason: reason}, nil
	}

	exists, err := s.users.Exists(ctx, input.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to check user existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !exists {
		return fail(ReasonUserNotFound)
	}

	cp, err := s.copies.GetByID(ctx, input.CopyID)
	if err != nil {
		if errors.Is(err, domain.ErrCopyNotFound) {
			return fail(ReasonCopyNotFound)
		}
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to get copy")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	state, err := s.projectState(ctx, cp)
	if err != nil {
		return nil, err
	}
	if !state.Available {
		return fail(ReasonUnavailable)
	}

	event := domain.NewLendingEvent(cp.ID, input.UserID, domain.ActionBorrowed, s.clock.Now())
	err = s.lending.CommitBorrow(ctx, event, cp.Version, uuid.New())
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.countConflict("borrow")
			s.logger.Debug().
				Str("copy_id", cp.ID.String()).
				Str("user_id", input.UserID.String()).
				Msg("borrow lost concurrency race")
			return fail(ReasonConflict)
		}
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to commit borrow")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, cp)
	s.countBorrow("success")
	s.countEvent(domain.ActionBorrowed)

	s.logger.Info().
		Str("copy_id", cp.ID.String()).
		Str("user_id", input.UserID.String()).
		Str("event_id", event.ID.String()).
		Msg("copy borrowed")

	return &BorrowCopyOutput{Succeeded: true}, nil
}

// ReturnCopy attempts to return a copy. Only the current holder may
// return it; a copy that is already available cannot be returned.
func (s *LendingService) ReturnCopy(ctx context.Context, input ReturnCopyInput) (*ReturnCopyOutput, error) {
	fail := func(reason FailureReason) (*ReturnCopyOutput, error) {
		s.countReturn(string(reason))
		return &ReturnCopyOutput{Succeeded: false, Reason: reason}, nil
	}

	exists, err := s.users.Exists(ctx, input.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to check user existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !exists {
		return fail(ReasonUserNotFound)
	}

	cp, err := s.copies.GetByID(ctx, input.CopyID)
	if err != nil {
		if errors.Is(err, domain.ErrCopyNotFound) {
			return fail(ReasonCopyNotFound)
		}
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to get copy")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	latest, err := s.latestEvent(ctx, cp)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateReturn(latest, input.UserID); err != nil {
		switch {
		case errors.Is(err, domain.ErrCopyAlreadyAvailable):
			return fail(ReasonAlreadyAvailable)
		case errors.Is(err, domain.ErrNotCurrentHolder):
			return fail(ReasonNotHolder)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	event := domain.NewLendingEvent(cp.ID, input.UserID, domain.ActionReturned, s.clock.Now())
	err = s.lending.CommitReturn(ctx, event, cp.Version, uuid.New())
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.countConflict("return")
			s.logger.Debug().
				Str("copy_id", cp.ID.String()).
				Str("user_id", input.UserID.String()).
				Msg("return lost concurrency race")
			return fail(ReasonConflict)
		}
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to commit return")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidate(ctx, cp)
	s.countReturn("success")
	s.countEvent(domain.ActionReturned)

	s.logger.Info().
		Str("copy_id", cp.ID.String()).
		Str("user_id", input.UserID.String()).
		Str("event_id", event.ID.String()).
		Msg("copy returned")

	return &ReturnCopyOutput{Succeeded: true}, nil
}

// GetCopyState returns the projected state of a copy, derived from its
// latest event rather than the cached availability flag. The projection
// is served from cache when present; every lending mutation on the copy
// invalidates the cached entry.
func (s *LendingService) GetCopyState(ctx context.Context, input GetCopyStateInput) (*GetCopyStateOutput, error) {
	cp, err := s.copies.GetByID(ctx, input.CopyID)
	if err != nil {
		if errors.Is(err, domain.ErrCopyNotFound) {
			return nil, domain.ErrCopyNotFound
		}
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to get copy")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	key := repository.CacheKey{}.CopyState(cp.ID.String())

	if s.cache != nil {
		if value, err := s.cache.Get(ctx, key); err == nil {
			var view copyStateView
			if err := json.Unmarshal(value, &view); err == nil {
				return &GetCopyStateOutput{
					State:      domain.CopyState{Available: view.Available, HolderID: view.HolderID},
					HolderName: view.HolderName,
				}, nil
			}
			s.logger.Warn().Str("key", key).Msg("discarding malformed cached copy state")
		}
	}

	state, err := s.projectState(ctx, cp)
	if err != nil {
		return nil, err
	}

	var holderName string
	if state.HolderID != nil {
		user, err := s.users.GetByID(ctx, *state.HolderID)
		switch {
		case err == nil:
			holderName = user.Name
		case errors.Is(err, domain.ErrUserNotFound):
			s.logger.Warn().
				Str("copy_id", cp.ID.String()).
				Str("user_id", state.HolderID.String()).
				Msg("holder recorded in event log does not exist")
		default:
			s.logger.Error().Err(err).Str("user_id", state.HolderID.String()).Msg("failed to resolve holder")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
	}

	if s.cache != nil {
		view := copyStateView{Available: state.Available, HolderID: state.HolderID, HolderName: holderName}
		if value, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(ctx, key, value, copyStateTTL); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache copy state")
			}
		}
	}

	return &GetCopyStateOutput{State: state, HolderName: holderName}, nil
}

// GetCopyHistory returns a copy's full event history, newest first.
func (s *LendingService) GetCopyHistory(ctx context.Context, input GetCopyHistoryInput) (*GetCopyHistoryOutput, error) {
	if _, err := s.copies.GetByID(ctx, input.CopyID); err != nil {
		if errors.Is(err, domain.ErrCopyNotFound) {
			return nil, domain.ErrCopyNotFound
		}
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to get copy")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	events, err := s.events.ListByCopy(ctx, input.CopyID)
	if err != nil {
		s.logger.Error().Err(err).Str("copy_id", input.CopyID.String()).Msg("failed to list copy events")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &GetCopyHistoryOutput{Events: events}, nil
}

// GetUserHistory returns a user's events across all copies, newest first.
func (s *LendingService) GetUserHistory(ctx context.Context, input GetUserHistoryInput) (*GetUserHistoryOutput, error) {
	exists, err := s.users.Exists(ctx, input.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to check user existence")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !exists {
		return nil, domain.ErrUserNotFound
	}

	events, err := s.events.ListByUser(ctx, input.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", input.UserID.String()).Msg("failed to list user events")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &GetUserHistoryOutput{Events: events}, nil
}

// =============================================================================
// Internal helpers
// =============================================================================

// projectState derives the copy's state from its latest event and warns
// when the cached availability flag has drifted from the derivation.
func (s *LendingService) projectState(ctx context.Context, cp *domain.Copy) (domain.CopyState, error) {
	latest, err := s.latestEvent(ctx, cp)
	if err != nil {
		return domain.CopyState{}, err
	}

	state := domain.ProjectCopyState(latest)
	if state.Available != cp.Available {
		s.logger.Warn().
			Str("copy_id", cp.ID.String()).
			Bool("cached", cp.Available).
			Bool("projected", state.Available).
			Msg("cached availability flag disagrees with event log")
	}

	return state, nil
}

// latestEvent loads the copy's most recent event. A registered copy
// always has one; a missing log is logged loudly and treated as an
// unavailable copy by the projector.
func (s *LendingService) latestEvent(ctx context.Context, cp *domain.Copy) (*domain.LendingEvent, error) {
	latest, err := s.events.LatestByCopy(ctx, cp.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoEvents) {
			s.logger.Error().
				Str("copy_id", cp.ID.String()).
				Msg("copy has no events, registration invariant violated")
			return nil, nil
		}
		s.logger.Error().Err(err).Str("copy_id", cp.ID.String()).Msg("failed to get latest event")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return latest, nil
}

// invalidate drops the cached read-model values touched by a lending
// mutation. Cache failures are logged and swallowed; the cache is an
// optimization, not a source of truth.
func (s *LendingService) invalidate(ctx context.Context, cp *domain.Copy) {
	if s.cache == nil {
		return
	}

	keys := repository.CacheKey{}
	for _, key := range []string{
		keys.CopyState(cp.ID.String()),
		keys.BookAvailability(cp.BookID.String()),
	} {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to invalidate cache key")
		}
	}
}

func (s *LendingService) countBorrow(outcome string) {
	if s.metrics != nil {
		if outcome == "" {
			outcome = "success"
		}
		s.metrics.BorrowAttempts.WithLabelValues(outcome).Inc()
	}
}

func (s *LendingService) countReturn(outcome string) {
	if s.metrics != nil {
		if outcome == "" {
			outcome = "success"
		}
		s.metrics.ReturnAttempts.WithLabelValues(outcome).Inc()
	}
}

func (s *LendingService) countConflict(operation string) {
	if s.metrics != nil {
		s.metrics.VersionConflicts.WithLabelValues(operation).Inc()
	}
}

func (s *LendingService) countEvent(action domain.EventAction) {
	if s.metrics != nil {
		s.metrics.EventsAppended.WithLabelValues(string(action)).Inc()
	}
}
