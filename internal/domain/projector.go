package domain

import (
	"github.com/google/uuid"
)

// CopyState is the projected current state of a copy: whether it can
// be borrowed and, if not, who holds it.
type CopyState struct {
	// Available reports whether the copy can currently be borrowed.
	Available bool

	// HolderID is the current holder when the copy is unavailable,
	// nil otherwise.
	HolderID *uuid.UUID
}

// ProjectCopyState derives the current state of a copy from its latest
// event. The rule is the single source of truth for availability:
//
//   - latest action registered or returned => available, no holder
//   - latest action borrowed               => unavailable, holder is
//     that event's user
//
// The function is pure; it never consults the copy's cached Available
// flag, which exists only as a query optimization and must agree with
// this derivation.
func ProjectCopyState(latest *LendingEvent) CopyState {
	if latest == nil {
		// A copy without events violates the registration invariant;
		// treat it as unavailable so it cannot be borrowed.
		return CopyState{Available: false}
	}

	if latest.Action == ActionBorrowed {
		holder := latest.UserID
		return CopyState{
			Available: false,
			HolderID:  &holder,
		}
	}

	return CopyState{Available: true}
}

// LatestEvent returns the most recent event from a slice, using the
// timestamp order with the per-copy sequence number as tie-break.
// Returns nil for an empty slice.
func LatestEvent(events []*LendingEvent) *LendingEvent {
	var latest *LendingEvent
	for _, e := range events {
		if latest == nil || latest.Before(e) {
			latest = e
		}
	}
	return latest
}

// ValidateReturn checks the preconditions for a return against the
// latest event: the copy must be borrowed and the requesting user must
// be its current holder.
func ValidateReturn(latest *LendingEvent, userID uuid.UUID) error {
	state := ProjectCopyState(latest)
	if state.Available {
		return ErrCopyAlreadyAvailable
	}
	if state.HolderID == nil || *state.HolderID != userID {
		return ErrNotCurrentHolder
	}
	return nil
}
