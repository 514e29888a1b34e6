package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventAction identifies what happened to a copy.
type EventAction string

const (
	// ActionRegistered records the creation of a copy. Every copy has
	// exactly one registered event, synthesized when the copy is added.
	ActionRegistered EventAction = "registered"

	// ActionBorrowed records a user taking the copy out.
	ActionBorrowed EventAction = "borrowed"

	// ActionReturned records the current holder bringing the copy back.
	ActionReturned EventAction = "returned"
)

// Valid reports whether the action is one of the known values.
func (a EventAction) Valid() bool {
	switch a {
	case ActionRegistered, ActionBorrowed, ActionReturned:
		return true
	}
	return false
}

// LendingEvent is an immutable fact recording an action applied to a
// copy by a user at a point in time. Events are appended exactly once
// and never updated or removed; the full history of a copy is the
// ordered sequence of its events.
type LendingEvent struct {
	// ID is the unique identifier for the event.
	ID uuid.UUID `json:"id"`

	// CopyID references the copy the event belongs to.
	CopyID uuid.UUID `json:"copy_id"`

	// UserID references the acting user.
	UserID uuid.UUID `json:"user_id"`

	// Action is what happened.
	Action EventAction `json:"action"`

	// Timestamp is when the event was recorded, in UTC.
	Timestamp time.Time `json:"timestamp"`

	// Seq is the per-copy sequence number assigned at append time.
	// Timestamps alone do not give a deterministic order when two
	// events share the same instant; Seq breaks the tie.
	Seq int64 `json:"-"`
}

// NewLendingEvent creates an event for the given copy, user and action.
// Seq is assigned by the storage layer inside the append transaction.
func NewLendingEvent(copyID, userID uuid.UUID, action EventAction, at time.Time) *LendingEvent {
	return &LendingEvent{
		ID:        uuid.New(),
		CopyID:    copyID,
		UserID:    userID,
		Action:    action,
		Timestamp: at.UTC(),
	}
}

// Before reports whether e was recorded before other, using the
// per-copy sequence number as the tie-break for equal timestamps.
func (e *LendingEvent) Before(other *LendingEvent) bool {
	if e.Timestamp.Equal(other.Timestamp) {
		return e.Seq < other.Seq
	}
	return e.Timestamp.Before(other.Timestamp)
}
