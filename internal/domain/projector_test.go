package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestProjectCopyState(t *testing.T) {
	copyID := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	tests := []struct {
		name          string
		latest        *LendingEvent
		wantAvailable bool
		wantHolder    *uuid.UUID
	}{
		{
			name:          "no events means unavailable",
			latest:        nil,
			wantAvailable: false,
		},
		{
			name:          "registered copy is available",
			latest:        NewLendingEvent(copyID, userID, ActionRegistered, now),
			wantAvailable: true,
		},
		{
			name:          "borrowed copy is held by the borrower",
			latest:        NewLendingEvent(copyID, userID, ActionBorrowed, now),
			wantAvailable: false,
			wantHolder:    &userID,
		},
		{
			name:          "returned copy is available again",
			latest:        NewLendingEvent(copyID, userID, ActionReturned, now),
			wantAvailable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := ProjectCopyState(tt.latest)
			require.Equal(t, tt.wantAvailable, state.Available)
			if tt.wantHolder == nil {
				require.Nil(t, state.HolderID)
			} else {
				require.NotNil(t, state.HolderID)
				require.Equal(t, *tt.wantHolder, *state.HolderID)
			}
		})
	}
}

func TestLatestEvent(t *testing.T) {
	copyID := uuid.New()
	userID := uuid.New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	reg := NewLendingEvent(copyID, userID, ActionRegistered, base)
	reg.Seq = 1
	borrow := NewLendingEvent(copyID, userID, ActionBorrowed, base.Add(time.Hour))
	borrow.Seq = 2

	require.Nil(t, LatestEvent(nil))
	require.Equal(t, borrow, LatestEvent([]*LendingEvent{reg, borrow}))
	require.Equal(t, borrow, LatestEvent([]*LendingEvent{borrow, reg}))
}

func TestLatestEvent_TieBreakBySeq(t *testing.T) {
	copyID := uuid.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	borrow := NewLendingEvent(copyID, uuid.New(), ActionBorrowed, at)
	borrow.Seq = 2
	ret := NewLendingEvent(copyID, uuid.New(), ActionReturned, at)
	ret.Seq = 3

	// Identical timestamps: the higher sequence number wins,
	// regardless of slice order.
	require.Equal(t, ret, LatestEvent([]*LendingEvent{ret, borrow}))
	require.Equal(t, ret, LatestEvent([]*LendingEvent{borrow, ret}))
}

func TestValidateReturn(t *testing.T) {
	copyID := uuid.New()
	holder := uuid.New()
	stranger := uuid.New()
	now := time.Now().UTC()

	tests := []struct {
		name    string
		latest  *LendingEvent
		userID  uuid.UUID
		wantErr error
	}{
		{
			name:    "holder can return",
			latest:  NewLendingEvent(copyID, holder, ActionBorrowed, now),
			userID:  holder,
			wantErr: nil,
		},
		{
			name:    "non-holder cannot return",
			latest:  NewLendingEvent(copyID, holder, ActionBorrowed, now),
			userID:  stranger,
			wantErr: ErrNotCurrentHolder,
		},
		{
			name:    "available copy cannot be returned",
			latest:  NewLendingEvent(copyID, holder, ActionReturned, now),
			userID:  holder,
			wantErr: ErrCopyAlreadyAvailable,
		},
		{
			name:    "freshly registered copy cannot be returned",
			latest:  NewLendingEvent(copyID, holder, ActionRegistered, now),
			userID:  holder,
			wantErr: ErrCopyAlreadyAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReturn(tt.latest, tt.userID)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// TestProjectCopyState_AgreesWithLog generates random well-formed event
// logs and checks that the projection always matches the last action:
// the copy is available exactly when the newest event is not a borrow,
// and the holder is the user of the newest borrow otherwise.
func TestProjectCopyState_AgreesWithLog(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		copyID := uuid.New()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		events := []*LendingEvent{}
		reg := NewLendingEvent(copyID, uuid.New(), ActionRegistered, base)
		reg.Seq = 1
		events = append(events, reg)

		// Alternate borrow/return for a random number of rounds,
		// sometimes reusing the same timestamp to exercise the
		// sequence-number tie-break.
		rounds := rapid.IntRange(0, 20).Draw(t, "rounds")
		at := base
		seq := int64(1)
		var lastAction EventAction = ActionRegistered
		var lastUser uuid.UUID

		for i := 0; i < rounds; i++ {
			if rapid.Bool().Draw(t, "advanceClock") {
				at = at.Add(time.Minute)
			}
			seq++

			var e *LendingEvent
			if lastAction == ActionBorrowed {
				e = NewLendingEvent(copyID, lastUser, ActionReturned, at)
				lastAction = ActionReturned
			} else {
				lastUser = uuid.New()
				e = NewLendingEvent(copyID, lastUser, ActionBorrowed, at)
				lastAction = ActionBorrowed
			}
			e.Seq = seq
			events = append(events, e)
		}

		// Shuffle so the projection cannot rely on insertion order.
		shuffled := rapid.Permutation(events).Draw(t, "order")

		state := ProjectCopyState(LatestEvent(shuffled))
		require.Equal(t, lastAction != ActionBorrowed, state.Available)
		if lastAction == ActionBorrowed {
			require.NotNil(t, state.HolderID)
			require.Equal(t, lastUser, *state.HolderID)
		} else {
			require.Nil(t, state.HolderID)
		}
	})
}
