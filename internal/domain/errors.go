package domain

import "errors"

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.)
// and are expected outcomes of lending operations, not faults.

var (
	// ===========================================
	// Catalog Errors
	// ===========================================

	// ErrBookNotFound indicates the requested book does not exist or
	// has been soft-deleted.
	ErrBookNotFound = errors.New("book not found")

	// ErrCopyNotFound indicates the requested copy does not exist or
	// has been soft-deleted.
	ErrCopyNotFound = errors.New("copy not found")

	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same email exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ===========================================
	// Lending Errors
	// ===========================================

	// ErrCopyUnavailable indicates a borrow attempt against a copy
	// that is already borrowed.
	ErrCopyUnavailable = errors.New("copy is not available")

	// ErrCopyAlreadyAvailable indicates a return attempt against a
	// copy that is not borrowed.
	ErrCopyAlreadyAvailable = errors.New("copy is already available")

	// ErrNotCurrentHolder indicates a return attempt by a user who is
	// not the copy's current holder.
	ErrNotCurrentHolder = errors.New("user is not the current holder of the copy")

	// ErrVersionConflict indicates a concurrent mutation won the race:
	// the version token observed at read time no longer matches the
	// one in storage at commit time.
	ErrVersionConflict = errors.New("version conflict: entity was modified concurrently")

	// ===========================================
	// Event Log Errors
	// ===========================================

	// ErrNoEvents indicates a copy has no events, which violates the
	// invariant that every copy carries at least its registered event.
	ErrNoEvents = errors.New("copy has no lending events")
)
