package domain

import (
	"context"
	"time"
)

type Ledger interface {
	// Validate locates a record matching the criteria with enough open
	// balance. Bank transfers must cover the full amount; card
	// authorizations tolerate partial-deposit coverage (half). Read-only.
	Validate(ctx context.Context, c MatchCriteria, required int64) (PaymentRecord, int64, error)

	// Reserve atomically increments used by amount if the balance allows.
	// Linearizable per record: concurrent reserves never jointly exceed
	// credit. Returns ErrInsufficientBalance or ErrNotFound.
	Reserve(ctx context.Context, recordID int64, amount int64) error

	// AttachBookingRef writes the external booking reference back onto the
	// record after a successful commit.
	AttachBookingRef(ctx context.Context, recordID int64, ref string) error

	// ResetOrphan clears used on a record that was reserved but never got
	// a booking reference. Heuristic; see Validate callers.
	ResetOrphan(ctx context.Context, recordID int64) error
}

type RetryStore interface {
	// Save persists the state. A non-zero Version must match the stored
	// row or ErrStaleState is returned; Version is bumped on success.
	Save(ctx context.Context, s *RetryState) error
	Load(ctx context.Context, customerKey string) (RetryState, error)
	Delete(ctx context.Context, customerKey string) error
	// ListPending returns all non-escalated states, for resume-on-boot.
	ListPending(ctx context.Context) ([]RetryState, error)
}

type Guard interface {
	// Acquire takes the per-customer exclusive section. Returns
	// ErrDuplicateInFlight when another attempt holds it.
	Acquire(ctx context.Context, customerKey string) (release func(), err error)
	// RecentlyUsed reports whether ref was marked within the cooldown window.
	RecentlyUsed(ctx context.Context, ref string) (bool, error)
	// MarkReference records ref as used; entries expire after the window.
	MarkReference(ctx context.Context, ref string) error
}

type Inventory interface {
	// Availability returns a live snapshot: unit id -> raw identifier.
	Availability(ctx context.Context, from, to time.Time) (map[string]string, error)
	// Commit books all units atomically. Returns the booking reference,
	// ErrReservationConflict when a unit was taken meanwhile, or another
	// error for everything else.
	Commit(ctx context.Context, units []string, parties []PartySpec, req BookingRequest) (string, error)
}

type LedgerSync interface {
	// Sync pulls fresh statement rows into the ledger. Called before
	// Validate; the fetch itself lives with the external collaborator.
	Sync(ctx context.Context) (inserted, skipped int, err error)
}

type Notifier interface {
	Notify(ctx context.Context, customerKey, message string) error
	SetHandoffStatus(ctx context.Context, customerKey, status string) error
}
