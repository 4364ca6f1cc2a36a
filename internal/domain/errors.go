package domain

import "errors"

var (
	// ErrNotFound is the generic storage miss.
	ErrNotFound = errors.New("not found")

	// ErrPaymentNotFound means the ledger has no record matching the
	// customer's claim. Recoverable: the retry scheduler takes over.
	ErrPaymentNotFound = errors.New("payment not located")

	// ErrInsufficientBalance means the matched record's open balance does
	// not cover the booking.
	ErrInsufficientBalance = errors.New("amount does not cover booking")

	// ErrNoAvailability means no unit of the requested category is open.
	ErrNoAvailability = errors.New("no availability for requested category")

	// ErrReservationConflict means a unit vanished between selection and
	// commit. Retried automatically with an alternate unit.
	ErrReservationConflict = errors.New("reservation conflict")

	// ErrDuplicateInFlight means another attempt for the same customer is
	// inside the reserve..commit window right now.
	ErrDuplicateInFlight = errors.New("booking already in flight for customer")

	// ErrStaleState means a retry-state save lost an optimistic-version race.
	ErrStaleState = errors.New("retry state version conflict")

	// ErrEscalated means the customer's case is terminal and owned by a
	// human operator.
	ErrEscalated = errors.New("case escalated to human operator")
)
