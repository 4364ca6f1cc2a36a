package domain

import "time"

// PaymentSource is the channel a payment arrived through. Closed set;
// reservation semantics differ per variant (see Ledger.Validate).
type PaymentSource string

const (
	SourceBankTransfer PaymentSource = "bank_transfer"
	SourceCard         PaymentSource = "card"
)

// PaymentRecord is one row of the payment ledger. Amounts are in cents.
// Used never exceeds Credit; BookingRef is set only after the external
// booking commit succeeded.
type PaymentRecord struct {
	ID         int64
	Source     PaymentSource
	Reference  string // transfer id or card authorization code
	Credit     int64
	Used       int64
	BookingRef *string
	PaidAt     time.Time
	CreatedAt  time.Time
}

// Available returns the balance still open for reservation.
func (p PaymentRecord) Available() int64 { return p.Credit - p.Used }

// MatchCriteria locates a ledger record. Reference takes precedence when
// set; otherwise amount plus payment date are matched within DateSlack.
type MatchCriteria struct {
	Reference string
	Amount    int64
	PaidOn    time.Time
	DateSlack time.Duration
	Source    PaymentSource
}
