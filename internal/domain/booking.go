package domain

import "time"

// Category is the inventory classification a unit belongs to.
type Category string

const (
	CategoryMatrimonial Category = "Matrimonial"
	CategoryJunior      Category = "Junior"
	CategoryFamiliar    Category = "Familiar"
	CategoryHabitacion  Category = "Habitación"
	CategoryPasadia     Category = "Pasadía"
)

// PartySpec is the composition of one unit's occupants. Children 0-5 do
// not count toward occupancy; children 6-10 count half.
type PartySpec struct {
	Adults       int
	Children0to5 int
	Children6to10 int
}

// OccupancyScore is adults + 0.5 per child aged 6-10.
func (p PartySpec) OccupancyScore() float64 {
	return float64(p.Adults) + 0.5*float64(p.Children6to10)
}

// BookingRequest is one booking attempt as handed over by the
// conversational layer. Immutable once constructed; consumed once.
type BookingRequest struct {
	AttemptID    string // uuid, assigned at construction
	CustomerKey  string // phone-derived key, unique per customer
	CustomerName string
	Email        string
	Phone        string
	CheckIn      time.Time
	CheckOut     time.Time
	Parties      []PartySpec // one entry per requested unit
	Category     Category
	Package      string
	PaymentRef   string
	PaidAmount   int64 // what the customer claims to have paid, cents
	PaidOn       time.Time
	Source       PaymentSource
	TotalPrice   int64 // derived server-side, cents
}

// RoomAllocation is a unit picked from a live availability snapshot.
// Never persisted: external inventory changes outside our control.
type RoomAllocation struct {
	UnitID   string
	Category Category
	MinOcc   float64
	MaxOcc   float64 // 0 means unbounded (day pass)
}

// Outcome classifies how a booking attempt ended. Recoverable conditions
// are outcomes, not errors: the caller relays them to the customer or to
// the retry scheduler instead of failing the request.
type Outcome string

const (
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeAlreadyBooked  Outcome = "already_booked"
	OutcomeMissingFields  Outcome = "missing_fields"
	OutcomePaymentPending Outcome = "payment_pending" // ledger has no matching record yet
	OutcomeInsufficient   Outcome = "insufficient_payment"
	OutcomeNoAvailability Outcome = "no_availability"
)

// BookingResult is what the orchestrator returns for one attempt.
type BookingResult struct {
	Outcome       Outcome
	BookingRef    string   // set when Outcome is confirmed or already_booked
	Units         []string // committed unit ids
	MissingFields []string
	Alternatives  []string // human-readable category suggestions
	Detail        string
}
