package domain

import "time"

// RetryStage is one phase of the staged retry schedule.
type RetryStage int

const (
	StageOne RetryStage = 1
	StageTwo RetryStage = 2
	StageThree RetryStage = 3
)

// StagePlan fixes the interval and attempt cap of one stage.
type StagePlan struct {
	Interval time.Duration
	MaxAttempts int
}

// DefaultSchedule is 5m×6, 30m×4, 60m×6, roughly 8.5 hours of automated
// retries before a human takes over.
var DefaultSchedule = map[RetryStage]StagePlan{
	StageOne:   {Interval: 5 * time.Minute, MaxAttempts: 6},
	StageTwo:   {Interval: 30 * time.Minute, MaxAttempts: 4},
	StageThree: {Interval: 60 * time.Minute, MaxAttempts: 6},
}

// RetryState is the durable record of a customer whose payment has not
// been confirmed yet. Re-loaded from storage before every attempt; the
// in-memory copy is never trusted across ticks. Version supports
// optimistic compare-and-swap on save.
type RetryState struct {
	CustomerKey       string
	Stage             RetryStage
	Attempts          int // attempts within the current stage
	Request           BookingRequest
	Escalated         bool
	Distress          bool
	ClarificationSent bool // bank-transfer sub-channel question, sent once
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether the scheduler must never touch this state again.
func (s RetryState) Terminal() bool { return s.Escalated }
