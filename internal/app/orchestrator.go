package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"costamar_booking/internal/adapters/observability"
	"costamar_booking/internal/domain"
	"costamar_booking/internal/rooms"
)

// Booker is the single entry point for one booking attempt. Implemented
// by Orchestrator; the retry scheduler depends on this interface only.
type Booker interface {
	Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error)
}

// OrchestratorConfig bounds the automatic retries of one attempt.
type OrchestratorConfig struct {
	ConflictRetries  int           // re-selections after a unit-taken conflict
	CommitRetries    int           // full select→commit replays on non-conflict errors
	CommitRetryDelay time.Duration // fixed wait before such a replay
	DateSlack        time.Duration // tolerance when matching payments by amount+date
}

func (c *OrchestratorConfig) defaults() {
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = 3
	}
	if c.CommitRetries <= 0 {
		c.CommitRetries = 2
	}
	if c.CommitRetryDelay <= 0 {
		c.CommitRetryDelay = 10 * time.Second
	}
	if c.DateSlack <= 0 {
		c.DateSlack = 24 * time.Hour
	}
}

// Orchestrator runs the commit algorithm: validate input, confirm the
// payment on the ledger, pick units from a live snapshot, reserve the
// payment balance, re-check the units, and commit externally. Recoverable
// conditions come back as outcomes; only infrastructure failures are
// errors.
type Orchestrator struct {
	ledger domain.Ledger
	guard  domain.Guard
	inv    domain.Inventory
	sync   domain.LedgerSync
	cfg    OrchestratorConfig
}

func NewOrchestrator(ledger domain.Ledger, guard domain.Guard, inv domain.Inventory, sync domain.LedgerSync, cfg OrchestratorConfig) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{ledger: ledger, guard: guard, inv: inv, sync: sync, cfg: cfg}
}

func (o *Orchestrator) Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	res, err := o.book(ctx, req)
	if err != nil {
		observability.ObserveBooking("error")
	} else {
		observability.ObserveBooking(string(res.Outcome))
	}
	return res, err
}

func (o *Orchestrator) book(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	// Input first: nothing external is touched for an incomplete request.
	if missing := missingFields(req); len(missing) > 0 {
		return domain.BookingResult{
			Outcome:       domain.OutcomeMissingFields,
			MissingFields: missing,
		}, nil
	}

	// One attempt per customer at a time. A human and an automated retry
	// must never interleave on the same booking.
	release, err := o.guard.Acquire(ctx, req.CustomerKey)
	if err != nil {
		return domain.BookingResult{}, err
	}
	defer release()

	// A reference used minutes ago means this very booking already went
	// through; answer idempotently without touching the ledger.
	if req.PaymentRef != "" {
		used, err := o.guard.RecentlyUsed(ctx, req.PaymentRef)
		if err != nil {
			return domain.BookingResult{}, fmt.Errorf("cooldown check: %w", err)
		}
		if used {
			return domain.BookingResult{Outcome: domain.OutcomeAlreadyBooked,
				Detail: "la reserva con este pago ya fue procesada"}, nil
		}
	}

	// Pull fresh statement rows before looking for the payment.
	// Best-effort: a sync outage must not block a payment already synced.
	if inserted, skipped, err := o.sync.Sync(ctx); err != nil {
		log.Warn().Err(err).Str("customer", req.CustomerKey).Msg("ledger sync failed, validating against existing rows")
	} else {
		log.Debug().Int("inserted", inserted).Int("skipped", skipped).Msg("ledger sync")
	}

	criteria := domain.MatchCriteria{
		Reference: req.PaymentRef,
		Amount:    req.PaidAmount,
		PaidOn:    req.PaidOn,
		DateSlack: o.cfg.DateSlack,
		Source:    req.Source,
	}
	rec, avail, err := o.ledger.Validate(ctx, criteria, req.TotalPrice)
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return domain.BookingResult{Outcome: domain.OutcomePaymentPending,
			Detail: "el pago aún no aparece en el extracto"}, nil
	case errors.Is(err, domain.ErrInsufficientBalance):
		return domain.BookingResult{Outcome: domain.OutcomeInsufficient,
			Detail: fmt.Sprintf("el saldo disponible (%d) no cubre la reserva (%d)", avail, req.TotalPrice)}, nil
	case err != nil:
		return domain.BookingResult{}, fmt.Errorf("ledger validate: %w", err)
	}

	reserveAmount := req.TotalPrice
	if avail < reserveAmount {
		reserveAmount = avail // card partial-deposit coverage
	}

	reqs := make([]rooms.Request, len(req.Parties))
	for i, p := range req.Parties {
		reqs[i] = rooms.Request{Category: req.Category, Party: p}
	}

	excluded := map[string]bool{}
	reserved := false
	conflicts := 0
	replays := 0

	for {
		allocs, failRes, err := o.selectUnits(ctx, req, reqs, excluded)
		if err != nil {
			return domain.BookingResult{}, err
		}
		if failRes != nil {
			return *failRes, nil
		}

		// Reserve once, only after a unit was found. Never twice for the
		// same request.
		if !reserved {
			if err := o.reserve(ctx, rec.ID, reserveAmount); err != nil {
				switch {
				case errors.Is(err, domain.ErrInsufficientBalance):
					return domain.BookingResult{Outcome: domain.OutcomeInsufficient,
						Detail: "el saldo fue tomado por otra reserva"}, nil
				case errors.Is(err, domain.ErrNotFound):
					return domain.BookingResult{Outcome: domain.OutcomePaymentPending}, nil
				default:
					return domain.BookingResult{}, fmt.Errorf("ledger reserve: %w", err)
				}
			}
			reserved = true
		}

		// The external inventory mutates under us: confirm the picked
		// units still exist right before the commit call, re-selecting
		// once if one vanished.
		allocs, failRes, err = o.revalidate(ctx, req, reqs, allocs, excluded)
		if err != nil {
			return domain.BookingResult{}, err
		}
		if failRes != nil {
			return *failRes, nil
		}

		units := make([]string, len(allocs))
		for i, a := range allocs {
			units[i] = a.UnitID
		}

		ref, err := o.inv.Commit(ctx, units, req.Parties, req)
		if err == nil {
			// Post-commit ordering: mark the reference and write the
			// booking ref back only after the external commit. A crash
			// in between leaves a self-healing orphan reservation, not
			// a double-spend.
			if req.PaymentRef != "" {
				if err := o.guard.MarkReference(ctx, req.PaymentRef); err != nil {
					log.Error().Err(err).Str("ref", req.PaymentRef).Msg("cooldown mark failed after commit")
				}
			}
			if err := o.ledger.AttachBookingRef(ctx, rec.ID, ref); err != nil {
				log.Error().Err(err).Int64("payment", rec.ID).Str("booking", ref).
					Msg("booking ref write-back failed; record left for orphan self-heal")
			}
			log.Info().Str("customer", req.CustomerKey).Str("booking", ref).
				Strs("units", units).Msg("booking confirmed")
			return domain.BookingResult{Outcome: domain.OutcomeConfirmed, BookingRef: ref, Units: units}, nil
		}

		if errors.Is(err, domain.ErrReservationConflict) {
			observability.CommitConflicts.Inc()
			conflicts++
			if conflicts > o.cfg.ConflictRetries {
				return domain.BookingResult{}, fmt.Errorf("commit conflicts exhausted: %w", err)
			}
			for _, u := range units {
				excluded[u] = true
			}
			log.Warn().Strs("units", units).Int("attempt", conflicts).Msg("unit taken during commit, reselecting")
			continue
		}

		replays++
		if replays > o.cfg.CommitRetries {
			return domain.BookingResult{}, fmt.Errorf("commit failed: %w", err)
		}
		log.Warn().Err(err).Int("replay", replays).Msg("commit failed, replaying after delay")
		if !sleepCtx(ctx, o.cfg.CommitRetryDelay) {
			return domain.BookingResult{}, ctx.Err()
		}
	}
}

// selectUnits fetches a fresh snapshot and allocates every requested
// unit. A non-nil BookingResult is a customer-facing refusal with
// alternatives; error means infrastructure trouble.
func (o *Orchestrator) selectUnits(ctx context.Context, req domain.BookingRequest, reqs []rooms.Request, excluded map[string]bool) ([]domain.RoomAllocation, *domain.BookingResult, error) {
	snapshot, err := o.inv.Availability(ctx, req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, nil, fmt.Errorf("availability: %w", err)
	}

	allocs, err := rooms.SelectMany(reqs, snapshot, excluded)
	if err == nil {
		return allocs, nil, nil
	}

	var ce *rooms.CapacityError
	if errors.As(err, &ce) {
		return nil, &domain.BookingResult{
			Outcome:      domain.OutcomeNoAvailability,
			Alternatives: ce.Suggestions,
			Detail:       ce.Error(),
		}, nil
	}
	var me *rooms.MultiError
	if errors.As(err, &me) {
		return nil, &domain.BookingResult{
			Outcome:      domain.OutcomeNoAvailability,
			Alternatives: me.Alternatives,
			Detail:       "no hay suficientes unidades de la categoría solicitada",
		}, nil
	}
	if errors.Is(err, domain.ErrNoAvailability) {
		return nil, &domain.BookingResult{
			Outcome:      domain.OutcomeNoAvailability,
			Alternatives: rooms.CombinedAlternatives(req.Parties),
			Detail:       "no hay disponibilidad en la categoría solicitada",
		}, nil
	}
	return nil, nil, err
}

// revalidate re-reads availability and keeps the allocation only if
// every unit is still open. When one vanished, selection is retried a
// single time with the vanished units excluded.
func (o *Orchestrator) revalidate(ctx context.Context, req domain.BookingRequest, reqs []rooms.Request, allocs []domain.RoomAllocation, excluded map[string]bool) ([]domain.RoomAllocation, *domain.BookingResult, error) {
	snapshot, err := o.inv.Availability(ctx, req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, nil, fmt.Errorf("revalidate availability: %w", err)
	}

	vanished := false
	for _, a := range allocs {
		if _, ok := snapshot[a.UnitID]; !ok {
			excluded[a.UnitID] = true
			vanished = true
		}
	}
	if !vanished {
		return allocs, nil, nil
	}

	log.Warn().Str("customer", req.CustomerKey).Msg("selected unit vanished before commit, reselecting once")
	fresh, err := rooms.SelectMany(reqs, snapshot, excluded)
	if err != nil {
		return nil, &domain.BookingResult{
			Outcome:      domain.OutcomeNoAvailability,
			Alternatives: rooms.CombinedAlternatives(req.Parties),
			Detail:       "la disponibilidad cambió durante la reserva",
		}, nil
	}
	return fresh, nil, nil
}

func (o *Orchestrator) reserve(ctx context.Context, recordID, amount int64) error {
	err := o.ledger.Reserve(ctx, recordID, amount)
	switch {
	case err == nil:
		observability.ObserveReserve("ok")
	case errors.Is(err, domain.ErrInsufficientBalance):
		observability.ObserveReserve("insufficient")
	case errors.Is(err, domain.ErrNotFound):
		observability.ObserveReserve("not_found")
	default:
		observability.ObserveReserve("error")
	}
	return err
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
