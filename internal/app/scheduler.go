package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"costamar_booking/internal/adapters/observability"
	"costamar_booking/internal/domain"
)

// SchedulerConfig tunes the staged retry loop. Zero values fall back to
// the production schedule.
type SchedulerConfig struct {
	Schedule      map[domain.RetryStage]domain.StagePlan
	MaxConcurrent int64  // cap on attempts running at once across customers
	OperatorKey   string // notification target for escalations
}

func (c *SchedulerConfig) defaults() {
	if c.Schedule == nil {
		c.Schedule = domain.DefaultSchedule
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.OperatorKey == "" {
		c.OperatorKey = "operations"
	}
}

// Scheduler keeps a paid-but-unbooked customer from being abandoned: one
// background worker per pending customer re-attempts the booking on a
// staged timetable and hands the case to a human when the schedule runs
// out or the customer signals distress. State lives in durable storage
// and is re-loaded before every attempt, so a process restart only
// delays a retry, never loses one.
type Scheduler struct {
	booker Booker
	store  domain.RetryStore
	notif  domain.Notifier
	cfg    SchedulerConfig
	sem    *semaphore.Weighted

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func NewScheduler(b Booker, store domain.RetryStore, notif domain.Notifier, cfg SchedulerConfig) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		booker:  b,
		store:   store,
		notif:   notif,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		running: map[string]bool{},
	}
}

// Enqueue registers a customer whose payment could not be confirmed and
// starts the retry worker. Idempotent: a customer already pending keeps
// their existing state and worker.
func (s *Scheduler) Enqueue(ctx context.Context, req domain.BookingRequest) error {
	st := domain.RetryState{
		CustomerKey: req.CustomerKey,
		Stage:       domain.StageOne,
		Request:     req,
	}
	if err := s.store.Save(ctx, &st); err != nil {
		if !errors.Is(err, domain.ErrStaleState) {
			return fmt.Errorf("enqueue retry: %w", err)
		}
		// already pending; fall through and make sure a worker runs
	}
	s.spawn(ctx, req.CustomerKey)
	return nil
}

// Resume re-launches workers for every pending state in storage. Called
// once at process start.
func (s *Scheduler) Resume(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending retries: %w", err)
	}
	for _, st := range pending {
		s.spawn(ctx, st.CustomerKey)
	}
	log.Info().Int("pending", len(pending)).Msg("retry workers resumed")
	return nil
}

// Distress short-circuits a customer's case straight to escalation, from
// any stage. The worker notices the terminal state on its next tick.
func (s *Scheduler) Distress(ctx context.Context, customerKey string) error {
	st, err := s.store.Load(ctx, customerKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if st.Terminal() {
		return nil
	}
	st.Distress = true
	s.escalate(ctx, &st, "distress")
	return nil
}

// Wait blocks until every worker has exited. For shutdown and tests.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) spawn(ctx context.Context, customerKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[customerKey] {
		return
	}
	s.running[customerKey] = true
	s.wg.Add(1)
	go s.worker(ctx, customerKey)
}

func (s *Scheduler) worker(ctx context.Context, customerKey string) {
	defer func() {
		s.mu.Lock()
		delete(s.running, customerKey)
		s.mu.Unlock()
		s.wg.Done()
	}()

	for {
		st, stop := s.load(ctx, customerKey)
		if stop {
			return
		}

		if !sleepCtx(ctx, s.plan(st.Stage).Interval) {
			return
		}

		// Never trust the pre-sleep copy: distress or another instance
		// may have moved the state while we slept.
		st, stop = s.load(ctx, customerKey)
		if stop {
			return
		}

		observability.ObserveRetry(int(st.Stage))

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		res, err := s.booker.Book(ctx, st.Request)
		s.sem.Release(1)

		if err == nil && (res.Outcome == domain.OutcomeConfirmed || res.Outcome == domain.OutcomeAlreadyBooked) {
			if derr := s.store.Delete(ctx, customerKey); derr != nil {
				log.Error().Err(derr).Str("customer", customerKey).Msg("retry state delete failed after success")
			}
			if res.BookingRef != "" {
				_ = s.notif.Notify(ctx, customerKey, "¡Listo! Tu reserva quedó confirmada: "+res.BookingRef)
			}
			log.Info().Str("customer", customerKey).Str("booking", res.BookingRef).
				Int("stage", int(st.Stage)).Msg("retry succeeded")
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("customer", customerKey).Int("stage", int(st.Stage)).Msg("retry attempt failed")
		} else {
			log.Info().Str("customer", customerKey).Str("outcome", string(res.Outcome)).
				Int("stage", int(st.Stage)).Int("attempt", st.Attempts+1).Msg("payment still unconfirmed")
		}

		st.Attempts++
		clarify := false
		if st.Attempts >= s.plan(st.Stage).MaxAttempts {
			if st.Stage == domain.StageThree {
				s.escalate(ctx, &st, "exhausted")
				return
			}
			st.Stage++
			st.Attempts = 0
			// One-time question at the first slowdown: which transfer
			// sub-channel was used. Does not block the transition.
			if st.Stage == domain.StageTwo && st.Request.Source == domain.SourceBankTransfer && !st.ClarificationSent {
				st.ClarificationSent = true
				clarify = true
			}
		}

		if err := s.store.Save(ctx, &st); err != nil {
			if errors.Is(err, domain.ErrStaleState) {
				log.Warn().Str("customer", customerKey).Msg("retry state moved underneath worker, re-loading")
				continue
			}
			log.Error().Err(err).Str("customer", customerKey).Msg("retry state save failed")
			continue
		}

		if clarify {
			if err := s.notif.Notify(ctx, customerKey,
				"Seguimos buscando tu pago. ¿La transferencia fue por cuenta bancaria o por billetera móvil?"); err != nil {
				log.Warn().Err(err).Str("customer", customerKey).Msg("clarification notify failed")
			}
		}
	}
}

// load fetches fresh state and decides whether the worker should keep
// going. stop is true when the state is gone, terminal, or flagged.
// Transient storage errors are retried a few times before giving up.
func (s *Scheduler) load(ctx context.Context, customerKey string) (domain.RetryState, bool) {
	for i := 0; i < 3; i++ {
		st, err := s.store.Load(ctx, customerKey)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RetryState{}, true
		}
		if err != nil {
			log.Error().Err(err).Str("customer", customerKey).Msg("retry state load failed")
			if !sleepCtx(ctx, 5*time.Second) {
				return domain.RetryState{}, true
			}
			continue
		}
		if st.Terminal() {
			return st, true
		}
		if st.Distress {
			s.escalate(ctx, &st, "distress")
			return st, true
		}
		return st, false
	}
	return domain.RetryState{}, true
}

func (s *Scheduler) plan(stage domain.RetryStage) domain.StagePlan {
	if p, ok := s.cfg.Schedule[stage]; ok {
		return p
	}
	return domain.DefaultSchedule[stage]
}

// escalate freezes the case and brings in a human. Terminal: the state
// stays on file with escalated=true and no worker ever touches it again.
func (s *Scheduler) escalate(ctx context.Context, st *domain.RetryState, reason string) {
	st.Escalated = true
	for i := 0; i < 3; i++ {
		err := s.store.Save(ctx, st)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrStaleState) {
			fresh, lerr := s.store.Load(ctx, st.CustomerKey)
			if lerr != nil {
				log.Error().Err(lerr).Str("customer", st.CustomerKey).Msg("escalation reload failed")
				break
			}
			fresh.Escalated = true
			fresh.Distress = fresh.Distress || st.Distress
			*st = fresh
			continue
		}
		log.Error().Err(err).Str("customer", st.CustomerKey).Msg("escalation save failed")
		break
	}

	observability.ObserveEscalation(reason)
	log.Warn().Str("customer", st.CustomerKey).Str("reason", reason).Msg("case escalated to human operator")

	if err := s.notif.SetHandoffStatus(ctx, st.CustomerKey, "human_required"); err != nil {
		log.Error().Err(err).Str("customer", st.CustomerKey).Msg("handoff status set failed")
	}
	if err := s.notif.Notify(ctx, st.CustomerKey,
		"Un asesor tomará tu reserva personalmente y te escribirá en breve."); err != nil {
		log.Error().Err(err).Str("customer", st.CustomerKey).Msg("customer escalation notify failed")
	}
	if err := s.notif.Notify(ctx, s.cfg.OperatorKey,
		fmt.Sprintf("Cliente %s requiere atención manual (%s), pago ref %q.", st.CustomerKey, reason, st.Request.PaymentRef)); err != nil {
		log.Error().Err(err).Str("customer", st.CustomerKey).Msg("operator escalation notify failed")
	}
}
