package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"costamar_booking/internal/domain"
)

// ---- fakes ----

type fakeLedger struct {
	mu      sync.Mutex
	records map[int64]*domain.PaymentRecord
}

func newFakeLedger(recs ...domain.PaymentRecord) *fakeLedger {
	l := &fakeLedger{records: map[int64]*domain.PaymentRecord{}}
	for _, r := range recs {
		rc := r
		l.records[r.ID] = &rc
	}
	return l
}

func (l *fakeLedger) get(id int64) domain.PaymentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.records[id]
}

func (l *fakeLedger) Validate(ctx context.Context, c domain.MatchCriteria, required int64) (domain.PaymentRecord, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if c.Reference != "" && r.Reference != c.Reference {
			continue
		}
		threshold := required
		if r.Source == domain.SourceCard {
			threshold = required / 2
		}
		avail := r.Credit - r.Used
		if avail < threshold {
			return *r, avail, domain.ErrInsufficientBalance
		}
		return *r, avail, nil
	}
	return domain.PaymentRecord{}, 0, domain.ErrPaymentNotFound
}

func (l *fakeLedger) Reserve(ctx context.Context, recordID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.records[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Credit-r.Used < amount {
		return domain.ErrInsufficientBalance
	}
	r.Used += amount
	return nil
}

func (l *fakeLedger) AttachBookingRef(ctx context.Context, recordID int64, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.records[recordID]; ok {
		r.BookingRef = &ref
	}
	return nil
}

func (l *fakeLedger) ResetOrphan(ctx context.Context, recordID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.records[recordID]; ok && r.BookingRef == nil {
		r.Used = 0
	}
	return nil
}

type fakeGuard struct {
	mu       sync.Mutex
	locks    map[string]bool
	cooldown map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{locks: map[string]bool{}, cooldown: map[string]bool{}}
}

func (g *fakeGuard) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[key] {
		return nil, domain.ErrDuplicateInFlight
	}
	g.locks[key] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.locks, key)
	}, nil
}

func (g *fakeGuard) RecentlyUsed(ctx context.Context, ref string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown[ref], nil
}

func (g *fakeGuard) MarkReference(ctx context.Context, ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown[ref] = true
	return nil
}

// fakeInventory serves availability snapshots and consumes units on
// commit, the way the real reservation system would.
type fakeInventory struct {
	mu         sync.Mutex
	units      map[string]string
	commits    [][]string
	refSeq     int
	failWith   []error // consumed one per Commit call before normal behavior
	availCalls int
	onAvail    func(call int, units map[string]string) // mutate between snapshots
}

func newFakeInventory(unitIDs ...string) *fakeInventory {
	inv := &fakeInventory{units: map[string]string{}}
	for _, u := range unitIDs {
		inv.units[u] = u
	}
	return inv
}

func (f *fakeInventory) Availability(ctx context.Context, from, to time.Time) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availCalls++
	if f.onAvail != nil {
		f.onAvail(f.availCalls, f.units)
	}
	out := make(map[string]string, len(f.units))
	for k, v := range f.units {
		out[k] = v
	}
	return out, nil
}

func (f *fakeInventory) Commit(ctx context.Context, units []string, parties []domain.PartySpec, req domain.BookingRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failWith) > 0 {
		err := f.failWith[0]
		f.failWith = f.failWith[1:]
		if err != nil {
			return "", err
		}
	}
	for _, u := range units {
		if _, ok := f.units[u]; !ok {
			return "", domain.ErrReservationConflict
		}
	}
	for _, u := range units {
		delete(f.units, u)
	}
	f.commits = append(f.commits, units)
	f.refSeq++
	return fmt.Sprintf("BK-%03d", f.refSeq), nil
}

func (f *fakeInventory) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

type fakeSync struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSync) Sync(ctx context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, 0, nil
}

func (f *fakeSync) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
	handoffs map[string]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{messages: map[string][]string{}, handoffs: map[string]string{}}
}

func (n *fakeNotifier) Notify(ctx context.Context, key, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[key] = append(n.messages[key], msg)
	return nil
}

func (n *fakeNotifier) SetHandoffStatus(ctx context.Context, key, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handoffs[key] = status
	return nil
}

func (n *fakeNotifier) sent(key string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[key]...)
}

func (n *fakeNotifier) handoff(key string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handoffs[key]
}

// fakeStore is an in-memory RetryStore with the same optimistic-version
// behavior as the MySQL one, recording every saved snapshot.
type fakeStore struct {
	mu     sync.Mutex
	states map[string]domain.RetryState
	saves  []domain.RetryState
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: map[string]domain.RetryState{}}
}

func (s *fakeStore) Save(ctx context.Context, st *domain.RetryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, exists := s.states[st.CustomerKey]
	if st.Version == 0 {
		if exists {
			return domain.ErrStaleState
		}
		st.Version = 1
	} else {
		if !exists || cur.Version != st.Version {
			return domain.ErrStaleState
		}
		st.Version++
	}
	st.UpdatedAt = time.Now()
	s.states[st.CustomerKey] = *st
	s.saves = append(s.saves, *st)
	return nil
}

func (s *fakeStore) Load(ctx context.Context, key string) (domain.RetryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		return domain.RetryState{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

func (s *fakeStore) ListPending(ctx context.Context) ([]domain.RetryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RetryState
	for _, st := range s.states {
		if !st.Escalated {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *fakeStore) history() []domain.RetryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RetryState(nil), s.saves...)
}

// fakeBooker runs a script of results, then repeats the last one.
type fakeBooker struct {
	mu     sync.Mutex
	script []domain.BookingResult
	calls  int
}

func (b *fakeBooker) Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	i := b.calls - 1
	if i >= len(b.script) {
		i = len(b.script) - 1
	}
	return b.script[i], nil
}

func (b *fakeBooker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
