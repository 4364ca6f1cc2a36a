package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpserver "costamar_booking/internal/adapters/http_server"
	"costamar_booking/internal/app"
	"costamar_booking/internal/domain"
)

type bookerFunc func(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error)

func (f bookerFunc) Book(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	return f(ctx, req)
}

type memStore struct{ states map[string]domain.RetryState }

func (s *memStore) Save(ctx context.Context, st *domain.RetryState) error {
	if st.Version == 0 {
		if _, ok := s.states[st.CustomerKey]; ok {
			return domain.ErrStaleState
		}
	}
	st.Version++
	s.states[st.CustomerKey] = *st
	return nil
}

func (s *memStore) Load(ctx context.Context, key string) (domain.RetryState, error) {
	st, ok := s.states[key]
	if !ok {
		return domain.RetryState{}, domain.ErrNotFound
	}
	return st, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	delete(s.states, key)
	return nil
}

func (s *memStore) ListPending(ctx context.Context) ([]domain.RetryState, error) { return nil, nil }

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, key, msg string) error            { return nil }
func (noopNotifier) SetHandoffStatus(ctx context.Context, key, status string) error { return nil }

func newTestServer(book bookerFunc, store *memStore) *httptest.Server {
	sched := app.NewScheduler(book, store, noopNotifier{}, app.SchedulerConfig{
		Schedule: map[domain.RetryStage]domain.StagePlan{
			domain.StageOne: {Interval: time.Hour, MaxAttempts: 6},
		},
	})
	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Booker: book, Sched: sched, Store: store})
	return httptest.NewServer(srv.Mux())
}

const bookingBody = `{
	"customer_key": "cust-1",
	"name": "Ana Ruiz",
	"email": "ana@example.com",
	"phone": "+57 300 555 0101",
	"check_in": "2026-09-10",
	"check_out": "2026-09-13",
	"parties": [{"adults": 2}],
	"category": "Matrimonial",
	"payment_ref": "TRF-42",
	"source": "bank_transfer",
	"total_price_cents": 30000
}`

func TestCreateBookingConfirmed(t *testing.T) {
	store := &memStore{states: map[string]domain.RetryState{}}
	ts := newTestServer(func(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
		if req.CustomerKey != "cust-1" || req.Category != domain.CategoryMatrimonial {
			t.Errorf("request decoded wrong: %+v", req)
		}
		return domain.BookingResult{Outcome: domain.OutcomeConfirmed, BookingRef: "BK-55", Units: []string{"4"}}, nil
	}, store)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/bookings", "application/json", strings.NewReader(bookingBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		Outcome    string `json:"outcome"`
		BookingRef string `json:"booking_ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Outcome != "confirmed" || out.BookingRef != "BK-55" {
		t.Fatalf("body = %+v", out)
	}
}

func TestCreateBookingPendingEnqueuesRetry(t *testing.T) {
	store := &memStore{states: map[string]domain.RetryState{}}
	ts := newTestServer(func(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
		return domain.BookingResult{Outcome: domain.OutcomePaymentPending}, nil
	}, store)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/bookings", "application/json", strings.NewReader(bookingBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if _, ok := store.states["cust-1"]; !ok {
		t.Fatal("pending payment did not create a retry state")
	}

	// and the state is now visible on the retry endpoint
	resp, err = http.Get(ts.URL + "/v1/customers/cust-1/retry")
	if err != nil {
		t.Fatalf("get retry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", resp.StatusCode)
	}
}

func TestCreateBookingBadDates(t *testing.T) {
	store := &memStore{states: map[string]domain.RetryState{}}
	ts := newTestServer(func(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
		t.Fatal("booker reached with an invalid request")
		return domain.BookingResult{}, nil
	}, store)
	defer ts.Close()

	body := strings.Replace(bookingBody, "2026-09-10", "10/09/2026", 1)
	resp, err := http.Post(ts.URL+"/v1/bookings", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestDistressUnknownCustomer(t *testing.T) {
	store := &memStore{states: map[string]domain.RetryState{}}
	ts := newTestServer(func(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
		return domain.BookingResult{}, nil
	}, store)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/customers/ghost/distress", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
