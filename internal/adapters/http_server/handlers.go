// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"costamar_booking/internal/app"
	"costamar_booking/internal/domain"
)

type Handlers struct {
	Booker app.Booker
	Sched  *app.Scheduler
	Store  domain.RetryStore
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Post("/v1/customers/{key}/distress", h.distress)
	s.mux.Get("/v1/customers/{key}/retry", h.getRetry)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// ---- request/response shapes ----

type partyIn struct {
	Adults        int `json:"adults"`
	Children0to5  int `json:"children_0_5"`
	Children6to10 int `json:"children_6_10"`
}

type bookingIn struct {
	CustomerKey string    `json:"customer_key"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	CheckIn     string    `json:"check_in"`  // 2006-01-02
	CheckOut    string    `json:"check_out"` // 2006-01-02
	Parties     []partyIn `json:"parties"`
	Category    string    `json:"category"`
	Package     string    `json:"package"`
	PaymentRef  string    `json:"payment_ref"`
	PaidAmount  int64     `json:"paid_amount_cents"`
	PaidOn      string    `json:"paid_on"` // 2006-01-02, optional when payment_ref is set
	Source      string    `json:"source"`  // bank_transfer | card
	TotalPrice  int64     `json:"total_price_cents"`
}

type bookingOut struct {
	Outcome       string   `json:"outcome"`
	BookingRef    string   `json:"booking_ref,omitempty"`
	Units         []string `json:"units,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Alternatives  []string `json:"alternatives,omitempty"`
	Detail        string   `json:"detail,omitempty"`
}

func (in bookingIn) toDomain() (domain.BookingRequest, error) {
	req := domain.BookingRequest{
		AttemptID:    uuid.NewString(),
		CustomerKey:  in.CustomerKey,
		CustomerName: in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Category:     domain.Category(in.Category),
		Package:      in.Package,
		PaymentRef:   strings.TrimSpace(in.PaymentRef),
		PaidAmount:   in.PaidAmount,
		Source:       domain.PaymentSource(in.Source),
		TotalPrice:   in.TotalPrice,
	}
	var err error
	if in.CheckIn != "" {
		if req.CheckIn, err = time.Parse("2006-01-02", in.CheckIn); err != nil {
			return req, errors.New("check_in must be YYYY-MM-DD")
		}
	}
	if in.CheckOut != "" {
		if req.CheckOut, err = time.Parse("2006-01-02", in.CheckOut); err != nil {
			return req, errors.New("check_out must be YYYY-MM-DD")
		}
	}
	if in.PaidOn != "" {
		if req.PaidOn, err = time.Parse("2006-01-02", in.PaidOn); err != nil {
			return req, errors.New("paid_on must be YYYY-MM-DD")
		}
	}
	for _, p := range in.Parties {
		req.Parties = append(req.Parties, domain.PartySpec{
			Adults:        p.Adults,
			Children0to5:  p.Children0to5,
			Children6to10: p.Children6to10,
		})
	}
	return req, nil
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var in bookingIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if in.CustomerKey == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "customer_key is required")
		return
	}

	req, err := in.toDomain()
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	res, err := h.Booker.Book(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateInFlight) {
			writeProblem(w, http.StatusConflict, "Attempt in progress",
				"another booking attempt for this customer is already running")
			return
		}
		log.Error().Err(err).Str("customer", req.CustomerKey).Msg("booking failed")
		writeProblem(w, http.StatusBadGateway, "Booking failed", "try again in a few minutes")
		return
	}

	out := bookingOut{
		Outcome:       string(res.Outcome),
		BookingRef:    res.BookingRef,
		Units:         res.Units,
		MissingFields: res.MissingFields,
		Alternatives:  res.Alternatives,
		Detail:        res.Detail,
	}

	status := http.StatusOK
	switch res.Outcome {
	case domain.OutcomeConfirmed:
		status = http.StatusCreated
	case domain.OutcomeMissingFields:
		status = http.StatusUnprocessableEntity
	case domain.OutcomeNoAvailability, domain.OutcomeInsufficient:
		status = http.StatusConflict
	case domain.OutcomePaymentPending:
		// The payment will likely land on a later statement pull; park the
		// request with the retry scheduler instead of losing it. The worker
		// outlives this request, so it must not inherit its cancellation.
		if err := h.Sched.Enqueue(context.WithoutCancel(r.Context()), req); err != nil {
			log.Error().Err(err).Str("customer", req.CustomerKey).Msg("retry enqueue failed")
		}
		status = http.StatusAccepted
	}

	writeJSON(w, status, out)
}

func (h *Handlers) distress(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := h.Sched.Distress(r.Context(), key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "no pending retry for this customer")
	case err != nil:
		log.Error().Err(err).Str("customer", key).Msg("distress escalation failed")
		writeProblem(w, http.StatusInternalServerError, "Escalation failed", "")
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "escalated"})
	}
}

type retryOut struct {
	CustomerKey string    `json:"customer_key"`
	Stage       int       `json:"stage"`
	Attempts    int       `json:"attempts"`
	Escalated   bool      `json:"escalated"`
	Distress    bool      `json:"distress"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *Handlers) getRetry(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	st, err := h.Store.Load(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "no pending retry for this customer")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("customer", key).Msg("retry state load failed")
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", "")
		return
	}

	out := retryOut{
		CustomerKey: st.CustomerKey,
		Stage:       int(st.Stage),
		Attempts:    st.Attempts,
		Escalated:   st.Escalated,
		Distress:    st.Distress,
		UpdatedAt:   st.UpdatedAt,
	}
	etag, body := calcETagAndBody(out)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Language", "es")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write retry state body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}
