// internal/adapters/inventory/client.go
package inventory

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"costamar_booking/internal/adapters/observability"
	"costamar_booking/internal/domain"
)

// Client talks to the external reservation system. Availability is a
// plain read; Commit books one or more units in a single call, and the
// remote side either confirms all of them or none.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var (
	ErrNotFound     = errors.New("inventory: not found")
	ErrUnauthorized = errors.New("inventory: unauthorized")
)

const dateLayout = "2006-01-02"

// Availability returns the live snapshot of open units for the date
// range: unit id -> raw identifier. Never cached; the remote inventory
// mutates outside our control.
func (c *Client) Availability(ctx context.Context, from, to time.Time) (map[string]string, error) {
	url := fmt.Sprintf("%s/availability?from=%s&to=%s",
		c.base, from.Format(dateLayout), to.Format(dateLayout))

	var payload struct {
		Units map[string]string `json:"units"`
	}
	if err := c.do(ctx, http.MethodGet, url, "availability", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Units, nil
}

type commitBody struct {
	Units    []string      `json:"units"`
	CheckIn  string        `json:"check_in"`
	CheckOut string        `json:"check_out"`
	Parties  []commitParty `json:"parties"`
	Customer commitCust    `json:"customer"`
	Package  string        `json:"package,omitempty"`
	TraceID  string        `json:"trace_id,omitempty"`
}

type commitParty struct {
	Adults        int `json:"adults"`
	Children0to5  int `json:"children_0_5"`
	Children6to10 int `json:"children_6_10"`
}

type commitCust struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Commit books all units atomically and returns the remote booking
// reference. A 409 maps to ErrReservationConflict so the orchestrator
// can retry with an alternate unit.
func (c *Client) Commit(ctx context.Context, units []string, parties []domain.PartySpec, req domain.BookingRequest) (string, error) {
	body := commitBody{
		Units:    units,
		CheckIn:  req.CheckIn.Format(dateLayout),
		CheckOut: req.CheckOut.Format(dateLayout),
		Customer: commitCust{Name: req.CustomerName, Email: req.Email, Phone: req.Phone},
		Package:  req.Package,
		TraceID:  req.AttemptID,
	}
	for _, p := range parties {
		body.Parties = append(body.Parties, commitParty{
			Adults: p.Adults, Children0to5: p.Children0to5, Children6to10: p.Children6to10,
		})
	}

	var out struct {
		BookingRef string `json:"booking_ref"`
	}
	if err := c.do(ctx, http.MethodPost, c.base+"/bookings", "commit", body, &out); err != nil {
		return "", err
	}
	if out.BookingRef == "" {
		return "", fmt.Errorf("commit returned empty booking reference")
	}
	return out.BookingRef, nil
}

// do performs a request with client-side rate limiting, bounded retries
// on 429/transient 5xx (honoring Retry-After), and JSON decode into out.
// POSTs are retried too: the remote deduplicates on the trace id.
func (c *Client) do(ctx context.Context, method, url, endpoint string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var reqBody []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = b
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		var rd io.Reader
		if reqBody != nil {
			rd = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", "costamar-booking/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveExternal("inventory", endpoint, 0, time.Since(start))
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("inventory", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusConflict:
			resp.Body.Close()
			return domain.ErrReservationConflict

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
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

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up
// to +50% jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
