package ledgersync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"costamar_booking/internal/adapters/observability"
)

// Client asks the statement-sync collaborator to pull fresh bank and
// card rows into the ledger. The actual scraping lives on the other
// side; we only trigger it and read the tallies.
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
		rps = 2
	}
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: 60 * time.Second}, // statement pulls are slow
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (c *Client) Sync(ctx context.Context) (inserted, skipped int, err error) {
	if err := c.rl.Wait(ctx); err != nil {
		return 0, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/sync", nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("X-API-Key", c.key)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "costamar-booking/1.0")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("ledgersync", "sync", 0, time.Since(start))
		return 0, 0, err
	}
	defer resp.Body.Close()
	observability.ObserveExternal("ledgersync", "sync", resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, 0, fmt.Errorf("sync status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		Inserted int `json:"inserted"`
		Skipped  int `json:"skipped"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, err
	}
	return out.Inserted, out.Skipped, nil
}
