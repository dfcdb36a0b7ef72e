package hostaway

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hostaway_sync/internal/adapters/observability"
	"hostaway_sync/internal/domain"
)

const maxAttempts = 4

type Client struct {
	base      string
	hc        *http.Client
	accountID string
	secret    string
	rl        *rate.Limiter

	mu      sync.Mutex
	token   string
	tokenAt time.Time
	expiry  time.Time
}

func New(base, accountID, secret string, rps int) (*Client, error) {
	if accountID == "" || secret == "" {
		return nil, fmt.Errorf("hostaway account id and API secret are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:      strings.TrimRight(base, "/"),
		hc:        &http.Client{Timeout: 30 * time.Second},
		accountID: accountID,
		secret:    secret,
		rl:        rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) ListListings(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out []map[string]any
	return out, c.call(ctx, http.MethodGet, "/listings?"+q.Encode(), "listings", nil, &out)
}

func (c *Client) GetListing(ctx context.Context, id int64) (map[string]any, error) {
	var out map[string]any
	return out, c.call(ctx, http.MethodGet, fmt.Sprintf("/listings/%d?includeResources=1", id), "listing", nil, &out)
}

func (c *Client) GetCalendar(ctx context.Context, id int64, start, end time.Time) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("startDate", start.Format(domain.DateLayout))
	q.Set("endDate", end.Format(domain.DateLayout))
	var out []map[string]any
	return out, c.call(ctx, http.MethodGet, fmt.Sprintf("/listings/%d/calendar?%s", id, q.Encode()), "calendar", nil, &out)
}

func (c *Client) CreateReservation(ctx context.Context, body map[string]any) (map[string]any, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	return out, c.call(ctx, http.MethodPost, "/reservations", "reservation_create", b, &out)
}

func (c *Client) CancelReservation(ctx context.Context, id int64) (map[string]any, error) {
	b, _ := json.Marshal(map[string]any{"cancelledBy": "host"})
	var out map[string]any
	return out, c.call(ctx, http.MethodPut, fmt.Sprintf("/reservations/%d/statuses/cancelled", id), "reservation_cancel", b, &out)
}

// ---- Internals ----

var (
	ErrNotFound     = fmt.Errorf("hostaway: %w", domain.ErrNotFound)
	ErrUnauthorized = errors.New("hostaway: unauthorized")
	ErrForbidden    = errors.New("hostaway: forbidden")
)

// envelope is the wrapper every Hostaway data endpoint returns.
type envelope struct {
	Status  string          `json:"status"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// call runs do, refreshing the access token once if it was rejected.
func (c *Client) call(ctx context.Context, method, path, endpoint string, body []byte, out any) error {
	err := c.do(ctx, method, path, endpoint, body, out)
	if errors.Is(err, ErrUnauthorized) {
		c.dropToken()
		err = c.do(ctx, method, path, endpoint, body, out)
	}
	return err
}

// do performs one API call with client-side rate limiting, retries, and
// envelope decode into out. Retries on 429 and transient 5xx, honoring
// Retry-After when provided. POST is only retried on 429 since a 5xx or a
// dropped connection may still have created the reservation.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body []byte, out any) error {
	retryable := method != http.MethodPost
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Cache-control", "no-cache")
		req.Header.Set("User-Agent", "hostaway-sync/1.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("hostaway", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if retryable && i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("hostaway", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := decodeEnvelope(resp.Body, out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("hostaway: remote %d", resp.StatusCode)
			again := retryable || resp.StatusCode == http.StatusTooManyRequests
			if again && i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("hostaway: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

func decodeEnvelope(r io.Reader, out any) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("hostaway: decode response: %w", err)
	}
	if env.Status != "" && env.Status != "success" {
		return fmt.Errorf("hostaway: status %q: %s", env.Status, env.Message)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("hostaway: decode result: %w", err)
	}
	return nil
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

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
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

// backoff returns 200ms, 400ms, 800ms... for attempt i, plus up to 50% jitter.
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
