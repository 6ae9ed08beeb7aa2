package lockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/safirbus/holdcoord/internal/trip"
)

// HTTPClient implements Client against the lock service's REST
// surface.  Endpoints follow the service's versioned layout:
//
//	POST   /v1/trips/:id/lock          acquire
//	DELETE /v1/trips/:id/lock          release
//	GET    /v1/trips/:id/availability  availability
//	GET    /v1/trips/:id/hold-time     remaining hold time
//
// The zero value is not usable; construct with NewHTTPClient.
type HTTPClient struct {
	base string
	http *http.Client
}

// NewHTTPClient builds a client for the given base URL.  When httpc
// is nil a default client with a 10 second timeout is used.
func NewHTTPClient(base string, httpc *http.Client) *HTTPClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{base: base, http: httpc}
}

type lockRequest struct {
	Date      string           `json:"date"`
	Departure string           `json:"departure_time"`
	Seats     []trip.SeatLabel `json:"seats"`
	ClientID  string           `json:"client_id"`
}

// AcquireLock requests holds on the given seats.  Duplicate seat
// labels are collapsed before the request is issued.
func (c *HTTPClient) AcquireLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error {
	body := lockRequest{Date: date, Departure: key.Departure, Seats: dedupe(seats), ClientID: clientID}
	resp, err := c.do(ctx, http.MethodPost, c.tripURL(key, "lock", nil), body)
	if err != nil {
		return err
	}
	defer drain(resp)
	return c.checkLockStatus(resp)
}

// ReleaseLock releases holds on the given seats.  The service treats
// release as idempotent, so a 404-ish "nothing to release" outcome is
// reported as success.
func (c *HTTPClient) ReleaseLock(ctx context.Context, key trip.Key, date string, seats []trip.SeatLabel, clientID string) error {
	body := lockRequest{Date: date, Departure: key.Departure, Seats: dedupe(seats), ClientID: clientID}
	resp, err := c.do(ctx, http.MethodDelete, c.tripURL(key, "lock", nil), body)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.checkLockStatus(resp)
}

// QueryAvailability fetches the availability report for one trip.
func (c *HTTPClient) QueryAvailability(ctx context.Context, key trip.Key, date string) (Availability, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("departure_time", key.Departure)
	resp, err := c.do(ctx, http.MethodGet, c.tripURL(key, "availability", q), nil)
	if err != nil {
		return Availability{}, err
	}
	defer drain(resp)
	if err := c.checkStatus(resp); err != nil {
		return Availability{}, err
	}
	var out Availability
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Availability{}, fmt.Errorf("lockapi: decode availability: %w", err)
	}
	return out, nil
}

// QueryHoldTime fetches the remaining hold time for this client's
// holds on one trip.  ServerTime is taken from the response Date
// header when present so callers can correct for local clock drift.
func (c *HTTPClient) QueryHoldTime(ctx context.Context, key trip.Key, date string, clientID string) (HoldTime, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("departure_time", key.Departure)
	q.Set("client_id", clientID)
	resp, err := c.do(ctx, http.MethodGet, c.tripURL(key, "hold-time", q), nil)
	if err != nil {
		return HoldTime{}, err
	}
	defer drain(resp)
	if err := c.checkStatus(resp); err != nil {
		return HoldTime{}, err
	}
	var out HoldTime
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HoldTime{}, fmt.Errorf("lockapi: decode hold time: %w", err)
	}
	out.ServerTime = time.Now().UTC()
	if d, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
		out.ServerTime = d.UTC()
	}
	return out, nil
}

func (c *HTTPClient) tripURL(key trip.Key, tail string, q url.Values) string {
	u := c.base + "/v1/trips/" + url.PathEscape(key.TripID) + "/" + tail
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("lockapi: marshal request: %w", err)
		}
		rdr = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lockapi: %s %s: %w", method, rawURL, err)
	}
	return resp, nil
}

// checkLockStatus interprets acquire/release responses, pulling the
// unavailable seat list out of conflict payloads when present.
func (c *HTTPClient) checkLockStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusBadRequest:
		var body struct {
			Error       string           `json:"error"`
			Unavailable []trip.SeatLabel `json:"unavailable"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if resp.StatusCode == http.StatusBadRequest && len(body.Unavailable) == 0 {
			// a 400 naming no seats is the service rejecting the
			// request shape, not a contention outcome; the selection
			// proceeds without a confirmed hold, same as a guest
			return ErrUnauthenticated
		}
		return &ConflictError{Unavailable: body.Unavailable}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return fmt.Errorf("lockapi: unexpected status %d", resp.StatusCode)
	}
}

// checkStatus interprets read-only responses.
func (c *HTTPClient) checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	default:
		return fmt.Errorf("lockapi: unexpected status %d", resp.StatusCode)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func dedupe(seats []trip.SeatLabel) []trip.SeatLabel {
	seen := make(map[trip.SeatLabel]struct{}, len(seats))
	out := make([]trip.SeatLabel, 0, len(seats))
	for _, s := range seats {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
