package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/sky-overlay/pkg/geo"
)

// DefaultEndpoint is the public feed queried when no custom endpoint
// is configured. It accepts lat/lon/dist query parameters with dist
// in nautical miles.
const DefaultEndpoint = "https://api.airplanes.live/v2/point"

// DefaultTimeout bounds one feed request end to end.
const DefaultTimeout = 10 * time.Second

// MaxRadiusNM is the largest search radius the feed accepts.
const MaxRadiusNM = 250.0

// Tagged request outcomes. The scheduler distinguishes these from
// generic failures by errors.Is, never by inspecting a cancellation
// signal's side channel.
var (
	// ErrSuperseded marks a request cancelled because a newer fetch
	// cycle replaced it. Silent: not an error condition.
	ErrSuperseded = errors.New("feed: request superseded")

	// ErrTimeout marks a request that exceeded its deadline.
	ErrTimeout = errors.New("feed: request timed out")
)

// StatusError reports a non-2xx response from the feed.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("feed returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("feed returned status %d", e.StatusCode)
}

// Meta carries the envelope bookkeeping fields some feeds include
// alongside the aircraft array.
type Meta struct {
	// Now is the feed's own timestamp (epoch seconds), 0 if absent
	Now float64

	// Total is the feed's reported row count, -1 if absent
	Total int
}

// Client issues single, cancellable requests against the feed.
// It performs no retries and no scheduling of its own; the overlay's
// fetch scheduler owns that policy.
type Client struct {
	// endpoint is the feed URL; query parameters are appended with
	// '?' or '&' depending on whether it already carries a query
	endpoint string

	// httpClient is the HTTP client used for feed requests
	httpClient *http.Client

	// limiter enforces feed etiquette (default 1 request per second)
	limiter *rate.Limiter
}

// NewClient creates a feed client. An empty endpoint selects
// DefaultEndpoint.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// SetLimit replaces the minimum interval between requests. Zero or
// negative disables limiting (used by tests).
func (c *Client) SetLimit(interval time.Duration) {
	if interval <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(interval), 1)
}

// requestURL builds the feed URL for one fetch. dist is rounded up to
// a whole nautical mile and capped at MaxRadiusNM.
func (c *Client) requestURL(center geo.Point, radiusNM float64) string {
	dist := int(math.Ceil(math.Min(radiusNM, MaxRadiusNM)))
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%slat=%.4f&lon=%.4f&dist=%d", c.endpoint, sep, center.Lat, center.Lon, dist)
}

// Fetch issues one GET against the feed and returns the decoded
// aircraft rows. Cancellation is reported as a tagged sentinel:
// ErrSuperseded when ctx was cancelled with that cause, ErrTimeout
// when the deadline expired, and plain wrapped errors otherwise.
func (c *Client) Fetch(ctx context.Context, center geo.Point, radiusNM float64) ([]Record, Meta, error) {
	meta := Meta{Total: -1}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, meta, c.tagCtxErr(ctx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(center, radiusNM), nil)
	if err != nil {
		return nil, meta, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, meta, c.tagCtxErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, meta, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		if tagged := c.tagCtxErr(ctx, err); tagged != err {
			return nil, meta, tagged
		}
		return nil, meta, fmt.Errorf("failed to parse feed response: %w", err)
	}

	rows, meta, ok := extractRows(doc)
	if !ok {
		return nil, meta, errors.New("feed response contains no aircraft array")
	}
	return rows, meta, nil
}

// tagCtxErr maps a transport error to the tagged sentinel implied by
// the request context, or returns it unchanged.
func (c *Client) tagCtxErr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, ErrSuperseded) {
			return ErrSuperseded
		}
		if errors.Is(cause, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// envelopeKeys are the conventional wrapper fields tried, in order,
// before falling back to the first non-empty object array.
var envelopeKeys = []string{"ac", "aircraft", "rows", "data"}

// extractRows pulls the aircraft array out of a decoded response
// body, trying the conventional envelope shapes in order.
func extractRows(doc any) ([]Record, Meta, bool) {
	meta := Meta{Total: -1}

	switch body := doc.(type) {
	case []any:
		return coerceRows(body), meta, true
	case map[string]any:
		if now, ok := asFloat(body["now"]); ok {
			meta.Now = now
		}
		if total, ok := asFloat(body["total"]); ok {
			meta.Total = int(total)
		}
		for _, key := range envelopeKeys {
			if arr, ok := body[key].([]any); ok {
				return coerceRows(arr), meta, true
			}
		}
		// Last resort: the first property holding a non-empty array
		// of objects. Keys are visited in sorted order so ties always
		// resolve to the same property.
		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			arr, ok := body[k].([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			if _, isObj := arr[0].(map[string]any); isObj {
				return coerceRows(arr), meta, true
			}
		}
	}
	return nil, meta, false
}

// coerceRows keeps only object-shaped elements. Malformed rows are
// dropped here; rows that are objects but fail extraction later are
// skipped individually by the overlay.
func coerceRows(arr []any) []Record {
	rows := make([]Record, 0, len(arr))
	for _, v := range arr {
		if obj, ok := v.(map[string]any); ok {
			rows = append(rows, Record(obj))
		}
	}
	return rows
}
