package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/monitor/metrics"
)

// Endpoint is one candidate explorer base URL. Endpoints are tried in
// the order configured; the most recently successful one is preferred.
type Endpoint struct {
	Name string
	URL  string
}

// Options tune the client. Zero values fall back to the defaults used
// in production.
type Options struct {
	Timeout       time.Duration // per HTTP call
	CacheTTL      time.Duration // per-program sample cache
	ActivityLimit int           // page size for the recent-activity query
	Clock         clockwork.Clock
}

// Client fetches raw program metrics from a blockchain explorer REST
// API, failing over across candidate endpoints. It holds no entity
// state beyond the short-lived sample cache and per-endpoint counters.
type Client struct {
	endpoints  []*endpointState
	httpClient *http.Client
	timeout    time.Duration
	limit      int
	cache      *sampleCache
	clock      clockwork.Clock
	log        *slog.Logger

	mu     sync.Mutex
	active int // index of the last endpoint that succeeded
}

// NewClient creates an explorer client over the given candidate
// endpoints.
func NewClient(endpoints []Endpoint, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 50
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	states := make([]*endpointState, 0, len(endpoints))
	for _, ep := range endpoints {
		name := ep.Name
		if name == "" {
			name = ep.URL
		}
		states = append(states, &endpointState{
			name: name,
			base: strings.TrimRight(ep.URL, "/"),
		})
	}

	return &Client{
		endpoints: states,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: opts.Timeout,
		limit:   opts.ActivityLimit,
		cache:   newSampleCache(opts.CacheTTL, opts.Clock),
		clock:   opts.Clock,
		log:     slog.Default().With("component", "explorer"),
	}
}

// FetchProgramMetrics produces a raw sample for one program, trying the
// candidate endpoints until one returns well-formed responses for both
// the descriptor and recent-activity queries. On exhausting every
// candidate it returns a *FetchError; one program's failure never
// affects the others.
func (c *Client) FetchProgramMetrics(
	ctx context.Context,
	program domain.Program,
) (domain.RawSample, error) {
	if sample, ok := c.cache.get(program.ID); ok {
		return sample, nil
	}

	var lastErr error
	attempts := 0
	for _, ep := range c.candidates() {
		attempts++
		sample, err := c.fetchFrom(ctx, ep, program)
		if err != nil {
			ep.recordFailure(err, c.clock.Now())
			lastErr = err
			c.log.Debug("Endpoint attempt failed",
				"endpoint", ep.name, "program", program.ID, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		ep.recordSuccess(c.clock.Now())
		c.setActive(ep)
		c.cache.put(sample)
		return sample, nil
	}

	return domain.RawSample{}, &FetchError{
		ProgramID: program.ID,
		Attempts:  attempts,
		LastErr:   lastErr,
	}
}

// InvalidateCache drops cached samples so a forced refresh hits the
// network instead of replaying the cache.
func (c *Client) InvalidateCache() {
	c.cache.invalidate()
}

// ActiveEndpoint returns the name of the endpoint currently preferred.
func (c *Client) ActiveEndpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.endpoints) == 0 {
		return ""
	}
	return c.endpoints[c.active].name
}

// Endpoints reports per-endpoint bookkeeping for metrics and the status
// command.
func (c *Client) Endpoints() []EndpointStatus {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	out := make([]EndpointStatus, 0, len(c.endpoints))
	for i, ep := range c.endpoints {
		out = append(out, ep.status(i == active))
	}
	return out
}

// UpdateMetrics publishes per-endpoint gauges from the current
// bookkeeping.
func (c *Client) UpdateMetrics() {
	for _, ep := range c.Endpoints() {
		metrics.EndpointRequests.WithLabelValues(ep.Name, "success").Set(float64(ep.SuccessCount))
		metrics.EndpointRequests.WithLabelValues(ep.Name, "failure").Set(float64(ep.FailureCount))
		active := 0.0
		if ep.Active {
			active = 1
		}
		metrics.ActiveEndpoint.WithLabelValues(ep.Name).Set(active)
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// candidates returns the endpoints in try order: the active one first,
// then the rest in configured priority order.
func (c *Client) candidates() []*endpointState {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if len(c.endpoints) == 0 {
		return nil
	}
	out := make([]*endpointState, 0, len(c.endpoints))
	out = append(out, c.endpoints[active])
	for i, ep := range c.endpoints {
		if i != active {
			out = append(out, ep)
		}
	}
	return out
}

func (c *Client) setActive(target *endpointState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ep := range c.endpoints {
		if ep == target {
			c.active = i
			return
		}
	}
}

// fetchFrom runs the two logical queries against one endpoint: the
// program descriptor as an existence check, then the recent-activity
// window the counts derive from.
func (c *Client) fetchFrom(
	ctx context.Context,
	ep *endpointState,
	program domain.Program,
) (domain.RawSample, error) {
	descriptorURL := fmt.Sprintf("%s/program/%s", ep.base, url.PathEscape(string(program.ID)))
	body, err := c.get(ctx, descriptorURL)
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("descriptor lookup: %w", err)
	}
	if err := validDescriptor(body); err != nil {
		return domain.RawSample{}, fmt.Errorf("descriptor lookup: %w", err)
	}

	activityURL := fmt.Sprintf("%s/program/%s/transactions?limit=%d",
		ep.base, url.PathEscape(string(program.ID)), c.limit)
	body, err = c.get(ctx, activityURL)
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("activity lookup: %w", err)
	}
	records, err := decodeActivity(body)
	if err != nil {
		return domain.RawSample{}, fmt.Errorf("activity lookup: %w", err)
	}

	return buildSample(program.ID, ep.name, records, c.clock.Now()), nil
}

// get issues one bounded GET. Every failure mode here, network error,
// timeout, non-2xx or an unreadable body, is an endpoint-level error
// the caller recovers from by trying the next candidate.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// validDescriptor accepts any non-null JSON value: deployments disagree
// on the descriptor schema, and the query only has to prove the program
// exists upstream.
func validDescriptor(body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parse descriptor: %w", err)
	}
	if v == nil {
		return fmt.Errorf("descriptor is null")
	}
	return nil
}

// endpointState tracks one candidate endpoint's outcomes.
type endpointState struct {
	name string
	base string

	mu            sync.Mutex
	successCount  int
	failureCount  int
	lastErr       error
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// EndpointStatus is a point-in-time view of one endpoint's bookkeeping.
type EndpointStatus struct {
	Name          string
	URL           string
	Active        bool
	SuccessCount  int
	FailureCount  int
	LastSuccessAt time.Time
	LastFailureAt time.Time
	LastError     string
}

func (e *endpointState) recordSuccess(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successCount++
	e.lastSuccessAt = now
	e.lastErr = nil
}

func (e *endpointState) recordFailure(err error, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failureCount++
	e.lastFailureAt = now
	e.lastErr = err
}

func (e *endpointState) status(active bool) EndpointStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := EndpointStatus{
		Name:          e.name,
		URL:           e.base,
		Active:        active,
		SuccessCount:  e.successCount,
		FailureCount:  e.failureCount,
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}
