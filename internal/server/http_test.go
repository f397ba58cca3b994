package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamassu-labs/sentinel/internal/core/domain"
	"github.com/lamassu-labs/sentinel/internal/infra/storage/memory"
	"github.com/lamassu-labs/sentinel/internal/monitor/health"
	"github.com/lamassu-labs/sentinel/internal/monitor/poller"
	"github.com/lamassu-labs/sentinel/internal/monitor/store"
)

var (
	testNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	testThresholds = health.Thresholds{
		WarnSuccessRate: 90,
		CritSuccessRate: 80,
		DegradedAfter:   24 * time.Hour,
		UnhealthyAfter:  48 * time.Hour,
	}
)

func timePtr(t time.Time) *time.Time { return &t }

// =============================================================================
// Mocks
// =============================================================================

type stubFetcher struct {
	mu      sync.Mutex
	samples map[domain.ProgramID]domain.RawSample

	// gate, when set, blocks every fetch until closed. started receives
	// one signal per fetch call.
	gate    chan struct{}
	started chan struct{}
}

func (f *stubFetcher) FetchProgramMetrics(ctx context.Context, program domain.Program) (domain.RawSample, error) {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples[program.ID], nil
}

func (f *stubFetcher) ActiveEndpoint() string { return "primary" }
func (f *stubFetcher) InvalidateCache()       {}

func (f *stubFetcher) setSample(id domain.ProgramID, sample domain.RawSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[id] = sample
}

type testStack struct {
	http    *HTTP
	store   *store.Store
	poller  *poller.Poller
	archive *memory.Archive
	clock   clockwork.FakeClock
	fetcher *stubFetcher
	url     string
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testNow)
	programs := []domain.Program{
		{ID: "prog-1", Name: "Alpha"},
		{ID: "prog-2", Name: "Beta"},
	}
	fetcher := &stubFetcher{
		samples: map[domain.ProgramID]domain.RawSample{
			"prog-1": {
				ProgramID:      "prog-1",
				Total:          10,
				Succeeded:      9,
				Failed:         1,
				LastActivityAt: timePtr(testNow.Add(-time.Hour)),
				Endpoint:       "primary",
				FetchedAt:      testNow,
			},
			"prog-2": {ProgramID: "prog-2", Endpoint: "primary", FetchedAt: testNow},
		},
	}

	st := store.New(programs, clock, nil)
	archive := memory.NewArchive(clock)
	p := poller.New(poller.Config{Interval: time.Minute, Thresholds: testThresholds}, fetcher, st, archive, clock)
	h := NewHTTP(0, st, p, archive, clock)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testStack{
		http:    h,
		store:   st,
		poller:  p,
		archive: archive,
		clock:   clock,
		fetcher: fetcher,
		url:     srv.URL,
	}
}

func (ts *testStack) runCycle(t *testing.T) {
	t.Helper()
	if _, err := ts.poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
}

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: expected status %d, got %d", url, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestDashboardEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.runCycle(t)

	var dash domain.Dashboard
	getJSON(t, ts.url+"/api/dashboard", http.StatusOK, &dash)

	if len(dash.Programs) != 2 {
		t.Fatalf("expected 2 programs, got %d", len(dash.Programs))
	}
	if got := dash.Programs["prog-1"].Health; got != domain.HealthHealthy {
		t.Errorf("expected prog-1 healthy, got %s", got)
	}
	if got := dash.Programs["prog-2"].Health; got != domain.HealthInactive {
		t.Errorf("expected prog-2 inactive, got %s", got)
	}
	if dash.Summary.Total != 2 || dash.Summary.Healthy != 1 {
		t.Errorf("unexpected summary: %+v", dash.Summary)
	}
	if dash.Cycle.Sequence != 1 {
		t.Errorf("expected cycle 1, got %d", dash.Cycle.Sequence)
	}
}

func TestDashboardEndpoint_MethodNotAllowed(t *testing.T) {
	ts := newTestStack(t)

	resp, err := http.Post(ts.url+"/api/dashboard", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	ts := newTestStack(t)

	resp, err := http.Post(ts.url+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var info domain.CycleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", info.Sequence)
	}
	if info.ActiveEndpoint != "primary" {
		t.Errorf("expected active endpoint primary, got %q", info.ActiveEndpoint)
	}

	// GET is not a refresh.
	getResp, err := http.Get(ts.url + "/api/refresh")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", getResp.StatusCode)
	}
}

func TestRefreshEndpoint_TimesOutWhileCycleBusy(t *testing.T) {
	ts := newTestStack(t)
	ts.fetcher.gate = make(chan struct{})
	ts.fetcher.started = make(chan struct{}, 4)
	ts.http.refresh = 50 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ts.poller.RunCycle(context.Background())
	}()

	select {
	case <-ts.fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("background cycle never started fetching")
	}

	resp, err := http.Post(ts.url+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", resp.StatusCode)
	}

	close(ts.fetcher.gate)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background cycle never finished")
	}
}

func TestProgramHistoryEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.runCycle(t)
	ts.clock.Advance(30 * time.Hour)
	ts.runCycle(t)

	var got historyResponse
	getJSON(t, ts.url+"/api/programs/prog-1/history", http.StatusOK, &got)
	if got.ProgramID != "prog-1" || got.Hours != 24 {
		t.Errorf("unexpected envelope: %+v", got)
	}
	// Only the second cycle falls inside the default 24h window.
	if len(got.Snapshots) != 1 {
		t.Fatalf("expected 1 snapshot in 24h window, got %d", len(got.Snapshots))
	}
	if got.Snapshots[0].CycleSeq != 2 {
		t.Errorf("expected cycle 2, got %d", got.Snapshots[0].CycleSeq)
	}

	getJSON(t, ts.url+"/api/programs/prog-1/history?hours=48", http.StatusOK, &got)
	if len(got.Snapshots) != 2 {
		t.Fatalf("expected 2 snapshots in 48h window, got %d", len(got.Snapshots))
	}
	if got.Snapshots[0].CycleSeq != 1 || got.Snapshots[1].CycleSeq != 2 {
		t.Errorf("expected oldest first, got %d then %d", got.Snapshots[0].CycleSeq, got.Snapshots[1].CycleSeq)
	}
	if got.Hours != 48 {
		t.Errorf("expected hours 48, got %d", got.Hours)
	}
}

func TestProgramHistoryEndpoint_BadRequests(t *testing.T) {
	ts := newTestStack(t)
	ts.runCycle(t)

	cases := []struct {
		name string
		path string
		want int
	}{
		{"unknown program", "/api/programs/nope/history", http.StatusNotFound},
		{"malformed hours", "/api/programs/prog-1/history?hours=abc", http.StatusBadRequest},
		{"negative hours", "/api/programs/prog-1/history?hours=-5", http.StatusBadRequest},
		{"zero hours", "/api/programs/prog-1/history?hours=0", http.StatusBadRequest},
		{"unknown subroute", "/api/programs/prog-1/unknown", http.StatusNotFound},
		{"bare programs path", "/api/programs/", http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp, err := http.Get(ts.url + c.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != c.want {
				t.Errorf("expected %d, got %d", c.want, resp.StatusCode)
			}
		})
	}
}

func TestHealthzEndpoint_WorstCaseWins(t *testing.T) {
	ts := newTestStack(t)
	ts.runCycle(t)

	var body map[string]string
	getJSON(t, ts.url+"/healthz", http.StatusOK, &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %q", body["status"])
	}

	// One program slides past the degraded cutoff.
	ts.fetcher.setSample("prog-1", domain.RawSample{
		ProgramID:      "prog-1",
		Total:          10,
		Succeeded:      10,
		LastActivityAt: timePtr(testNow.Add(-25 * time.Hour)),
		Endpoint:       "primary",
		FetchedAt:      testNow,
	})
	ts.runCycle(t)
	getJSON(t, ts.url+"/healthz", http.StatusOK, &body)
	if body["status"] != "degraded" {
		t.Errorf("expected degraded, got %q", body["status"])
	}

	// And then past the unhealthy cutoff.
	ts.fetcher.setSample("prog-1", domain.RawSample{
		ProgramID:      "prog-1",
		Total:          10,
		Succeeded:      10,
		LastActivityAt: timePtr(testNow.Add(-49 * time.Hour)),
		Endpoint:       "primary",
		FetchedAt:      testNow,
	})
	ts.runCycle(t)
	getJSON(t, ts.url+"/healthz", http.StatusServiceUnavailable, &body)
	if body["status"] != "critical" {
		t.Errorf("expected critical, got %q", body["status"])
	}
}

func TestReadyzEndpoint(t *testing.T) {
	ts := newTestStack(t)

	resp, err := http.Get(ts.url + "/readyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before first cycle, got %d", resp.StatusCode)
	}

	ts.runCycle(t)

	resp, err = http.Get(ts.url + "/readyz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after first cycle, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ready" {
		t.Errorf("expected body %q, got %q", "ready", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestStack(t)
	ts.runCycle(t)

	resp, err := http.Get(ts.url + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "sentinel_poll_cycles_total") {
		t.Error("expected sentinel_poll_cycles_total in metrics exposition")
	}
}
