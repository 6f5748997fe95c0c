package pipeline

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/bypass"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/report"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/transport"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// mockBackend is an in-memory storage.Backend for verifying emissions.
type mockBackend struct {
	mu      sync.Mutex
	records []*storage.StoredRecord
}

func (m *mockBackend) Save(ctx context.Context, rec *storage.StoredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *mockBackend) Close() error { return nil }

// routedDoer dispatches scripted responses by request path.
type routedDoer struct {
	mu     sync.Mutex
	routes map[string]*bypass.Response
	calls  map[string]int
}

func newRoutedDoer() *routedDoer {
	return &routedDoer{
		routes: make(map[string]*bypass.Response),
		calls:  make(map[string]int),
	}
}

func (d *routedDoer) route(path, body string) {
	d.routes[path] = &bypass.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{},
		Body:       []byte(")]}'\n" + body),
	}
}

func (d *routedDoer) Do(ctx context.Context, req *http.Request) (*bypass.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[req.URL.Path]++
	if res, ok := d.routes[req.URL.Path]; ok {
		return res, nil
	}
	return &bypass.Response{StatusCode: http.StatusNotFound, Headers: http.Header{}, Body: []byte("{}")}, nil
}

func (d *routedDoer) callCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[path]
}

const happyExplore = `{"widgets": [
	{"id": "TIMESERIES", "token": "t1", "request": {"time": "today 12-m"}},
	{"id": "GEO_MAP", "token": "t2", "request": {}},
	{"id": "RELATED_TOPICS", "token": "t3", "request": {}},
	{"id": "RELATED_QUERIES", "token": "t4", "request": {}}
]}`

func fastConfig() Config {
	return Config{
		ItemDelayMin: time.Millisecond,
		ItemDelayMax: 2 * time.Millisecond,
		Cooldown:     100 * time.Millisecond,
	}
}

func fastPolicy() transport.BackoffPolicy {
	return transport.BackoffPolicy{BaseDelay: time.Millisecond, BlockDelay: 2 * time.Millisecond}
}

func newTestPipeline(doer transport.Doer, backend storage.Backend, cfg Config, maxRetries int) *Pipeline {
	client := transport.NewClient(doer, maxRetries, fastPolicy(), nil)
	resolver := trends.NewResolver(client, "en-US", 0, nil)
	fetcher := trends.NewFetcher(client, "en-US", 0, nil)
	return New(cfg, resolver, fetcher, backend, nil)
}

func TestPipeline_EmitsFullRecord(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", happyExplore)
	doer.route("/trends/api/widgetdata/multiline", `{"default": {"timelineData": [
		{"time": "1700000000", "value": [71], "hasData": [true], "formattedValue": ["71"]}
	]}}`)
	doer.route("/trends/api/widgetdata/comparedgeo", `{"default": {"geoMapData": [
		{"geoCode": "US", "geoName": "United States", "value": [100], "formattedValue": ["100"], "hasData": [true]}
	]}}`)
	doer.route("/trends/api/widgetdata/relatedsearches", `{"default": {"rankedList": [
		{"rankedKeyword": [{"query": "espresso", "value": 100, "formattedValue": "100", "hasData": true}]},
		{"rankedKeyword": [{"query": "mushroom coffee", "value": 900, "formattedValue": "+900%", "hasData": true}]}
	]}}`)

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	outcomes, err := p.Run(context.Background(), []string{"coffee"}, trends.Options{Geo: "US", TimeRange: "today 12-m"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].State != report.StateEmitted {
		t.Fatalf("expected one emitted outcome, got %+v", outcomes)
	}
	if len(backend.records) != 1 {
		t.Fatalf("expected exactly one record in sink, got %d", len(backend.records))
	}

	rec := backend.records[0]
	if rec.SearchTerm != "coffee" || rec.Geo != "US" {
		t.Errorf("query identity missing on record: %+v", rec)
	}
	if len(rec.InterestOverTime) != 1 {
		t.Errorf("expected timeline data, got %+v", rec.InterestOverTime)
	}
	// No resolution hint in the geo widget request: country-level bucket
	if len(rec.InterestBy) != 1 {
		t.Errorf("expected country-level geo bucket populated, got %+v", rec.InterestBy)
	}
	if len(rec.InterestBySubregion) != 0 || len(rec.InterestByCity) != 0 {
		t.Error("expected region/city geo buckets empty")
	}
	if len(rec.RelatedQueriesTop) != 1 || rec.RelatedQueriesTop[0].Query != "espresso" {
		t.Errorf("unexpected top queries: %+v", rec.RelatedQueriesTop)
	}
	if len(rec.RelatedQueriesRising) != 1 || rec.RelatedQueriesRising[0].Query != "mushroom coffee" {
		t.Errorf("unexpected rising queries: %+v", rec.RelatedQueriesRising)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Error("expected sink metadata populated")
	}

	// The resolver call completes before any widget fetch begins, and
	// both related widgets share one endpoint.
	if doer.callCount("/trends/api/explore") != 1 {
		t.Errorf("expected one discovery call, got %d", doer.callCount("/trends/api/explore"))
	}
	if doer.callCount("/trends/api/widgetdata/relatedsearches") != 2 {
		t.Errorf("expected two related fetches, got %d", doer.callCount("/trends/api/widgetdata/relatedsearches"))
	}
}

func TestPipeline_ResolverBlockedSkipsWithCooldown(t *testing.T) {
	doer := newRoutedDoer()
	doer.routes["/trends/api/explore"] = &bypass.Response{
		StatusCode: http.StatusTooManyRequests,
		Headers:    http.Header{},
		Body:       []byte("<html><title>Error 429</title></html>"),
	}

	backend := &mockBackend{}
	maxRetries := 3
	p := newTestPipeline(doer, backend, fastConfig(), maxRetries)

	start := time.Now()
	outcomes, err := p.Run(context.Background(), []string{"coffee"}, trends.Options{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("per-item failures must not abort the run: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	if outcomes[0].State != report.StateSkipped || outcomes[0].Cause != CauseResolverFailure {
		t.Errorf("expected resolver_failure skip, got %+v", outcomes[0])
	}
	if len(backend.records) != 0 {
		t.Errorf("expected zero records emitted, got %d", len(backend.records))
	}
	if got := doer.callCount("/trends/api/explore"); got != maxRetries {
		t.Errorf("expected %d resolver attempts, got %d", maxRetries, got)
	}
	// Extended cooldown applies before the next item would begin
	if elapsed < 100*time.Millisecond {
		t.Errorf("expected extended cooldown of at least 100ms, run took %v", elapsed)
	}
}

func TestPipeline_NoWidgetsSkipsWithoutCooldown(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", `{"widgets": []}`)

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	start := time.Now()
	outcomes, err := p.Run(context.Background(), []string{"zxqv nonexistent"}, trends.Options{})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].State != report.StateSkipped || outcomes[0].Cause != CauseNoData {
		t.Errorf("expected no_data skip, got %+v", outcomes[0])
	}
	if elapsed >= 100*time.Millisecond {
		t.Errorf("no-data skip must not trigger the extended cooldown, run took %v", elapsed)
	}
	// No widget endpoint may be touched when discovery returned nothing
	if doer.callCount("/trends/api/widgetdata/multiline") != 0 {
		t.Error("expected zero widget fetches after empty discovery")
	}
}

func TestPipeline_WidgetFailureDegradesToPartialRecord(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", happyExplore)
	doer.route("/trends/api/widgetdata/multiline", `{"default": {"timelineData": [
		{"time": "1700000000", "value": [10], "hasData": [true], "formattedValue": ["10"]}
	]}}`)
	// comparedgeo and relatedsearches return 404 {} and degrade

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	outcomes, err := p.Run(context.Background(), []string{"coffee"}, trends.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].State != report.StateEmitted {
		t.Fatalf("widget failures must degrade, not abort: %+v", outcomes[0])
	}

	rec := backend.records[0]
	if len(rec.InterestOverTime) != 1 {
		t.Errorf("expected timeline populated, got %+v", rec.InterestOverTime)
	}
	for name, l := range map[string]int{
		"interestBy":        len(rec.InterestBy),
		"relatedTopicsTop":  len(rec.RelatedTopicsTop),
		"relatedQueriesTop": len(rec.RelatedQueriesTop),
	} {
		if l != 0 {
			t.Errorf("expected empty %s section", name)
		}
	}
}

func TestPipeline_EmptyRecordNotEmitted(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", happyExplore)
	doer.route("/trends/api/widgetdata/multiline", `{"default": {"timelineData": []}}`)
	doer.route("/trends/api/widgetdata/comparedgeo", `{"default": {"geoMapData": []}}`)
	doer.route("/trends/api/widgetdata/relatedsearches", `{"default": {"rankedList": []}}`)

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	outcomes, err := p.Run(context.Background(), []string{"coffee"}, trends.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].State != report.StateSkipped || outcomes[0].Cause != CauseNoData {
		t.Errorf("expected no_data skip for empty record, got %+v", outcomes[0])
	}
	if len(backend.records) != 0 {
		t.Errorf("expected no emission, got %d records", len(backend.records))
	}
}

func TestPipeline_InvalidInputSkippedLocally(t *testing.T) {
	doer := newRoutedDoer()
	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	outcomes, err := p.Run(context.Background(), []string{"   "}, trends.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].State != report.StateSkipped || outcomes[0].Cause != CauseInvalidQuery {
		t.Errorf("expected invalid_query skip, got %+v", outcomes[0])
	}
	if doer.callCount("/trends/api/explore") != 0 {
		t.Error("invalid input must not trigger any network call")
	}
}

func TestPipeline_MaxItemsCapsRun(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", `{"widgets": []}`)

	cfg := fastConfig()
	cfg.MaxItems = 2

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, cfg, 2)

	outcomes, err := p.Run(context.Background(), []string{"a", "b", "c", "d"}, trends.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("expected the cap to stop the loop at 2 items, got %d", len(outcomes))
	}
}

func TestPipeline_SplitKeywordsExpandItems(t *testing.T) {
	doer := newRoutedDoer()
	doer.route("/trends/api/explore", `{"widgets": []}`)

	backend := &mockBackend{}
	p := newTestPipeline(doer, backend, fastConfig(), 2)

	outcomes, err := p.Run(context.Background(), []string{"coffee,tea"}, trends.Options{SplitKeywords: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes from split input, got %d", len(outcomes))
	}
	terms := outcomes[0].SearchTerm + "," + outcomes[1].SearchTerm
	if !strings.Contains(terms, "coffee") || !strings.Contains(terms, "tea") {
		t.Errorf("unexpected search terms %q", terms)
	}
}

func TestState_String(t *testing.T) {
	want := map[State]string{
		StatePending:     "pending",
		StateResolving:   "resolving",
		StateFetching:    "fetching",
		StateClassifying: "classifying",
		StateAssembling:  "assembling",
		StateEmitted:     "emitted",
		StateSkipped:     "skipped",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("state %d: expected %q, got %q", s, name, s.String())
		}
	}
}
