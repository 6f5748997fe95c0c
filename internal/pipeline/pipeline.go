// Package pipeline sequences the acquisition protocol per input item.
// Items run strictly one at a time: the session's cookie and fingerprint
// identity is a single shared resource, and deliberate serialization is the
// primary defense against the backend's abuse detection.
package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/metrics"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/report"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/ratelimit"
)

// State is the lifecycle position of one item.
type State int

const (
	StatePending State = iota
	StateResolving
	StateFetching
	StateClassifying
	StateAssembling
	StateEmitted
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StateClassifying:
		return "classifying"
	case StateAssembling:
		return "assembling"
	case StateEmitted:
		return "emitted"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Skip causes recorded on outcomes.
const (
	CauseInvalidQuery    = "invalid_query"
	CauseResolverFailure = "resolver_failure"
	CauseNoData          = "no_data"
	CauseSinkError       = "sink_error"
)

// Config tunes the item loop.
type Config struct {
	// MaxItems caps the number of query descriptors processed; 0 = unbounded.
	MaxItems int
	// ItemDelayMin/Max bound the randomized delay applied after every item.
	ItemDelayMin time.Duration
	ItemDelayMax time.Duration
	// Cooldown is the extended delay after a resolver failure, which
	// usually indicates an active block.
	Cooldown time.Duration
	// FetchStagger is the maximum jittered offset between widget fetch
	// starts within one item.
	FetchStagger time.Duration
}

// Pipeline drives items through resolve, fetch, classify, assemble, emit.
type Pipeline struct {
	cfg      Config
	resolver *trends.Resolver
	fetcher  *trends.Fetcher
	backend  storage.Backend
	logger   *slog.Logger
}

// New creates a pipeline. Zero delay values fall back to defaults tuned for
// the backend's tolerance rather than throughput.
func New(cfg Config, resolver *trends.Resolver, fetcher *trends.Fetcher, backend storage.Backend, logger *slog.Logger) *Pipeline {
	if cfg.ItemDelayMin <= 0 {
		cfg.ItemDelayMin = 2 * time.Second
	}
	if cfg.ItemDelayMax < cfg.ItemDelayMin {
		cfg.ItemDelayMax = cfg.ItemDelayMin + 6*time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		resolver: resolver,
		fetcher:  fetcher,
		backend:  backend,
		logger:   logger,
	}
}

// Run normalizes every raw input and processes the resulting query
// descriptors strictly sequentially. Per-item failures never abort the run;
// the returned outcomes carry one entry per item. Run stops early only on
// context cancellation or when MaxItems is reached.
func (p *Pipeline) Run(ctx context.Context, inputs []string, opts trends.Options) ([]report.ItemOutcome, error) {
	var outcomes []report.ItemOutcome

	capReached := func() bool {
		return p.cfg.MaxItems > 0 && len(outcomes) >= p.cfg.MaxItems
	}

	for _, raw := range inputs {
		if capReached() {
			break
		}

		queries, err := trends.Normalize(raw, opts)
		if err != nil {
			p.logger.Warn("rejected input item", "input", raw, "err", err)
			outcome := report.ItemOutcome{
				Input:      raw,
				State:      report.StateSkipped,
				Cause:      CauseInvalidQuery,
				FinishedAt: time.Now().UTC(),
			}
			outcomes = append(outcomes, outcome)
			metrics.RecordItem(outcome.State, outcome.Cause)
			continue
		}

		for _, q := range queries {
			if capReached() {
				break
			}
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}

			outcome, cooldown := p.processItem(ctx, q)
			outcomes = append(outcomes, outcome)
			metrics.RecordItem(outcome.State, outcome.Cause)

			if cooldown {
				p.logger.Info("resolver failure, extended cooldown", "keyword", q.Keyword, "cooldown", p.cfg.Cooldown)
				if err := ratelimit.SleepBetween(ctx, p.cfg.Cooldown, p.cfg.Cooldown+p.cfg.Cooldown/2); err != nil {
					return outcomes, err
				}
			}
			if err := ratelimit.SleepBetween(ctx, p.cfg.ItemDelayMin, p.cfg.ItemDelayMax); err != nil {
				return outcomes, err
			}
		}
	}

	return outcomes, nil
}

// processItem runs one item to its terminal state. The second return is
// true when the next item should start only after an extended cooldown.
// Once an item enters resolving it always runs to emitted or skipped; there
// is no mid-item cancellation beyond the context plumbed into each call.
func (p *Pipeline) processItem(ctx context.Context, q trends.QueryDescriptor) (report.ItemOutcome, bool) {
	start := time.Now()
	outcome := report.ItemOutcome{
		Input:      q.RawInput,
		SearchTerm: q.Keyword,
	}
	finish := func(state State, cause string) report.ItemOutcome {
		outcome.State = report.StateEmitted
		if state != StateEmitted {
			outcome.State = report.StateSkipped
		}
		outcome.Cause = cause
		outcome.Duration = time.Since(start)
		outcome.FinishedAt = time.Now().UTC()
		p.logger.Info("item finished", "keyword", q.Keyword, "state", state.String(), "cause", cause, "duration", outcome.Duration)
		return outcome
	}

	p.logger.Debug("item state", "keyword", q.Keyword, "state", StateResolving.String())
	widgets, err := p.resolver.Resolve(ctx, q)
	if err != nil {
		p.logger.Warn("resolver failed", "keyword", q.Keyword, "err", err)
		return finish(StateSkipped, CauseResolverFailure), true
	}
	if len(widgets) == 0 {
		// Valid terminal state: the backend has nothing for this query.
		return finish(StateSkipped, CauseNoData), false
	}

	p.logger.Debug("item state", "keyword", q.Keyword, "state", StateFetching.String(), "widgets", len(widgets))
	results := p.fetchWidgets(ctx, widgets)

	p.logger.Debug("item state", "keyword", q.Keyword, "state", StateClassifying.String())
	rec, hasData := trends.Assemble(q, results, p.logger)
	p.logger.Debug("item state", "keyword", q.Keyword, "state", StateAssembling.String(), "hasData", hasData)

	if !hasData {
		return finish(StateSkipped, CauseNoData), false
	}

	stored := &storage.StoredRecord{
		ID:               uuid.New().String(),
		CreatedAt:        time.Now().UTC(),
		NormalizedRecord: rec,
	}
	if err := p.backend.Save(ctx, stored); err != nil {
		p.logger.Error("failed to save record", "keyword", q.Keyword, "err", err)
		return finish(StateSkipped, CauseSinkError), false
	}

	return finish(StateEmitted, ""), false
}

// fetchWidgets retrieves the four known widget payloads. Fetches are
// independent and run concurrently within the item; each start is staggered
// by a jittered offset to avoid a burst against the shared session. Widget
// failures have already degraded to empty collections inside the fetcher.
func (p *Pipeline) fetchWidgets(ctx context.Context, widgets trends.WidgetSet) trends.WidgetResults {
	var results trends.WidgetResults

	geoWidget := widgets.Lookup(trends.WidgetGeoMap)
	if geoWidget != nil {
		results.GeoResolution = geoWidget.Resolution
	}

	stagger := func(i int) {
		if p.cfg.FetchStagger <= 0 || i == 0 {
			return
		}
		d := time.Duration(rand.Int63n(int64(p.cfg.FetchStagger)))*time.Duration(i) + p.cfg.FetchStagger/2
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results.Timeline = p.fetcher.Timeline(gctx, widgets.Lookup(trends.WidgetTimeseries))
		return nil
	})
	g.Go(func() error {
		stagger(1)
		results.Geo = p.fetcher.GeoMap(gctx, geoWidget)
		return nil
	})
	g.Go(func() error {
		stagger(2)
		results.TopicLists = p.fetcher.RelatedSearches(gctx, widgets.Lookup(trends.WidgetRelatedTopics))
		return nil
	})
	g.Go(func() error {
		stagger(3)
		results.QueryLists = p.fetcher.RelatedSearches(gctx, widgets.Lookup(trends.WidgetRelatedQueries))
		return nil
	})
	_ = g.Wait()

	for widget, empty := range map[string]bool{
		string(trends.WidgetTimeseries):     len(results.Timeline) == 0,
		string(trends.WidgetGeoMap):         len(results.Geo) == 0,
		string(trends.WidgetRelatedTopics):  len(results.TopicLists) == 0,
		string(trends.WidgetRelatedQueries): len(results.QueryLists) == 0,
	} {
		if empty {
			metrics.RecordEmptyWidget(widget)
		}
	}

	return results
}
