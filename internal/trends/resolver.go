package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// Endpoints of the undocumented widget API. The explore call mints the
// per-widget tokens; the widgetdata calls spend them.
const (
	BaseURL                 = "https://trends.google.com"
	ExploreEndpoint         = BaseURL + "/trends/api/explore"
	MultilineEndpoint       = BaseURL + "/trends/api/widgetdata/multiline"
	ComparedGeoEndpoint     = BaseURL + "/trends/api/widgetdata/comparedgeo"
	RelatedSearchesEndpoint = BaseURL + "/trends/api/widgetdata/relatedsearches"
)

// Requester executes one logical GET and decodes the prefixed JSON body
// into out. Implemented by the retrying transport.
type Requester interface {
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// Resolver discovers which widgets the backend offers for a query and the
// security token each one requires.
type Resolver struct {
	requester Requester
	hl        string
	tz        int
	logger    *slog.Logger
}

// NewResolver creates a Resolver. hl/tz mirror what a browser sends; the
// backend rejects requests without them.
func NewResolver(requester Requester, hl string, tz int, logger *slog.Logger) *Resolver {
	if hl == "" {
		hl = "en-US"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{requester: requester, hl: hl, tz: tz, logger: logger}
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Geo     string `json:"geo"`
	Time    string `json:"time"`
}

type exploreResponse struct {
	Widgets []exploreWidget `json:"widgets"`
}

type exploreWidget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

// Resolve issues the discovery call for q and maps the returned widgets
// into descriptors. An empty widget array is a terminal "no data available"
// outcome, reported as an empty set with no error; a response missing the
// widgets key entirely is malformed.
func (r *Resolver) Resolve(ctx context.Context, q QueryDescriptor) (WidgetSet, error) {
	req := exploreRequest{
		ComparisonItem: []comparisonItem{{
			Keyword: q.Keyword,
			Geo:     q.Geo,
			Time:    q.TimeRange,
		}},
		Category: q.Category,
		Property: q.Property,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: encode request: %w", q.Keyword, err)
	}

	params := url.Values{}
	params.Set("hl", r.hl)
	params.Set("tz", strconv.Itoa(r.tz))
	params.Set("req", string(payload))

	var decoded exploreResponse
	if err := r.requester.GetJSON(ctx, ExploreEndpoint+"?"+params.Encode(), &decoded); err != nil {
		return nil, fmt.Errorf("resolve %q: %w", q.Keyword, err)
	}
	if decoded.Widgets == nil {
		return nil, fmt.Errorf("resolve %q: missing widgets array: %w", q.Keyword, ErrMalformedResponse)
	}
	if len(decoded.Widgets) == 0 {
		r.logger.Info("no widgets available", "keyword", q.Keyword, "geo", q.Geo)
		return WidgetSet{}, nil
	}

	set := make(WidgetSet, 0, len(decoded.Widgets))
	for _, w := range decoded.Widgets {
		set = append(set, WidgetDescriptor{
			ID:         WidgetID(w.ID),
			Request:    w.Request,
			Token:      w.Token,
			Resolution: peekResolution(w.Request),
		})
	}
	return set, nil
}

// peekResolution reads only the resolution field from an otherwise opaque
// widget request payload. The payload itself stays untouched.
func peekResolution(request json.RawMessage) Resolution {
	if len(request) == 0 {
		return ""
	}
	var hint struct {
		Resolution string `json:"resolution"`
	}
	if err := json.Unmarshal(request, &hint); err != nil {
		return ""
	}
	return Resolution(hint.Resolution)
}
