package trends

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
)

// TimelinePoint is one sample of the interest-over-time series. The value
// fields are arrays because the backend shape covers keyword comparisons;
// single-keyword queries carry one element each.
type TimelinePoint struct {
	Time              string   `json:"time"`
	FormattedTime     string   `json:"formattedTime"`
	FormattedAxisTime string   `json:"formattedAxisTime,omitempty"`
	Value             []int    `json:"value"`
	HasData           []bool   `json:"hasData"`
	FormattedValue    []string `json:"formattedValue"`
}

// GeoValue is interest in one geographic unit at the widget's resolution.
type GeoValue struct {
	GeoCode        string   `json:"geoCode"`
	GeoName        string   `json:"geoName"`
	Value          []int    `json:"value"`
	FormattedValue []string `json:"formattedValue"`
	HasData        []bool   `json:"hasData"`
	MaxValueIndex  int      `json:"maxValueIndex"`
}

// Topic is the entity attached to a related-topics item.
type Topic struct {
	Mid   string `json:"mid"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// RankedKeyword is one entry of a related-searches list. Related queries
// carry Query; related topics carry Topic. FormattedValue is either a score
// ("53"), a growth marker ("+250%"), or "Breakout".
type RankedKeyword struct {
	Query          string `json:"query,omitempty"`
	Topic          *Topic `json:"topic,omitempty"`
	Value          int    `json:"value"`
	FormattedValue string `json:"formattedValue"`
	HasData        bool   `json:"hasData"`
	Link           string `json:"link,omitempty"`
}

// Keyword returns the display keyword regardless of list flavor.
func (k RankedKeyword) Keyword() string {
	if k.Query != "" {
		return k.Query
	}
	if k.Topic != nil {
		return k.Topic.Title
	}
	return ""
}

// Fetcher retrieves the data payload of individual widgets. A nil widget
// descriptor or an exhausted transport degrades to an empty collection:
// a partial record is better than no record, so widget-level failures
// never abort the item.
type Fetcher struct {
	requester Requester
	hl        string
	tz        int
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher sharing the resolver's locale settings.
func NewFetcher(requester Requester, hl string, tz int, logger *slog.Logger) *Fetcher {
	if hl == "" {
		hl = "en-US"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{requester: requester, hl: hl, tz: tz, logger: logger}
}

// widgetURL builds a data request carrying the widget's verbatim request
// payload and its token.
func (f *Fetcher) widgetURL(endpoint string, w *WidgetDescriptor) string {
	params := url.Values{}
	params.Set("hl", f.hl)
	params.Set("tz", strconv.Itoa(f.tz))
	params.Set("req", string(w.Request))
	params.Set("token", w.Token)
	return endpoint + "?" + params.Encode()
}

// Timeline fetches the interest-over-time series.
func (f *Fetcher) Timeline(ctx context.Context, w *WidgetDescriptor) []TimelinePoint {
	if w == nil {
		return nil
	}
	var decoded struct {
		Default struct {
			TimelineData []TimelinePoint `json:"timelineData"`
		} `json:"default"`
	}
	if err := f.requester.GetJSON(ctx, f.widgetURL(MultilineEndpoint, w), &decoded); err != nil {
		f.logger.Warn("timeline widget fetch failed", "err", err)
		return nil
	}
	return decoded.Default.TimelineData
}

// GeoMap fetches interest by geographic unit at the widget's resolution.
func (f *Fetcher) GeoMap(ctx context.Context, w *WidgetDescriptor) []GeoValue {
	if w == nil {
		return nil
	}
	var decoded struct {
		Default struct {
			GeoMapData []GeoValue `json:"geoMapData"`
		} `json:"default"`
	}
	if err := f.requester.GetJSON(ctx, f.widgetURL(ComparedGeoEndpoint, w), &decoded); err != nil {
		f.logger.Warn("geo widget fetch failed", "err", err)
		return nil
	}
	return decoded.Default.GeoMapData
}

// RelatedSearches fetches the ranked lists of a related-topics or
// related-queries widget. The backend returns the top and rising lists in
// one payload with no structural distinction; classification happens later.
func (f *Fetcher) RelatedSearches(ctx context.Context, w *WidgetDescriptor) [][]RankedKeyword {
	if w == nil {
		return nil
	}
	var decoded struct {
		Default struct {
			RankedList []struct {
				RankedKeyword []RankedKeyword `json:"rankedKeyword"`
			} `json:"rankedList"`
		} `json:"default"`
	}
	if err := f.requester.GetJSON(ctx, f.widgetURL(RelatedSearchesEndpoint, w), &decoded); err != nil {
		f.logger.Warn("related searches widget fetch failed", "err", err)
		return nil
	}
	lists := make([][]RankedKeyword, 0, len(decoded.Default.RankedList))
	for _, l := range decoded.Default.RankedList {
		lists = append(lists, l.RankedKeyword)
	}
	return lists
}
