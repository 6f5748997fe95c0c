package trends

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultTimeRange is applied when neither the input URL nor the global
// options specify one.
const DefaultTimeRange = "today 12-m"

// TimeRanges lists the ranges the explore endpoint accepts. A custom range
// (e.g. "2024-01-01 2024-06-30") bypasses this set.
var TimeRanges = []string{
	"now 1-H",
	"now 4-H",
	"now 1-d",
	"now 7-d",
	"today 1-m",
	"today 3-m",
	"today 12-m",
	"today 5-y",
	"all",
}

// Options carries the global defaults applied to every input item. Values
// parsed from an explore URL override these per field.
type Options struct {
	Geo       string
	TimeRange string
	Category  int
	Property  string
	// SplitKeywords splits comma-joined keyword strings into one query each.
	SplitKeywords bool
}

// QueryDescriptor is the canonical form of one input item. It is created
// once per item and immutable thereafter.
type QueryDescriptor struct {
	RawInput  string
	Keyword   string
	Geo       string // ISO 3166-1 alpha-2, empty = worldwide
	TimeRange string
	Category  int
	Property  string // empty = web search
}

// IsValidTimeRange reports whether tr is one of the enumerated ranges.
func IsValidTimeRange(tr string) bool {
	for _, r := range TimeRanges {
		if r == tr {
			return true
		}
	}
	return false
}

// Normalize turns one raw input string into canonical query descriptors.
// A string that parses as an absolute explore URL contributes its own
// keyword/geo/time/category, each overriding the global default only when
// present. Anything else is treated as a bare keyword (or several, when
// SplitKeywords is set). No network access happens here.
func Normalize(raw string, opts Options) ([]QueryDescriptor, error) {
	if opts.TimeRange == "" {
		opts.TimeRange = DefaultTimeRange
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("normalize %q: %w", raw, ErrInvalidQuery)
	}

	if u, ok := parseExploreURL(trimmed); ok {
		q, err := fromExploreURL(raw, u, opts)
		if err != nil {
			return nil, err
		}
		return []QueryDescriptor{q}, nil
	}

	keywords := []string{trimmed}
	if opts.SplitKeywords && strings.Contains(trimmed, ",") {
		keywords = keywords[:0]
		for _, part := range strings.Split(trimmed, ",") {
			if p := strings.TrimSpace(part); p != "" {
				keywords = append(keywords, p)
			}
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("normalize %q: %w", raw, ErrInvalidQuery)
	}

	out := make([]QueryDescriptor, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, QueryDescriptor{
			RawInput:  raw,
			Keyword:   kw,
			Geo:       opts.Geo,
			TimeRange: opts.TimeRange,
			Category:  opts.Category,
			Property:  opts.Property,
		})
	}
	return out, nil
}

// parseExploreURL accepts only absolute http(s) URLs with a query string.
// Bare keywords containing slashes or dots must not be mistaken for URLs.
func parseExploreURL(s string) (*url.URL, bool) {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

func fromExploreURL(raw string, u *url.URL, opts Options) (QueryDescriptor, error) {
	params := u.Query()

	q := QueryDescriptor{
		RawInput:  raw,
		Keyword:   strings.TrimSpace(params.Get("q")),
		Geo:       opts.Geo,
		TimeRange: opts.TimeRange,
		Category:  opts.Category,
		Property:  opts.Property,
	}

	if geo := strings.TrimSpace(params.Get("geo")); geo != "" {
		q.Geo = geo
	}
	if date := strings.TrimSpace(params.Get("date")); date != "" {
		q.TimeRange = date
	}
	if cat := strings.TrimSpace(params.Get("cat")); cat != "" {
		n, err := strconv.Atoi(cat)
		if err == nil && n >= 0 {
			q.Category = n
		}
	}
	if prop := strings.TrimSpace(params.Get("gprop")); prop != "" {
		q.Property = prop
	}

	if q.Keyword == "" {
		return QueryDescriptor{}, fmt.Errorf("normalize %q: %w", raw, ErrInvalidQuery)
	}
	return q, nil
}
