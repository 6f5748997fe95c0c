package trends

import "log/slog"

// NormalizedRecord is the one stable output shape per query. Every list
// field defaults to an empty slice, never null, so downstream consumers
// never branch on field presence. At most one of the three geo sections is
// populated per query.
type NormalizedRecord struct {
	InputURLOrTerm string `json:"inputUrlOrTerm"`
	SearchTerm     string `json:"searchTerm"`
	Geo            string `json:"geo"`
	TimeRange      string `json:"timeRange"`

	InterestOverTime    []TimelinePoint `json:"interestOverTime_timelineData"`
	InterestBySubregion []GeoValue      `json:"interestBySubregion"`
	InterestByCity      []GeoValue      `json:"interestByCity"`
	InterestBy          []GeoValue      `json:"interestBy"`

	RelatedTopicsTop     []RankedKeyword `json:"relatedTopics_top"`
	RelatedTopicsRising  []RankedKeyword `json:"relatedTopics_rising"`
	RelatedQueriesTop    []RankedKeyword `json:"relatedQueries_top"`
	RelatedQueriesRising []RankedKeyword `json:"relatedQueries_rising"`
}

// WidgetResults collects the raw widget payloads of one query before
// classification. Any field may be nil when the widget was missing or its
// fetch degraded.
type WidgetResults struct {
	Timeline      []TimelinePoint
	Geo           []GeoValue
	GeoResolution Resolution
	TopicLists    [][]RankedKeyword
	QueryLists    [][]RankedKeyword
}

// Assemble merges the query and its widget results into the normalized
// record. The returned hasData flag governs emission: a record counts as
// having data when the timeline, top topics, or top queries is non-empty.
// The flag is an orchestrator signal, not a record field.
func Assemble(q QueryDescriptor, res WidgetResults, logger *slog.Logger) (*NormalizedRecord, bool) {
	if logger == nil {
		logger = slog.Default()
	}

	rec := &NormalizedRecord{
		InputURLOrTerm: q.RawInput,
		SearchTerm:     q.Keyword,
		Geo:            q.Geo,
		TimeRange:      q.TimeRange,

		InterestOverTime:    emptyIfNilTimeline(res.Timeline),
		InterestBySubregion: []GeoValue{},
		InterestByCity:      []GeoValue{},
		InterestBy:          []GeoValue{},
	}

	if len(res.Geo) > 0 {
		switch GeoBucketFor(res.GeoResolution) {
		case GeoSubregion:
			rec.InterestBySubregion = res.Geo
		case GeoCity:
			rec.InterestByCity = res.Geo
		default:
			rec.InterestBy = res.Geo
		}
	}

	topicsTop, topicsRising := SplitRelated(res.TopicLists, logger)
	queriesTop, queriesRising := SplitRelated(res.QueryLists, logger)
	rec.RelatedTopicsTop = emptyIfNilRanked(topicsTop)
	rec.RelatedTopicsRising = emptyIfNilRanked(topicsRising)
	rec.RelatedQueriesTop = emptyIfNilRanked(queriesTop)
	rec.RelatedQueriesRising = emptyIfNilRanked(queriesRising)

	hasData := len(rec.InterestOverTime) > 0 ||
		len(rec.RelatedTopicsTop) > 0 ||
		len(rec.RelatedQueriesTop) > 0
	return rec, hasData
}

func emptyIfNilTimeline(s []TimelinePoint) []TimelinePoint {
	if s == nil {
		return []TimelinePoint{}
	}
	return s
}

func emptyIfNilRanked(s []RankedKeyword) []RankedKeyword {
	if s == nil {
		return []RankedKeyword{}
	}
	return s
}
