package trends

import "encoding/json"

// WidgetID identifies one backend data section. Ids outside the known set
// are kept as-is and ignored by the fetchers.
type WidgetID string

const (
	WidgetTimeseries     WidgetID = "TIMESERIES"
	WidgetGeoMap         WidgetID = "GEO_MAP"
	WidgetRelatedTopics  WidgetID = "RELATED_TOPICS"
	WidgetRelatedQueries WidgetID = "RELATED_QUERIES"
)

// Resolution is the backend-declared granularity of a geo widget.
type Resolution string

const (
	ResolutionCountry Resolution = "COUNTRY"
	ResolutionRegion  Resolution = "REGION"
	ResolutionCity    Resolution = "CITY"
)

// WidgetDescriptor holds everything needed to fetch one widget's data.
// Request and Token are opaque credentials minted by the discovery call;
// they are round-tripped verbatim and never parsed beyond the shallow
// resolution peek below.
type WidgetDescriptor struct {
	ID         WidgetID
	Request    json.RawMessage
	Token      string
	Resolution Resolution
}

// WidgetSet is the outcome of one discovery call. Order is preserved for
// unrecognized ids; known ids are fetched by lookup.
type WidgetSet []WidgetDescriptor

// Lookup returns the first widget with the given id, or nil when the
// backend omitted it. A missing widget is a valid state: the matching
// output section stays empty.
func (s WidgetSet) Lookup(id WidgetID) *WidgetDescriptor {
	for i := range s {
		if s[i].ID == id {
			return &s[i]
		}
	}
	return nil
}
