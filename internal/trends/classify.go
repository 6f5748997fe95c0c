package trends

import (
	"log/slog"
	"strings"
)

// Bucket tags a ranked list as "top" or "rising". The backend reuses one
// payload shape for both meanings, so the tag is a heuristic over the
// formatted values, not a fact carried on the wire.
type Bucket int

const (
	BucketTop Bucket = iota
	BucketRising
)

func (b Bucket) String() string {
	if b == BucketRising {
		return "rising"
	}
	return "top"
}

// ClassifyRankedList tags a list as rising when any item's formatted value
// carries a growth marker: a percent sign or the literal "Breakout".
// All-numeric lists are top.
func ClassifyRankedList(items []RankedKeyword) Bucket {
	for _, it := range items {
		if strings.Contains(it.FormattedValue, "%") ||
			strings.EqualFold(it.FormattedValue, "breakout") {
			return BucketRising
		}
	}
	return BucketTop
}

// SplitRelated classifies each ranked list of one widget payload into the
// top/rising buckets. When two lists land in the same bucket the later one
// wins, mirroring backend payload order; the overwrite is logged so the
// discarded-data case stays visible.
func SplitRelated(lists [][]RankedKeyword, logger *slog.Logger) (top, rising []RankedKeyword) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, list := range lists {
		switch ClassifyRankedList(list) {
		case BucketRising:
			if rising != nil {
				logger.Warn("overwriting earlier related list", "bucket", "rising", "discarded", len(rising))
			}
			rising = list
		default:
			if top != nil {
				logger.Warn("overwriting earlier related list", "bucket", "top", "discarded", len(top))
			}
			top = list
		}
	}
	return top, rising
}

// GeoBucket names the record section a geo payload belongs to.
type GeoBucket int

const (
	GeoCountry GeoBucket = iota // country-level, the default
	GeoSubregion
	GeoCity
)

// GeoBucketFor routes a geo payload by the widget's resolution hint. One
// payload always lands in exactly one bucket; anything unrecognized or
// absent is country-level.
func GeoBucketFor(res Resolution) GeoBucket {
	switch res {
	case ResolutionRegion:
		return GeoSubregion
	case ResolutionCity:
		return GeoCity
	default:
		return GeoCountry
	}
}
