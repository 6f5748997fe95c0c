package storage

import (
	"context"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// StoredRecord wraps one normalized record with sink metadata. The metadata
// is excluded from JSON so the NDJSON sink emits exactly the record fields;
// database sinks persist it as columns.
type StoredRecord struct {
	ID        string    `json:"-"`
	CreatedAt time.Time `json:"-"`
	*trends.NormalizedRecord
}

// Filter allows querying for stored records.
type Filter struct {
	SearchTerm string
	Geo        string
	Since      *time.Time
	Limit      int
	Offset     int
}

// Backend defines the interface for the output sink. Save is append-only:
// a record is written at most once per input item and never updated.
type Backend interface {
	Save(ctx context.Context, rec *StoredRecord) error
	Query(ctx context.Context, filter Filter) ([]*StoredRecord, error)
	Close() error
}
