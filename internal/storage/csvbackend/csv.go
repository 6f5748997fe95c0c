package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

// csvBackend flattens records into CSV rows. Nested list sections are
// stored as JSON strings in their columns; scalar counts are provided
// alongside for spreadsheet use.
type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"input_url_or_term",
	"search_term",
	"geo",
	"time_range",
	"timeline_points",
	"timeline_json",
	"geo_subregion_json",
	"geo_city_json",
	"geo_country_json",
	"related_topics_top_json",
	"related_topics_rising_json",
	"related_queries_top_json",
	"related_queries_rising_json",
	"created_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", filePath, err)
	}

	// Write headers only into an empty file
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat %s: %w", filePath, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: flush header: %w", err)
		}
	}

	return &csvBackend{file: f}, nil
}

func marshalColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *csvBackend) Save(ctx context.Context, rec *storage.StoredRecord) error {
	cols := []any{
		rec.InterestOverTime,
		rec.InterestBySubregion,
		rec.InterestByCity,
		rec.InterestBy,
		rec.RelatedTopicsTop,
		rec.RelatedTopicsRising,
		rec.RelatedQueriesTop,
		rec.RelatedQueriesRising,
	}
	encoded := make([]string, 0, len(cols))
	for _, c := range cols {
		s, err := marshalColumn(c)
		if err != nil {
			return fmt.Errorf("csvbackend: marshal column: %w", err)
		}
		encoded = append(encoded, s)
	}

	row := []string{
		rec.ID,
		rec.InputURLOrTerm,
		rec.SearchTerm,
		rec.Geo,
		rec.TimeRange,
		strconv.Itoa(len(rec.InterestOverTime)),
		encoded[0],
		encoded[1],
		encoded[2],
		encoded[3],
		encoded[4],
		encoded[5],
		encoded[6],
		encoded[7],
		rec.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: write row: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush row: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.StoredRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvbackend: read: %w", err)
	}

	var filtered []*storage.StoredRecord
	for i, row := range rows {
		if i == 0 || len(row) != len(headers) {
			continue // header or malformed row
		}

		rec, err := rowToRecord(row)
		if err != nil {
			return nil, fmt.Errorf("csvbackend: row %d: %w", i, err)
		}

		if filter.SearchTerm != "" && rec.SearchTerm != filter.SearchTerm {
			continue
		}
		if filter.Geo != "" && rec.Geo != filter.Geo {
			continue
		}
		if filter.Since != nil && rec.CreatedAt.Before(*filter.Since) {
			continue
		}

		filtered = append(filtered, rec)
	}

	// Newest first
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(filtered) {
			return []*storage.StoredRecord{}, nil
		}
		filtered = filtered[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(filtered) {
		filtered = filtered[:filter.Limit]
	}

	return filtered, nil
}

func rowToRecord(row []string) (*storage.StoredRecord, error) {
	rec := &storage.StoredRecord{
		ID: row[0],
		NormalizedRecord: &trends.NormalizedRecord{
			InputURLOrTerm: row[1],
			SearchTerm:     row[2],
			Geo:            row[3],
			TimeRange:      row[4],
		},
	}

	targets := []any{
		&rec.InterestOverTime,
		&rec.InterestBySubregion,
		&rec.InterestByCity,
		&rec.InterestBy,
		&rec.RelatedTopicsTop,
		&rec.RelatedTopicsRising,
		&rec.RelatedQueriesTop,
		&rec.RelatedQueriesRising,
	}
	for i, target := range targets {
		if err := json.Unmarshal([]byte(row[6+i]), target); err != nil {
			return nil, err
		}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, row[14])
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt

	return rec, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
