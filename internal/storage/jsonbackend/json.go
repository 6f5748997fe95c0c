package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

// jsonBackend appends one JSON object per record (NDJSON). This is the
// primary output sink: the line carries exactly the normalized record
// fields, nothing else.
type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: open %s: %w", filePath, err)
	}

	return &jsonBackend{file: f}, nil
}

func (b *jsonBackend) Save(ctx context.Context, rec *storage.StoredRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("jsonbackend: marshal record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonbackend: append record: %w", err)
	}

	return nil
}

// Query reads all lines back and filters in memory. NDJSON lines carry only
// the record fields, so the Since filter cannot be applied here; database
// backends support it.
func (b *jsonBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.StoredRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("jsonbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var filtered []*storage.StoredRecord
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec := &storage.StoredRecord{NormalizedRecord: &trends.NormalizedRecord{}}
		if err := json.Unmarshal(line, rec); err != nil {
			return nil, fmt.Errorf("jsonbackend: unmarshal record: %w", err)
		}

		if filter.SearchTerm != "" && rec.SearchTerm != filter.SearchTerm {
			continue
		}
		if filter.Geo != "" && rec.Geo != filter.Geo {
			continue
		}

		filtered = append(filtered, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("jsonbackend: scan: %w", err)
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

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
