package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS trend_records (
	id TEXT PRIMARY KEY,
	input_url_or_term TEXT NOT NULL,
	search_term TEXT NOT NULL,
	geo TEXT NOT NULL,
	time_range TEXT NOT NULL,
	record TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *storage.StoredRecord) error {
	recordJSON, err := json.Marshal(rec.NormalizedRecord)
	if err != nil {
		return fmt.Errorf("sqlite: marshal record: %w", err)
	}

	query := `
	INSERT INTO trend_records (
		id, input_url_or_term, search_term, geo, time_range, record, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		rec.ID,
		rec.InputURLOrTerm,
		rec.SearchTerm,
		rec.Geo,
		rec.TimeRange,
		string(recordJSON),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert record: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.StoredRecord, error) {
	query := `SELECT id, record, created_at FROM trend_records WHERE 1=1`
	args := []any{}

	if filter.SearchTerm != "" {
		query += ` AND search_term = ?`
		args = append(args, filter.SearchTerm)
	}
	if filter.Geo != "" {
		query += ` AND geo = ?`
		args = append(args, filter.Geo)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query records: %w", err)
	}
	defer rows.Close()

	var out []*storage.StoredRecord
	for rows.Next() {
		var (
			id         string
			recordJSON string
			createdAt  time.Time
		)
		if err := rows.Scan(&id, &recordJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}

		var record trends.NormalizedRecord
		if err := json.Unmarshal([]byte(recordJSON), &record); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal record %s: %w", id, err)
		}

		out = append(out, &storage.StoredRecord{
			ID:               id,
			CreatedAt:        createdAt,
			NormalizedRecord: &record,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate rows: %w", err)
	}

	return out, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
