package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS trend_records (
	id TEXT PRIMARY KEY,
	input_url_or_term TEXT NOT NULL,
	search_term TEXT NOT NULL,
	geo TEXT NOT NULL,
	time_range TEXT NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *storage.StoredRecord) error {
	recordJSON, err := json.Marshal(rec.NormalizedRecord)
	if err != nil {
		return fmt.Errorf("postgres: marshal record: %w", err)
	}

	query := `
	INSERT INTO trend_records (
		id, input_url_or_term, search_term, geo, time_range, record, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = b.pool.Exec(ctx, query,
		rec.ID,
		rec.InputURLOrTerm,
		rec.SearchTerm,
		rec.Geo,
		rec.TimeRange,
		recordJSON,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert record: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.StoredRecord, error) {
	query := `SELECT id, record, created_at FROM trend_records WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.SearchTerm != "" {
		query += fmt.Sprintf(` AND search_term = $%d`, paramCount)
		args = append(args, filter.SearchTerm)
		paramCount++
	}
	if filter.Geo != "" {
		query += fmt.Sprintf(` AND geo = $%d`, paramCount)
		args = append(args, filter.Geo)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
		paramCount++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query records: %w", err)
	}
	defer rows.Close()

	var out []*storage.StoredRecord
	for rows.Next() {
		var (
			id         string
			recordJSON []byte
			createdAt  time.Time
		)
		if err := rows.Scan(&id, &recordJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}

		var record trends.NormalizedRecord
		if err := json.Unmarshal(recordJSON, &record); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal record %s: %w", id, err)
		}

		out = append(out, &storage.StoredRecord{
			ID:               id,
			CreatedAt:        createdAt,
			NormalizedRecord: &record,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rows: %w", err)
	}

	return out, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
