package csvbackend

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/storage"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/trends"
)

func testRecord(term, geo string) *storage.StoredRecord {
	rec, _ := trends.Assemble(trends.QueryDescriptor{
		RawInput:  term,
		Keyword:   term,
		Geo:       geo,
		TimeRange: "today 3-m",
	}, trends.WidgetResults{
		Timeline: []trends.TimelinePoint{
			{Time: "1700000000", Value: []int{55}, FormattedValue: []string{"55"}, HasData: []bool{true}},
			{Time: "1700600000", Value: []int{60}, FormattedValue: []string{"60"}, HasData: []bool{true}},
		},
		QueryLists: [][]trends.RankedKeyword{
			{{Query: "latte", Value: 100, FormattedValue: "100", HasData: true}},
		},
	}, nil)
	return &storage.StoredRecord{
		ID:               term + "-id",
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
		NormalizedRecord: rec,
	}
}

func newTestBackend(t *testing.T) (storage.Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	b, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, path
}

func TestCSVBackend_WritesHeaderOnce(t *testing.T) {
	b, path := newTestBackend(t)
	ctx := context.Background()

	if err := b.Save(ctx, testRecord("coffee", "US")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	b.Close()

	// Reopening an existing file must not duplicate the header
	b2, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b2.Close()
	if err := b2.Save(ctx, testRecord("tea", "US")); err != nil {
		t.Fatalf("Save after reopen failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d rows", len(rows))
	}
	if rows[0][0] != "id" || rows[0][2] != "search_term" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
	if rows[1][2] != "coffee" || rows[2][2] != "tea" {
		t.Errorf("unexpected data rows: %v / %v", rows[1], rows[2])
	}
}

func TestCSVBackend_RoundTrip(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	want := testRecord("coffee", "US")
	if err := b.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}

	rec := got[0]
	if rec.ID != want.ID || rec.SearchTerm != "coffee" || rec.Geo != "US" || rec.TimeRange != "today 3-m" {
		t.Errorf("identity fields mangled: %+v", rec)
	}
	if len(rec.InterestOverTime) != 2 || rec.InterestOverTime[1].Value[0] != 60 {
		t.Errorf("timeline column mangled: %+v", rec.InterestOverTime)
	}
	if len(rec.RelatedQueriesTop) != 1 || rec.RelatedQueriesTop[0].Query != "latte" {
		t.Errorf("related queries column mangled: %+v", rec.RelatedQueriesTop)
	}
	if !rec.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at mangled: want %v, got %v", want.CreatedAt, rec.CreatedAt)
	}
}

func TestCSVBackend_QueryFilters(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	b.Save(ctx, testRecord("coffee", "US"))
	b.Save(ctx, testRecord("coffee", "GB"))
	b.Save(ctx, testRecord("tea", "GB"))

	got, err := b.Query(ctx, storage.Filter{SearchTerm: "coffee", Geo: "GB"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].Geo != "GB" {
		t.Errorf("unexpected filter result: %+v", got)
	}
}

func TestCSVBackend_SinceFilter(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	old := testRecord("coffee", "US")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	recent := testRecord("tea", "US")

	b.Save(ctx, old)
	b.Save(ctx, recent)

	cutoff := time.Now().UTC().Add(-time.Hour)
	got, err := b.Query(ctx, storage.Filter{Since: &cutoff})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 1 || got[0].SearchTerm != "tea" {
		t.Errorf("expected only the recent record, got %+v", got)
	}
}

func TestCSVBackend_QueryPagination(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	for _, term := range []string{"a", "b", "c"} {
		b.Save(ctx, testRecord(term, ""))
	}

	page, err := b.Query(ctx, storage.Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page) != 1 || page[0].SearchTerm != "b" {
		t.Errorf("unexpected page: %+v", page)
	}
}
