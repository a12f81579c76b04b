package writer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/okx-feed/internal/router"
)

// fakeDB records batches. Rows whose index is in conflict report zero rows
// affected.
type fakeDB struct {
	mu       sync.Mutex
	batches  []*pgx.Batch
	conflict map[int]bool
	err      error
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return &fakeResults{conflict: f.conflict, err: f.err}
}

func (f *fakeDB) queued() []*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*pgx.QueuedQuery
	for _, b := range f.batches {
		out = append(out, b.QueuedQueries...)
	}
	return out
}

type fakeResults struct {
	conflict map[int]bool
	err      error
	i        int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	defer func() { r.i++ }()
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	if r.conflict[r.i] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"42150.5", ptr(42150.5)},
		{"0", ptr(0)},
		{"", nil},
		{"abc", nil},
	}
	for _, tt := range tests {
		got := parseFloat(tt.in)
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("parseFloat(%q) = %v, want %v", tt.in, deref(got), deref(tt.want))
		}
	}
}

func TestPriceLevelsToJSONB(t *testing.T) {
	data := priceLevelsToJSONB([]router.PriceLevel{
		{Price: "42150.6", Size: "1.2", Orders: 3},
		{Price: "bad", Size: "0.5"},
	})

	var levels []priceLevelJSON
	if err := json.Unmarshal(data, &levels); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if levels[0] != (priceLevelJSON{Price: 42150.6, Size: 1.2, Orders: 3}) {
		t.Errorf("levels[0] = %+v", levels[0])
	}
	if levels[1].Price != 0 {
		t.Errorf("levels[1].Price = %v, want 0 for malformed input", levels[1].Price)
	}

	if got := string(priceLevelsToJSONB(nil)); got != "[]" {
		t.Errorf("empty levels = %s, want []", got)
	}
}

func TestBatchWriter_FlushCountsConflicts(t *testing.T) {
	db := &fakeDB{conflict: map[int]bool{1: true}}
	input := router.NewGrowableBuffer[router.TradeMsg](10, 0)
	w := NewTradeWriter(DefaultWriterConfig(), input, db, nil)

	for _, id := range []string{"1", "2", "3"} {
		w.add(router.TradeMsg{InstID: "BTC-USDT", TradeID: id, Price: "1", Size: "1"})
	}
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Inserts != 2 || stats.Conflicts != 1 || stats.Flushes != 1 {
		t.Errorf("Stats = %+v, want 2 inserts, 1 conflict, 1 flush", stats)
	}

	// Empty batch is a no-op.
	w.flush(context.Background())
	if got := w.Stats().Flushes; got != 1 {
		t.Errorf("Flushes = %d after empty flush, want 1", got)
	}
}

func TestBatchWriter_FlushError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	input := router.NewGrowableBuffer[router.TickerMsg](10, 0)
	w := NewTickerWriter(DefaultWriterConfig(), input, db, nil)

	w.add(router.TickerMsg{InstID: "BTC-USDT"})
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Errors != 1 || stats.Inserts != 0 || stats.Flushes != 0 {
		t.Errorf("Stats = %+v, want 1 error", stats)
	}
}

func TestBatchWriter_AddReportsFull(t *testing.T) {
	input := router.NewGrowableBuffer[router.TradeMsg](10, 0)
	w := NewTradeWriter(WriterConfig{BatchSize: 2, FlushInterval: 1}, input, &fakeDB{}, nil)

	if w.add(router.TradeMsg{TradeID: "1"}) {
		t.Error("batch of 1 should not be full")
	}
	if !w.add(router.TradeMsg{TradeID: "2"}) {
		t.Error("batch of 2 should be full")
	}
}

func ptr(f float64) *float64 { return &f }

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
