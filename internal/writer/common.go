package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/okx-feed/internal/router"
)

// batchWriter is the consume/batch/flush loop shared by the typed writers.
// M is the router message type and R the row type it becomes.
type batchWriter[M, R any] struct {
	name   string
	cfg    WriterConfig
	logger *slog.Logger

	// Input from Message Router
	input *router.GrowableBuffer[M]

	// Database
	db        DB
	transform func(M) R
	queue     func(*pgx.Batch, R)

	// Batching
	batch   []R
	batchMu sync.Mutex

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

func newBatchWriter[M, R any](
	name string,
	cfg WriterConfig,
	input *router.GrowableBuffer[M],
	db DB,
	logger *slog.Logger,
	transform func(M) R,
	queue func(*pgx.Batch, R),
) *batchWriter[M, R] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &batchWriter[M, R]{
		name:      name,
		cfg:       cfg,
		logger:    logger.With("component", name+"_writer"),
		input:     input,
		db:        db,
		transform: transform,
		queue:     queue,
		batch:     make([]R, 0, cfg.BatchSize),
	}
}

// Start begins consuming messages and writing to the database.
func (w *batchWriter[M, R]) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop(ctx)
	go w.flushLoop(ctx)

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the loops, drains whatever is still buffered, and writes
// a final batch using ctx.
func (w *batchWriter[M, R]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	for _, msg := range w.input.DrainTo(0) {
		w.add(msg)
	}
	w.flush(ctx)

	w.logger.Info("writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *batchWriter[M, R]) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *batchWriter[M, R]) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		msgs := w.input.DrainTo(w.cfg.BatchSize)
		if len(msgs) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		full := false
		for _, msg := range msgs {
			full = w.add(msg)
		}
		if full {
			w.flush(ctx)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (w *batchWriter[M, R]) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// add transforms msg onto the batch and reports whether the batch is full.
func (w *batchWriter[M, R]) add(msg M) bool {
	row := w.transform(msg)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *batchWriter[M, R]) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	rows := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed batch",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert sends rows as one pgx.Batch; rows skipped by ON CONFLICT DO
// NOTHING count as conflicts.
func (w *batchWriter[M, R]) batchInsert(ctx context.Context, rows []R) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		w.queue(batch, r)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// parseFloat parses a decimal string from the feed; empty or malformed
// input yields nil.
func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func floatOrZero(s string) float64 {
	if f := parseFloat(s); f != nil {
		return *f
	}
	return 0
}

// exchangeTime falls back to the receive time when the push had no
// exchange timestamp.
func exchangeTime(exchange, received time.Time) time.Time {
	if exchange.IsZero() {
		return received
	}
	return exchange
}

// priceLevelJSON represents a price level in JSONB format.
type priceLevelJSON struct {
	Price  float64 `json:"px"`
	Size   float64 `json:"sz"`
	Orders int     `json:"orders"`
}

// priceLevelsToJSONB converts router.PriceLevel slice to JSONB bytes.
func priceLevelsToJSONB(levels []router.PriceLevel) []byte {
	result := make([]priceLevelJSON, len(levels))
	for i, level := range levels {
		result[i] = priceLevelJSON{
			Price:  floatOrZero(level.Price),
			Size:   floatOrZero(level.Size),
			Orders: level.Orders,
		}
	}
	data, _ := json.Marshal(result)
	return data
}
