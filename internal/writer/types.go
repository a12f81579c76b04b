package writer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WriterConfig holds batching settings shared by all writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	SeqGaps   int64
}

// DB is the batch interface the writers need; *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tickerRow represents a row to be inserted into the tickers table.
// Optional numeric fields are nil when the feed sends an empty string.
type tickerRow struct {
	InstID     string
	InstType   string
	ExchangeTs time.Time
	ReceivedAt time.Time
	Last       *float64
	LastSize   *float64
	BidPrice   *float64
	BidSize    *float64
	AskPrice   *float64
	AskSize    *float64
	Open24h    *float64
	High24h    *float64
	Low24h     *float64
	Vol24h     *float64
	VolCcy24h  *float64
	Session    uuid.UUID
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	InstID     string
	TradeID    string
	ExchangeTs time.Time
	ReceivedAt time.Time
	Price      float64
	Size       float64
	Side       string
	Session    uuid.UUID
}

// bookRow represents a row to be inserted into the books table.
type bookRow struct {
	Channel    string
	InstID     string
	Action     string
	ExchangeTs time.Time
	ReceivedAt time.Time
	SeqID      int64
	PrevSeqID  int64
	Checksum   int64
	Asks       []byte // JSONB
	Bids       []byte // JSONB
	SeqGap     bool
	Session    uuid.UUID
}
