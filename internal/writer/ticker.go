package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/okx-feed/internal/router"
)

const insertTicker = `
	INSERT INTO tickers (inst_id, inst_type, exchange_ts, received_at, last, last_size, bid_price, bid_size, ask_price, ask_size, open_24h, high_24h, low_24h, vol_24h, vol_ccy_24h, session_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (inst_id, exchange_ts) DO NOTHING
`

// TickerWriter consumes TickerMsg from the router buffer and writes to the tickers table.
type TickerWriter struct {
	*batchWriter[router.TickerMsg, tickerRow]
}

// NewTickerWriter creates a new TickerWriter.
func NewTickerWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.TickerMsg],
	db DB,
	logger *slog.Logger,
) *TickerWriter {
	return &TickerWriter{newBatchWriter("ticker", cfg, input, db, logger, transformTicker, queueTicker)}
}

func transformTicker(msg router.TickerMsg) tickerRow {
	return tickerRow{
		InstID:     msg.InstID,
		InstType:   msg.InstType,
		ExchangeTs: exchangeTime(msg.ExchangeTs, msg.ReceivedAt),
		ReceivedAt: msg.ReceivedAt,
		Last:       parseFloat(msg.Last),
		LastSize:   parseFloat(msg.LastSize),
		BidPrice:   parseFloat(msg.BidPrice),
		BidSize:    parseFloat(msg.BidSize),
		AskPrice:   parseFloat(msg.AskPrice),
		AskSize:    parseFloat(msg.AskSize),
		Open24h:    parseFloat(msg.Open24h),
		High24h:    parseFloat(msg.High24h),
		Low24h:     parseFloat(msg.Low24h),
		Vol24h:     parseFloat(msg.Vol24h),
		VolCcy24h:  parseFloat(msg.VolCcy24h),
		Session:    msg.Session,
	}
}

func queueTicker(b *pgx.Batch, r tickerRow) {
	b.Queue(insertTicker,
		r.InstID, r.InstType, r.ExchangeTs, r.ReceivedAt,
		r.Last, r.LastSize, r.BidPrice, r.BidSize, r.AskPrice, r.AskSize,
		r.Open24h, r.High24h, r.Low24h, r.Vol24h, r.VolCcy24h, r.Session)
}
