package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/okx-feed/internal/router"
)

const insertTrade = `
	INSERT INTO trades (inst_id, trade_id, exchange_ts, received_at, price, size, side, session_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (inst_id, trade_id, exchange_ts) DO NOTHING
`

// TradeWriter consumes TradeMsg from the router buffer and writes to the trades table.
type TradeWriter struct {
	*batchWriter[router.TradeMsg, tradeRow]
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.TradeMsg],
	db DB,
	logger *slog.Logger,
) *TradeWriter {
	return &TradeWriter{newBatchWriter("trade", cfg, input, db, logger, transformTrade, queueTrade)}
}

func transformTrade(msg router.TradeMsg) tradeRow {
	return tradeRow{
		InstID:     msg.InstID,
		TradeID:    msg.TradeID,
		ExchangeTs: exchangeTime(msg.ExchangeTs, msg.ReceivedAt),
		ReceivedAt: msg.ReceivedAt,
		Price:      floatOrZero(msg.Price),
		Size:       floatOrZero(msg.Size),
		Side:       msg.Side,
		Session:    msg.Session,
	}
}

func queueTrade(b *pgx.Batch, r tradeRow) {
	b.Queue(insertTrade,
		r.InstID, r.TradeID, r.ExchangeTs, r.ReceivedAt, r.Price, r.Size, r.Side, r.Session)
}
