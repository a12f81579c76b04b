package writer

import (
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/okx-feed/internal/router"
)

const insertBook = `
	INSERT INTO books (channel, inst_id, action, exchange_ts, received_at, seq_id, prev_seq_id, checksum, asks, bids, seq_gap, session_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (channel, inst_id, exchange_ts, seq_id) DO NOTHING
`

// BookWriter consumes BookMsg from the router buffer and writes snapshots
// and updates to the books table. books5 pushes are stored as snapshots.
type BookWriter struct {
	*batchWriter[router.BookMsg, bookRow]
}

// NewBookWriter creates a new BookWriter.
func NewBookWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.BookMsg],
	db DB,
	logger *slog.Logger,
) *BookWriter {
	w := &BookWriter{}
	w.batchWriter = newBatchWriter("book", cfg, input, db, logger, w.transform, queueBook)
	return w
}

func (w *BookWriter) transform(msg router.BookMsg) bookRow {
	if msg.SeqGap {
		w.logger.Warn("sequence gap detected",
			"inst_id", msg.InstID,
			"channel", msg.Channel,
			"gap_size", msg.GapSize,
		)
		w.batchMu.Lock()
		w.metrics.SeqGaps++
		w.batchMu.Unlock()
	}
	return transformBook(msg)
}

func transformBook(msg router.BookMsg) bookRow {
	action := msg.Action
	if action == "" {
		action = "snapshot"
	}
	return bookRow{
		Channel:    msg.Channel,
		InstID:     msg.InstID,
		Action:     action,
		ExchangeTs: exchangeTime(msg.ExchangeTs, msg.ReceivedAt),
		ReceivedAt: msg.ReceivedAt,
		SeqID:      msg.SeqID,
		PrevSeqID:  msg.PrevSeqID,
		Checksum:   msg.Checksum,
		Asks:       priceLevelsToJSONB(msg.Asks),
		Bids:       priceLevelsToJSONB(msg.Bids),
		SeqGap:     msg.SeqGap,
		Session:    msg.Session,
	}
}

func queueBook(b *pgx.Batch, r bookRow) {
	b.Queue(insertBook,
		r.Channel, r.InstID, r.Action, r.ExchangeTs, r.ReceivedAt,
		r.SeqID, r.PrevSeqID, r.Checksum, r.Asks, r.Bids, r.SeqGap, r.Session)
}
