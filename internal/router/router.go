package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/okx-feed/internal/events"
)

// RouterBuffers provides access to output buffers for writers.
type RouterBuffers struct {
	Ticker *GrowableBuffer[TickerMsg]
	Trade  *GrowableBuffer[TradeMsg]
	Book   *GrowableBuffer[BookMsg]
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	EventsSkipped    int64
	ParseErrors      int64
	UnknownMessages  int64
	SeqGaps          int64
	TickerBuffer     BufferStats
	TradeBuffer      BufferStats
	BookBuffer       BufferStats
}

// Router parses data pushes from the feed and fans them out to typed
// buffers consumed by the writers.
type Router struct {
	cfg    RouterConfig
	logger *slog.Logger

	input <-chan events.Message

	tickerBuf *GrowableBuffer[TickerMsg]
	tradeBuf  *GrowableBuffer[TradeMsg]
	bookBuf   *GrowableBuffer[BookMsg]

	// Lifecycle
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Book sequence tracking, owned by the route goroutine
	seqSession uuid.UUID
	lastSeq    map[string]int64

	mu            sync.RWMutex
	received      int64
	routed        int64
	eventsSkipped int64
	parseErrors   int64
	unknown       int64
	seqGaps       int64
}

// NewRouter creates a new Message Router reading from input.
func NewRouter(cfg RouterConfig, input <-chan events.Message, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		cfg:       cfg,
		logger:    logger.With("component", "router"),
		input:     input,
		tickerBuf: NewGrowableBuffer[TickerMsg](cfg.TickerBufferSize, cfg.MaxBufferSize),
		tradeBuf:  NewGrowableBuffer[TradeMsg](cfg.TradeBufferSize, cfg.MaxBufferSize),
		bookBuf:   NewGrowableBuffer[BookMsg](cfg.BookBufferSize, cfg.MaxBufferSize),
		lastSeq:   make(map[string]int64),
	}
}

// Start begins routing messages.
func (r *Router) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop(ctx)

	r.logger.Info("message router started",
		"ticker_buffer", r.cfg.TickerBufferSize,
		"trade_buffer", r.cfg.TradeBufferSize,
		"book_buffer", r.cfg.BookBufferSize,
	)
	return nil
}

// Stop waits for the route loop to exit, then closes the output buffers.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	r.tickerBuf.Close()
	r.tradeBuf.Close()
	r.bookBuf.Close()
	return nil
}

// Buffers returns output buffers for writers.
func (r *Router) Buffers() RouterBuffers {
	return RouterBuffers{
		Ticker: r.tickerBuf,
		Trade:  r.tradeBuf,
		Book:   r.bookBuf,
	}
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		EventsSkipped:    r.eventsSkipped,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknown,
		SeqGaps:          r.seqGaps,
		TickerBuffer:     r.tickerBuf.Stats(),
		TradeBuffer:      r.tradeBuf.Stats(),
		BookBuffer:       r.bookBuf.Stats(),
	}
}

func (r *Router) routeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(msg)
		}
	}
}

func (r *Router) count(field *int64, n int64) {
	r.mu.Lock()
	*field += n
	r.mu.Unlock()
}

// route parses one push and forwards each data entry.
func (r *Router) route(msg events.Message) {
	r.count(&r.received, 1)

	if msg.Binary {
		r.count(&r.unknown, 1)
		return
	}

	var env pushEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Warn("failed to decode push envelope", "error", err)
		r.count(&r.parseErrors, 1)
		return
	}

	// Subscribe/unsubscribe acknowledgements and notices
	if env.Event != "" {
		r.logger.Debug("skipping event message", "event", env.Event, "channel", env.Arg.Channel)
		r.count(&r.eventsSkipped, 1)
		return
	}

	var (
		routed int64
		err    error
	)
	switch env.Arg.Channel {
	case ChannelTickers:
		routed, err = r.routeTickers(env, msg)
	case ChannelTrades:
		routed, err = r.routeTrades(env, msg)
	case ChannelBooks, ChannelBooks5:
		routed, err = r.routeBooks(env, msg)
	default:
		r.logger.Debug("skipping channel", "channel", env.Arg.Channel)
		r.count(&r.unknown, 1)
		return
	}

	if err != nil {
		r.logger.Warn("failed to parse push", "channel", env.Arg.Channel, "inst_id", env.Arg.InstID, "error", err)
		r.count(&r.parseErrors, 1)
	}
	if routed > 0 {
		r.count(&r.routed, routed)
	}
}

func (r *Router) routeTickers(env pushEnvelope, msg events.Message) (int64, error) {
	var wire []tickerWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return 0, fmt.Errorf("decode tickers: %w", err)
	}

	var n int64
	for _, w := range wire {
		t := TickerMsg{
			InstID:     firstNonEmpty(w.InstID, env.Arg.InstID),
			InstType:   w.InstType,
			Last:       w.Last,
			LastSize:   w.LastSz,
			BidPrice:   w.BidPx,
			BidSize:    w.BidSz,
			AskPrice:   w.AskPx,
			AskSize:    w.AskSz,
			Open24h:    w.Open24h,
			High24h:    w.High24h,
			Low24h:     w.Low24h,
			Vol24h:     w.Vol24h,
			VolCcy24h:  w.VolCcy24h,
			ExchangeTs: parseMillis(w.Ts),
			ReceivedAt: msg.Timestamp,
			Session:    msg.Session,
		}
		if r.tickerBuf.Send(t) {
			n++
		}
	}
	return n, nil
}

func (r *Router) routeTrades(env pushEnvelope, msg events.Message) (int64, error) {
	var wire []tradeWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return 0, fmt.Errorf("decode trades: %w", err)
	}

	var n int64
	for _, w := range wire {
		t := TradeMsg{
			InstID:     firstNonEmpty(w.InstID, env.Arg.InstID),
			TradeID:    w.TradeID,
			Price:      w.Px,
			Size:       w.Sz,
			Side:       w.Side,
			ExchangeTs: parseMillis(w.Ts),
			ReceivedAt: msg.Timestamp,
			Session:    msg.Session,
		}
		if r.tradeBuf.Send(t) {
			n++
		}
	}
	return n, nil
}

func (r *Router) routeBooks(env pushEnvelope, msg events.Message) (int64, error) {
	var wire []bookWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return 0, fmt.Errorf("decode books: %w", err)
	}

	var n int64
	for _, w := range wire {
		b := BookMsg{
			Channel:    env.Arg.Channel,
			InstID:     firstNonEmpty(w.InstID, env.Arg.InstID),
			Action:     env.Action,
			Asks:       parsePriceLevels(w.Asks),
			Bids:       parsePriceLevels(w.Bids),
			SeqID:      w.SeqID,
			PrevSeqID:  w.PrevSeqID,
			Checksum:   w.Checksum,
			ExchangeTs: parseMillis(w.Ts),
			ReceivedAt: msg.Timestamp,
			Session:    msg.Session,
		}
		r.checkSequence(&b)
		if r.bookBuf.Send(b) {
			n++
		}
	}
	return n, nil
}

// checkSequence flags a gap when an update's prevSeqId does not continue
// the last seqId seen for the instrument. Tracking restarts with each
// connection session since sequence numbers are per connection.
func (r *Router) checkSequence(b *BookMsg) {
	if b.Session != r.seqSession {
		r.seqSession = b.Session
		clear(r.lastSeq)
	}
	if b.SeqID == 0 {
		return
	}

	key := b.Channel + ":" + b.InstID
	last, seen := r.lastSeq[key]
	r.lastSeq[key] = b.SeqID

	if b.Action == "snapshot" || b.PrevSeqID < 0 || !seen {
		return
	}
	if b.PrevSeqID != last {
		b.SeqGap = true
		b.GapSize = b.PrevSeqID - last
		r.count(&r.seqGaps, 1)
		r.logger.Warn("book sequence gap",
			"inst_id", b.InstID,
			"channel", b.Channel,
			"expected_prev", last,
			"prev_seq_id", b.PrevSeqID,
		)
	}
}

// parsePriceLevels converts [["41006.8","0.6","0","1"], ...] to []PriceLevel.
func parsePriceLevels(levels [][]string) []PriceLevel {
	result := make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			continue
		}
		pl := PriceLevel{Price: level[0], Size: level[1]}
		if len(level) >= 4 {
			pl.Orders, _ = strconv.Atoi(level[3])
		}
		result = append(result, pl)
	}
	return result
}

// parseMillis converts a millisecond epoch string; invalid input yields the
// zero time.
func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
