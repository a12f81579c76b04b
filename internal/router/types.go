package router

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel names on the public feed.
const (
	ChannelTickers = "tickers"
	ChannelTrades  = "trades"
	ChannelBooks   = "books"
	ChannelBooks5  = "books5"
)

// RouterConfig holds configuration for the Message Router.
type RouterConfig struct {
	// Initial output buffer sizes
	TickerBufferSize int // Default: 1000
	TradeBufferSize  int // Default: 1000
	BookBufferSize   int // Default: 5000

	// MaxBufferSize caps buffer growth; 0 means unbounded.
	MaxBufferSize int
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		TickerBufferSize: 1000,
		TradeBufferSize:  1000,
		BookBufferSize:   5000,
		MaxBufferSize:    1 << 20,
	}
}

// TickerMsg is one entry of a tickers push.
type TickerMsg struct {
	InstID     string
	InstType   string
	Last       string // Last traded price
	LastSize   string
	BidPrice   string
	BidSize    string
	AskPrice   string
	AskSize    string
	Open24h    string
	High24h    string
	Low24h     string
	Vol24h     string // Base currency volume
	VolCcy24h  string // Quote currency volume
	ExchangeTs time.Time
	ReceivedAt time.Time
	Session    uuid.UUID
}

// TradeMsg is one entry of a trades push.
type TradeMsg struct {
	InstID     string
	TradeID    string
	Price      string
	Size       string
	Side       string // "buy" or "sell" (taker side)
	ExchangeTs time.Time
	ReceivedAt time.Time
	Session    uuid.UUID
}

// BookMsg is one entry of a books or books5 push.
type BookMsg struct {
	Channel    string
	InstID     string
	Action     string // "snapshot", "update", or "" for books5
	Asks       []PriceLevel
	Bids       []PriceLevel
	SeqID      int64
	PrevSeqID  int64
	Checksum   int64
	ExchangeTs time.Time
	ReceivedAt time.Time
	Session    uuid.UUID
	SeqGap     bool
	GapSize    int64
}

// PriceLevel is one depth level: [price, size, deprecated, orders].
type PriceLevel struct {
	Price  string
	Size   string
	Orders int
}

// Wire types for JSON parsing

// pushEnvelope is the outer shape of every data push and event reply.
type pushEnvelope struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type tickerWire struct {
	InstType  string `json:"instType"`
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	LastSz    string `json:"lastSz"`
	AskPx     string `json:"askPx"`
	AskSz     string `json:"askSz"`
	BidPx     string `json:"bidPx"`
	BidSz     string `json:"bidSz"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	VolCcy24h string `json:"volCcy24h"`
	Vol24h    string `json:"vol24h"`
	Ts        string `json:"ts"`
}

type tradeWire struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

type bookWire struct {
	InstID    string     `json:"instId"`
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Ts        string     `json:"ts"`
	Checksum  int64      `json:"checksum"`
	SeqID     int64      `json:"seqId"`
	PrevSeqID int64      `json:"prevSeqId"`
}
