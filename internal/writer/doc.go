// Package writer implements batch writers for tickers, trades and order
// book pushes.
//
// All writers use append-only semantics (never update, only insert) with
// ON CONFLICT DO NOTHING on each table's natural key, so replays after a
// reconnect are harmless. Prices are stored as float64.
package writer
