// Package database provides the TimescaleDB connection pool and schema for
// the feed's market data tables.
package database
