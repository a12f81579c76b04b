// Package connection implements the connection lifecycle controller.
//
// The Controller:
//   - Opens one logical connection through a Transport
//   - Aborts attempts that exceed the connect timeout
//   - Reconnects with capped exponential backoff unless the close code is
//     marked non-retryable or the caller closed the connection
//   - Replays every subscription in a single batched request after each open
//   - Detects dead connections with ping/pong heartbeats
//   - Publishes lifecycle events on an events.Hub
//
// WSTransport is the gorilla/websocket Transport used in production.
package connection
