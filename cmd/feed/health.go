package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/okx-feed/internal/connection"
	"github.com/rickgao/okx-feed/internal/router"
	"github.com/rickgao/okx-feed/internal/stats"
	"github.com/rickgao/okx-feed/internal/subscription"
	"github.com/rickgao/okx-feed/internal/version"
	"github.com/rickgao/okx-feed/internal/writer"
)

type feedStatus interface {
	State() connection.State
	Session() uuid.UUID
	Stats() stats.Snapshot
	Subscriptions() []subscription.Subscription
}

type routerStatus interface {
	Stats() router.RouterStats
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthDeps is what the health endpoints report on. db and writers are
// unset when storage is disabled.
type healthDeps struct {
	feed    feedStatus
	router  routerStatus
	db      pinger
	writers map[string]func() writer.WriterMetrics
	dropped *atomic.Int64
}

type feedHealth struct {
	State          string    `json:"state"`
	Session        string    `json:"session,omitempty"`
	Healthy        bool      `json:"healthy"`
	LastConnect    time.Time `json:"last_connect,omitzero"`
	LastMessage    time.Time `json:"last_message,omitzero"`
	MessageCount   int64     `json:"message_count"`
	ReconnectCount int       `json:"reconnect_count"`
	Uptime         string    `json:"uptime"`
	Downtime       string    `json:"downtime"`
	InboxDropped   int64     `json:"inbox_dropped"`
}

// newHealthHandler serves /health and /debug/subscriptions.
func newHealthHandler(deps *healthDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		snap := deps.feed.Stats()
		fh := feedHealth{
			State:          deps.feed.State().String(),
			Healthy:        snap.Healthy,
			LastConnect:    snap.LastConnect,
			LastMessage:    snap.LastMessage,
			MessageCount:   snap.MessageCount,
			ReconnectCount: snap.ReconnectCount,
			Uptime:         snap.Uptime.String(),
			Downtime:       snap.Downtime.String(),
		}
		if s := deps.feed.Session(); s != uuid.Nil {
			fh.Session = s.String()
		}
		if deps.dropped != nil {
			fh.InboxDropped = deps.dropped.Load()
		}

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: map[string]any{"feed": fh},
		}

		if !snap.Healthy {
			health.Status = "degraded"
		}
		if deps.feed.State() != connection.StateOpen {
			health.Status = "unhealthy"
		}

		if deps.router != nil {
			health.Components["router"] = deps.router.Stats()
		}

		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		if len(deps.writers) > 0 {
			ws := make(map[string]writer.WriterMetrics, len(deps.writers))
			for name, get := range deps.writers {
				ws[name] = get()
			}
			health.Components["writers"] = ws
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		subs := deps.feed.Subscriptions()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":         len(subs),
			"subscriptions": subs,
		})
	})

	return mux
}
