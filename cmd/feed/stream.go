package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/okx-feed/internal/config"
	"github.com/rickgao/okx-feed/internal/connection"
	"github.com/rickgao/okx-feed/internal/database"
	"github.com/rickgao/okx-feed/internal/events"
	"github.com/rickgao/okx-feed/internal/router"
	"github.com/rickgao/okx-feed/internal/version"
	"github.com/rickgao/okx-feed/internal/writer"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(streamCmd)
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Connect to the feed and stream market data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			return err
		}

		logger := newLogger(cfg.Logging, os.Stdout)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runStream(ctx, cfg, logger)
	},
}

// lifecycle is anything started before the feed connects and stopped after
// it closes.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func runStream(ctx context.Context, cfg *config.FeedConfig, logger *slog.Logger) error {
	logger = logger.With("instance_id", cfg.Instance.ID)
	logger.Info("starting feed",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Feed.URL,
		"subscriptions", len(cfg.Subscriptions),
	)

	transport := connection.NewWSTransport(cfg.Feed.TransportConfig(), logger)
	ctrl, err := connection.NewController(cfg.Feed.ConnectionConfig(), transport, logger)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	for _, s := range cfg.Subscriptions {
		ctrl.Subscribe(s.Channel, s.InstID)
	}

	// Message events are handed to the router without blocking the
	// controller; a full inbox drops the push.
	inbox := make(chan events.Message, cfg.Writers.BufferSize)
	var dropped atomic.Int64
	logEvents(ctrl.Events(), logger)
	ctrl.Events().Subscribe(events.KindMessage, func(ev events.Event) {
		msg, ok := ev.(events.Message)
		if !ok {
			return
		}
		select {
		case inbox <- msg:
		default:
			if n := dropped.Add(1); n%1000 == 1 {
				logger.Warn("router inbox full, dropping pushes", "dropped", n)
			}
		}
	})

	rtr := router.NewRouter(router.RouterConfig{
		TickerBufferSize: cfg.Writers.BufferSize,
		TradeBufferSize:  cfg.Writers.BufferSize,
		BookBufferSize:   cfg.Writers.BufferSize,
		MaxBufferSize:    cfg.Writers.MaxBufferSize,
	}, inbox, logger)

	health := &healthDeps{feed: ctrl, router: rtr, dropped: &dropped}
	components := []lifecycle{rtr}

	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database.Timescale, logger)
		if err != nil {
			return fmt.Errorf("connect timescale: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate timescale: %w", err)
		}

		wcfg := writer.WriterConfig{
			BatchSize:     cfg.Writers.BatchSize,
			FlushInterval: cfg.Writers.FlushInterval.Std(),
		}
		bufs := rtr.Buffers()
		tickers := writer.NewTickerWriter(wcfg, bufs.Ticker, pool, logger)
		trades := writer.NewTradeWriter(wcfg, bufs.Trade, pool, logger)
		books := writer.NewBookWriter(wcfg, bufs.Book, pool, logger)
		components = append(components, tickers, trades, books)

		health.db = pool
		health.writers = map[string]func() writer.WriterMetrics{
			"tickers": tickers.Stats,
			"trades":  trades.Stats,
			"books":   books.Stats,
		}
	} else {
		logger.Warn("database disabled, pushes are parsed but not stored")
	}

	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start component: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Health.Port > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
			Handler:           newHealthHandler(health),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	ctrl.Connect()
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down feed")
		ctrl.Close(connection.CloseNormal, "shutdown")
		return nil
	})

	runErr := g.Wait()

	// Stop in start order so the router closes its buffers before the
	// writers drain them.
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, c := range components {
		if err := c.Stop(sctx); err != nil {
			logger.Warn("component stop failed", "error", err)
		}
	}

	logger.Info("feed stopped", "stats", fmt.Sprintf("%+v", ctrl.Stats()))
	return runErr
}

// logEvents logs every lifecycle event published on hub.
func logEvents(hub *events.Hub, logger *slog.Logger) {
	hub.Subscribe(events.KindConnecting, func(ev events.Event) {
		e := ev.(events.Connecting)
		logger.Info("feed connecting", "url", e.URL, "attempt", e.Attempt, "session", e.Session)
	})
	hub.Subscribe(events.KindOpen, func(ev events.Event) {
		e := ev.(events.Open)
		logger.Info("feed open", "session", e.Session, "reconnects", e.ReconnectCount)
	})
	hub.Subscribe(events.KindClose, func(ev events.Event) {
		e := ev.(events.Close)
		level := slog.LevelWarn
		if e.Code == connection.CloseNormal {
			level = slog.LevelInfo
		}
		logger.Log(context.Background(), level, "feed closed",
			"code", e.Code,
			"reason", e.Reason,
			"was_clean", e.WasClean,
			"reconnect_attempts", e.ReconnectAttempts,
			"session", e.Session,
		)
	})
	hub.Subscribe(events.KindError, func(ev events.Event) {
		e := ev.(events.Error)
		logger.Error("feed error", "error", e.Error(), "state", e.State, "attempt", e.Attempt)
	})
	hub.Subscribe(events.KindReconnect, func(ev events.Event) {
		e := ev.(events.Reconnect)
		logger.Info("feed reconnect scheduled", "attempt", e.Attempt, "delay", e.Delay)
	})
	hub.Subscribe(events.KindMessage, func(ev events.Event) {
		e := ev.(events.Message)
		logger.Debug("feed message", "bytes", len(e.Data), "binary", e.Binary, "session", e.Session)
	})
}
