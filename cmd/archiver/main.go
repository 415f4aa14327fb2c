// archiver streams live and replayed market data into TimescaleDB.
//
// It opens one streaming session, subscribes to the configured coins,
// routes book deltas and trades into the archive writers, and serves
// Prometheus metrics plus a health endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dmarchuk/depthstream/internal/api"
	"github.com/dmarchuk/depthstream/internal/archive"
	"github.com/dmarchuk/depthstream/internal/config"
	"github.com/dmarchuk/depthstream/internal/database"
	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
	"github.com/dmarchuk/depthstream/internal/session"
	"github.com/dmarchuk/depthstream/internal/version"
	"github.com/dmarchuk/depthstream/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting archiver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"coins", cfg.Coins,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pools, err := database.NewPools(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pools.Close()

	logger.Info("database connected")

	// Reconcile the instrument catalog before streaming.
	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.Key,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)
	instruments, err := apiClient.GetInstruments(ctx)
	if err != nil {
		logger.Error("failed to fetch instruments", "error", err)
		os.Exit(1)
	}
	if err := pools.UpsertInstruments(ctx, instruments); err != nil {
		logger.Error("failed to sync instrument catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("instrument catalog synced", "count", len(instruments))

	// Archive writers
	archiveCfg := archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		QueueSize:     cfg.Archive.QueueSize,
	}
	bookQueue := archive.NewQueue[archive.BookRecord](archiveCfg.QueueSize)
	tradeQueue := archive.NewQueue[model.Trade](archiveCfg.QueueSize)

	bookWriter := archive.NewBookWriter(archiveCfg, bookQueue, pools.Timescale, logger)
	tradeWriter := archive.NewTradeWriter(archiveCfg, tradeQueue, pools.Timescale, logger)

	if err := bookWriter.Start(ctx); err != nil {
		logger.Error("failed to start book writer", "error", err)
		os.Exit(1)
	}
	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}

	// Streaming session
	mgr := session.NewManager(session.Config{
		URL:                  cfg.API.WSURL,
		APIKey:               cfg.API.Key,
		HandshakeTimeout:     cfg.Session.HandshakeTimeout,
		WriteTimeout:         cfg.Session.WriteTimeout,
		PingInterval:         cfg.Session.PingInterval,
		AutoReconnect:        true,
		ReconnectDelay:       cfg.Session.ReconnectDelay,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
	}, logger)

	mgr.OnStateChange(func(s session.State) {
		logger.Info("session state changed", "state", s)
	})
	mgr.OnError(func(err error) {
		logger.Warn("session error", "error", err)
	})
	mgr.OnData(func(d *wire.Data) {
		routeData(d, bookQueue, tradeQueue, logger)
	})
	mgr.OnTickData(func(td *wire.HistoricalTickData) {
		routeTickData(td, bookQueue, cfg.History.Depth, logger)
	})
	mgr.OnGapDetected(func(g *wire.GapDetected) {
		logger.Warn("upstream gap reported",
			"coin", g.Coin,
			"channel", g.Channel,
			"gap_start", g.GapStart,
			"gap_end", g.GapEnd,
		)
	})

	for _, coin := range cfg.Coins {
		if err := mgr.Subscribe(wire.ChannelOrderbook, coin); err != nil {
			logger.Error("failed to register subscription", "coin", coin, "error", err)
			os.Exit(1)
		}
		if err := mgr.Subscribe(wire.ChannelTrades, coin); err != nil {
			logger.Error("failed to register subscription", "coin", coin, "error", err)
			os.Exit(1)
		}
	}

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect session", "error", err)
		os.Exit(1)
	}

	// Metrics and health endpoints
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(metrics.NewRegistry(), promhttp.HandlerOpts{}))
	mux.Handle("/health", healthHandler(pools, mgr))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("archiver running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	mgr.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	bookWriter.Stop(shutdownCtx)
	tradeWriter.Stop(shutdownCtx)
	bookQueue.Close()
	tradeQueue.Close()

	if err := g.Wait(); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("archiver stopped")
}

// routeData queues a live record for archival.
func routeData(d *wire.Data, bookQueue *archive.Queue[archive.BookRecord], tradeQueue *archive.Queue[model.Trade], logger *slog.Logger) {
	switch d.Channel {
	case wire.ChannelOrderbook:
		var delta wire.BookDelta
		if err := json.Unmarshal(d.Payload, &delta); err != nil {
			logger.Debug("dropping malformed book payload", "coin", d.Coin, "error", err)
			return
		}
		rd, err := delta.ToDelta()
		if err != nil {
			logger.Debug("dropping unparseable book delta", "coin", d.Coin, "error", err)
			return
		}
		bookQueue.Push(archive.BookRecord{Delta: &archive.DeltaRecord{Coin: d.Coin, Delta: rd}})

	case wire.ChannelTrades:
		var raw api.APITrade
		if err := json.Unmarshal(d.Payload, &raw); err != nil {
			logger.Debug("dropping malformed trade payload", "coin", d.Coin, "error", err)
			return
		}
		if raw.Coin == "" {
			raw.Coin = d.Coin
		}
		trade, err := raw.ToTrade()
		if err != nil {
			logger.Debug("dropping unparseable trade", "coin", d.Coin, "error", err)
			return
		}
		tradeQueue.Push(trade)
	}
}

// routeTickData reconstructs a checkpoint+delta batch and queues the raw
// deltas plus the final snapshot.
func routeTickData(td *wire.HistoricalTickData, bookQueue *archive.Queue[archive.BookRecord], depth int, logger *slog.Logger) {
	cp, err := td.Checkpoint.ToCheckpoint()
	if err != nil {
		logger.Warn("dropping tick batch with bad checkpoint", "coin", td.Coin, "error", err)
		return
	}
	deltas, err := wire.ToDeltas(td.Deltas)
	if err != nil {
		logger.Warn("dropping tick batch with bad deltas", "coin", td.Coin, "error", err)
		return
	}

	for i := range deltas {
		bookQueue.Push(archive.BookRecord{Delta: &archive.DeltaRecord{Coin: td.Coin, Delta: deltas[i]}})
	}

	snap, err := reconstruct.ReconstructFinal(cp, deltas, reconstruct.Options{Depth: depth})
	if err != nil {
		logger.Warn("tick batch reconstruction failed", "coin", td.Coin, "error", err)
		return
	}
	bookQueue.Push(archive.BookRecord{Snapshot: &snap})
}

// healthHandler reports database and session health.
func healthHandler(pools *database.Pools, mgr *session.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pools.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		state := mgr.State()
		health.Components["session"] = string(state)
		if state != session.StateConnected {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
