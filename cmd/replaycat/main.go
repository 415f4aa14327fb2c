// replaycat replays a historical window to the console. Useful for
// eyeballing what a channel actually carried over a time range.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmarchuk/depthstream/internal/config"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
	"github.com/dmarchuk/depthstream/internal/session"
	"github.com/dmarchuk/depthstream/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	channel := flag.String("channel", wire.ChannelOrderbook, "channel to replay")
	coin := flag.String("coin", "BTC", "instrument to replay")
	start := flag.Int64("start", 0, "window start, ms since epoch")
	end := flag.Int64("end", 0, "window end, ms since epoch")
	speed := flag.Float64("speed", 10, "playback speed multiplier")
	granularity := flag.String("granularity", "", "orderbook snapshot granularity (empty = tick mode)")
	verbose := flag.Bool("verbose", false, "pretty-print full payloads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *end == 0 {
		*end = time.Now().UnixMilli()
	}
	if *start == 0 {
		*start = *end - time.Hour.Milliseconds()
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	mgr := session.NewManager(session.Config{
		URL:              cfg.API.WSURL,
		APIKey:           cfg.API.Key,
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
		PingInterval:     cfg.Session.PingInterval,
		AutoReconnect:    false,
	}, logger)

	done := make(chan struct{})
	var records int64

	mgr.OnHistoricalData(func(hd *wire.HistoricalData) {
		records++
		ts := time.UnixMilli(hd.Timestamp).UTC().Format(time.RFC3339)
		if *verbose {
			pretty, _ := json.MarshalIndent(json.RawMessage(hd.Payload), "", "  ")
			fmt.Printf("[%s] %s %s\n%s\n", ts, hd.Channel, hd.Coin, pretty)
		} else {
			fmt.Printf("[%s] %s %s %d bytes\n", ts, hd.Channel, hd.Coin, len(hd.Payload))
		}
	})

	mgr.OnTickData(func(td *wire.HistoricalTickData) {
		records++
		printTickBatch(td, cfg.History.Depth, *verbose, logger)
	})

	mgr.OnReplayEvent(func(msg wire.Message) {
		switch v := msg.(type) {
		case *wire.ReplayStarted:
			logger.Info("replay started", "channel", v.Channel, "coin", v.Coin)
		case *wire.ReplayCompleted:
			logger.Info("replay completed", "records", v.RecordCount)
			close(done)
		case *wire.ReplayStopped:
			logger.Info("replay stopped", "records", v.RecordCount)
			close(done)
		}
	})

	mgr.OnGapDetected(func(g *wire.GapDetected) {
		fmt.Printf("-- gap: %s %s %s..%s (%.1f min)\n",
			g.Channel, g.Coin,
			time.UnixMilli(g.GapStart).UTC().Format(time.RFC3339),
			time.UnixMilli(g.GapEnd).UTC().Format(time.RFC3339),
			g.DurationMinutes,
		)
	})

	mgr.OnError(func(err error) {
		logger.Warn("session error", "error", err)
	})

	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer mgr.Disconnect()

	err = mgr.Replay(session.ReplayParams{
		Channel:     *channel,
		Coin:        *coin,
		Start:       *start,
		End:         *end,
		Speed:       *speed,
		Granularity: *granularity,
	})
	if err != nil {
		logger.Error("failed to start replay", "error", err)
		os.Exit(1)
	}

	select {
	case <-done:
	case <-ctx.Done():
		if active, _ := mgr.ReplayActive(); active {
			mgr.StopReplay()
		}
	}

	logger.Info("replay finished", "records", records)
}

// printTickBatch reconstructs the batch and prints the resulting top of book.
func printTickBatch(td *wire.HistoricalTickData, depth int, verbose bool, logger *slog.Logger) {
	cp, err := td.Checkpoint.ToCheckpoint()
	if err != nil {
		logger.Warn("bad checkpoint in tick batch", "coin", td.Coin, "error", err)
		return
	}
	deltas, err := wire.ToDeltas(td.Deltas)
	if err != nil {
		logger.Warn("bad deltas in tick batch", "coin", td.Coin, "error", err)
		return
	}

	if verbose {
		it, err := reconstruct.Reconstruct(cp, deltas, reconstruct.Options{Depth: depth})
		if err != nil {
			logger.Warn("reconstruction failed", "coin", td.Coin, "error", err)
			return
		}
		for {
			snap, ok, err := it.Next()
			if err != nil {
				logger.Warn("reconstruction failed mid-batch", "coin", td.Coin, "error", err)
				return
			}
			if !ok {
				return
			}
			printSnapshot(&snap)
		}
	}

	snap, err := reconstruct.ReconstructFinal(cp, deltas, reconstruct.Options{Depth: depth})
	if err != nil {
		logger.Warn("reconstruction failed", "coin", td.Coin, "error", err)
		return
	}
	printSnapshot(&snap)
}

func printSnapshot(snap *model.BookSnapshot) {
	ts := time.UnixMilli(snap.Time).UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] %s book", ts, snap.Coin)
	if best, ok := snap.BestBid(); ok {
		line += fmt.Sprintf(" bid %.2f x %.4f", best.Price, best.Size)
	}
	if best, ok := snap.BestAsk(); ok {
		line += fmt.Sprintf(" ask %.2f x %.4f", best.Price, best.Size)
	}
	if snap.MidPrice != nil {
		line += fmt.Sprintf(" mid %.2f", *snap.MidPrice)
	}
	fmt.Println(line)
}
