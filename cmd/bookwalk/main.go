// bookwalk replays archived order-book history through the REST API and
// prints one line per reconstructed snapshot. Handy for checking what the
// book looked like over a range without touching the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmarchuk/depthstream/internal/api"
	"github.com/dmarchuk/depthstream/internal/config"
	"github.com/dmarchuk/depthstream/internal/history"
)

func main() {
	configPath := flag.String("config", "configs/archiver.local.yaml", "path to config file")
	coin := flag.String("coin", "BTC", "instrument to walk")
	start := flag.Int64("start", 0, "range start, ms since epoch")
	end := flag.Int64("end", 0, "range end, ms since epoch")
	depth := flag.Int("depth", 5, "levels per side in printed snapshots (0 = unlimited)")
	limit := flag.Int("limit", 0, "deltas per page (0 = config default)")
	quiet := flag.Bool("quiet", false, "print only the final snapshot and totals")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
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

	pageLimit := cfg.History.PageLimit
	if *limit > 0 {
		pageLimit = *limit
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client := api.NewClient(
		cfg.API.RestURL,
		cfg.API.Key,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	walker := history.NewWalker(history.Config{
		Coin:      *coin,
		Start:     *start,
		End:       *end,
		PageLimit: pageLimit,
		Depth:     *depth,
	}, api.NewBookProvider(client), logger)

	var (
		emitted  int64
		lastLine string
	)
	for {
		snap, ok, err := walker.Next(ctx)
		if err != nil {
			logger.Error("walk failed", "coin", *coin, "emitted", emitted, "error", err)
			os.Exit(1)
		}
		if !ok {
			break
		}
		emitted++

		ts := time.UnixMilli(snap.Time).UTC().Format("2006-01-02T15:04:05.000Z")
		line := fmt.Sprintf("%s %s", ts, snap.Coin)
		if best, ok := snap.BestBid(); ok {
			line += fmt.Sprintf("  bid %.2f x %.4f", best.Price, best.Size)
		}
		if best, ok := snap.BestAsk(); ok {
			line += fmt.Sprintf("  ask %.2f x %.4f", best.Price, best.Size)
		}
		if snap.MidPrice != nil {
			line += fmt.Sprintf("  mid %.2f", *snap.MidPrice)
		}

		if *quiet {
			lastLine = line
		} else {
			fmt.Println(line)
		}
	}

	if *quiet && lastLine != "" {
		fmt.Println(lastLine)
	}
	fmt.Printf("%d snapshots over %s..%s\n",
		emitted,
		time.UnixMilli(*start).UTC().Format(time.RFC3339),
		time.UnixMilli(*end).UTC().Format(time.RFC3339),
	)
}
