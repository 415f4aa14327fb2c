package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
)

// ErrMissingCheckpoint means the provider returned a first page without a
// checkpoint to seed from.
var ErrMissingCheckpoint = errors.New("first history page has no checkpoint")

// PageRequest bounds a single history fetch.
type PageRequest struct {
	Coin     string // Instrument
	Start    int64  // Range start (ms since epoch, inclusive)
	End      int64  // Range end (ms since epoch, inclusive)
	AfterSeq int64  // Cursor: return deltas with Seq > AfterSeq; 0 for the first page
	Limit    int    // Maximum deltas per page
}

// Page is one bounded chunk of checkpoint+delta history.
type Page struct {
	// Checkpoint seeds reconstruction. Present on the first page; ignored
	// on continuation pages (the walker carries its own ledger state).
	Checkpoint *reconstruct.Checkpoint
	Deltas     []reconstruct.Delta
}

// Provider fetches bounded history pages. Deltas come pre-sorted ascending
// by sequence number.
type Provider interface {
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
}

// Config holds walker configuration.
type Config struct {
	Coin      string // Instrument to walk
	Start     int64  // Range start (ms since epoch)
	End       int64  // Range end (ms since epoch)
	PageLimit int    // Max deltas per page (default 1000)
	Depth     int    // Levels per side in emitted snapshots; 0 = unlimited
}

// DefaultPageLimit bounds a history page when Config.PageLimit is unset.
const DefaultPageLimit = 1000

// Walker yields a continuous snapshot sequence over a time range, fetching
// pages on demand. It never prefetches beyond the page in flight, so a
// consumer that stops pulling stops all further network activity.
type Walker struct {
	cfg      Config
	provider Provider
	logger   *slog.Logger

	engine *reconstruct.Engine
	it     *reconstruct.Iterator

	started  bool
	done     bool
	lastPage int // delta count of the page currently being drained
}

// NewWalker creates a walker over [cfg.Start, cfg.End].
func NewWalker(cfg Config, provider Provider, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	return &Walker{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
	}
}

// Next returns the next reconstructed snapshot. The second return is false
// once the range is exhausted. Reconstruction input errors and fetch errors
// surface here synchronously and end the walk.
func (w *Walker) Next(ctx context.Context) (model.BookSnapshot, bool, error) {
	for {
		if w.done {
			return model.BookSnapshot{}, false, nil
		}

		if w.it != nil {
			snap, ok, err := w.it.Next()
			if err != nil {
				w.done = true
				return model.BookSnapshot{}, false, err
			}
			if ok {
				return snap, true, nil
			}

			// Page drained. A short page means the provider has no more data.
			if w.lastPage < w.cfg.PageLimit {
				w.done = true
				return model.BookSnapshot{}, false, nil
			}
		}

		if err := w.fetchPage(ctx); err != nil {
			w.done = true
			return model.BookSnapshot{}, false, err
		}
	}
}

// fetchPage pulls the next page and prepares an iterator over it.
func (w *Walker) fetchPage(ctx context.Context) error {
	req := PageRequest{
		Coin:  w.cfg.Coin,
		Start: w.cfg.Start,
		End:   w.cfg.End,
		Limit: w.cfg.PageLimit,
	}
	if w.started {
		req.AfterSeq = w.engine.LastSeq()
	}

	page, err := w.provider.FetchPage(ctx, req)
	if err != nil {
		return fmt.Errorf("fetch history page: %w", err)
	}

	w.lastPage = len(page.Deltas)

	deltas := page.Deltas
	truncated := false
	for i, d := range deltas {
		if d.Time > w.cfg.End {
			deltas = deltas[:i]
			truncated = true
			break
		}
	}

	for _, g := range reconstruct.DetectGaps(deltas) {
		metrics.SequenceGaps.Inc()
		w.logger.Warn("sequence gap in history page",
			"coin", w.cfg.Coin,
			"after", g.After,
			"before", g.Before,
		)
	}

	if !w.started {
		if page.Checkpoint == nil {
			return ErrMissingCheckpoint
		}
		engine, err := reconstruct.NewEngine(page.Checkpoint, reconstruct.Options{Depth: w.cfg.Depth})
		if err != nil {
			return err
		}
		w.engine = engine
		w.started = true
	}
	// Continuation pages reuse the live ledger state; any checkpoint the
	// provider attaches past page one is ignored.

	if truncated {
		// Everything after the cut is past the range end.
		w.lastPage = 0
	}

	w.it = w.engine.Iterate(deltas)
	return nil
}
