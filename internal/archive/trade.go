package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/model"
)

// TradeWriter consumes trades from its queue and writes to the trades
// table.
type TradeWriter struct {
	cfg    Config
	logger *slog.Logger

	input *Queue[model.Trade]
	db    DB

	batch       []model.Trade
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTradeWriter creates a TradeWriter over the given queue and database.
func NewTradeWriter(cfg Config, input *Queue[model.Trade], db DB, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]model.Trade, 0, cfg.BatchSize),
	}
}

// Start begins consuming trades and writing to the database.
func (w *TradeWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("trade writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains.
func (w *TradeWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping trade writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("trade writer stopped")
	case <-ctx.Done():
		w.logger.Warn("trade writer stop timed out")
	}

	// The final flush runs on the caller's context; the writer context is
	// already cancelled and would drop the last partial batch.
	w.flush(ctx)
	return nil
}

func (w *TradeWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			trade, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleTrade(trade)
		}
	}
}

func (w *TradeWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *TradeWriter) handleTrade(trade model.Trade) {
	w.batchMu.Lock()
	w.batch = append(w.batch, trade)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes the current batch to the database.
func (w *TradeWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Trade, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("trade batch insert failed", "error", err, "count", len(batch))
		metrics.ArchiveErrors.WithLabelValues("trades").Inc()
		return
	}

	metrics.ArchiveInserts.WithLabelValues("trades").Add(float64(inserted))
	metrics.ArchiveFlushSeconds.Observe(time.Since(start).Seconds())

	w.logger.Debug("flushed trades",
		"count", len(batch),
		"duplicates", len(batch)-inserted,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
// The trade id is the dedup key, so replayed ranges archive cleanly.
func (w *TradeWriter) batchInsert(ctx context.Context, rows []model.Trade) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades (trade_id, coin, time, side, price, size)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (trade_id) DO NOTHING
		`, r.TradeID, r.Coin, r.Time, r.Side, r.Price, r.Size)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() > 0 {
			inserted++
		}
	}

	return inserted, nil
}
