package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
)

// DB is the batch-insert surface the writers need. *pgxpool.Pool satisfies
// it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batch writer configuration.
type Config struct {
	BatchSize     int           // Rows per batch before an early flush
	FlushInterval time.Duration // Ticker-driven flush cadence
	QueueSize     int           // Initial queue capacity
}

// DefaultConfig returns sensible writer defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		QueueSize:     1000,
	}
}

// BookRecord is one queued order-book archive record: either a
// reconstructed snapshot or a raw delta.
type BookRecord struct {
	Snapshot *model.BookSnapshot
	Delta    *DeltaRecord
}

// DeltaRecord is a raw delta tagged with its instrument.
type DeltaRecord struct {
	Coin  string
	Delta reconstruct.Delta
}

// BookWriter consumes BookRecord from its queue and writes to the
// book_snapshots and book_deltas tables.
type BookWriter struct {
	cfg    Config
	logger *slog.Logger

	input *Queue[BookRecord]
	db    DB

	// Separate batches: snapshots are far less frequent than deltas.
	deltaBatch    []deltaRow
	snapshotBatch []snapshotRow
	batchMu       sync.Mutex
	flushTicker   *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type deltaRow struct {
	Coin   string
	Time   int64
	Seq    int64
	Side   string
	Price  float64
	Size   float64
	Orders int
}

type snapshotRow struct {
	Coin    string
	Time    int64
	Bids    []byte // JSONB level array
	Asks    []byte
	BestBid *float64
	BestAsk *float64
	Mid     *float64
}

// NewBookWriter creates a BookWriter over the given queue and database.
func NewBookWriter(cfg Config, input *Queue[BookRecord], db DB, logger *slog.Logger) *BookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookWriter{
		cfg:           cfg,
		input:         input,
		db:            db,
		logger:        logger,
		deltaBatch:    make([]deltaRow, 0, cfg.BatchSize),
		snapshotBatch: make([]snapshotRow, 0, 100),
	}
}

// Start begins consuming records and writing to the database.
func (w *BookWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("book writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains.
func (w *BookWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping book writer")

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
		w.logger.Info("book writer stopped")
	case <-ctx.Done():
		w.logger.Warn("book writer stop timed out")
	}

	// The final flush runs on the caller's context; the writer context is
	// already cancelled and would drop the last partial batch.
	w.flush(ctx)
	return nil
}

// consumeLoop reads from the queue and accumulates batches.
func (w *BookWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			rec, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleRecord(rec)
		}
	}
}

// flushLoop periodically flushes the batches.
func (w *BookWriter) flushLoop() {
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

// handleRecord transforms a record and adds it to the matching batch.
func (w *BookWriter) handleRecord(rec BookRecord) {
	metrics.ArchiveQueueDepth.Set(float64(w.input.Len()))

	switch {
	case rec.Snapshot != nil:
		row := transformSnapshot(rec.Snapshot)
		w.batchMu.Lock()
		w.snapshotBatch = append(w.snapshotBatch, row)
		w.batchMu.Unlock()
	case rec.Delta != nil:
		row := transformDelta(rec.Delta)
		w.batchMu.Lock()
		w.deltaBatch = append(w.deltaBatch, row)
		shouldFlush := len(w.deltaBatch) >= w.cfg.BatchSize
		w.batchMu.Unlock()
		if shouldFlush {
			w.flush(w.ctx)
		}
	default:
		w.logger.Warn("empty book record dropped")
	}
}

// transformDelta converts a queued delta into its row form.
func transformDelta(rec *DeltaRecord) deltaRow {
	return deltaRow{
		Coin:   rec.Coin,
		Time:   rec.Delta.Time,
		Seq:    rec.Delta.Seq,
		Side:   string(rec.Delta.Side),
		Price:  rec.Delta.Price,
		Size:   rec.Delta.Size,
		Orders: rec.Delta.Orders,
	}
}

// transformSnapshot converts a reconstructed snapshot into its row form.
// Level arrays are stored as JSONB.
func transformSnapshot(snap *model.BookSnapshot) snapshotRow {
	row := snapshotRow{
		Coin: snap.Coin,
		Time: snap.Time,
		Bids: levelsToJSONB(snap.Bids),
		Asks: levelsToJSONB(snap.Asks),
		Mid:  snap.MidPrice,
	}
	if best, ok := snap.BestBid(); ok {
		row.BestBid = &best.Price
	}
	if best, ok := snap.BestAsk(); ok {
		row.BestAsk = &best.Price
	}
	return row
}

func levelsToJSONB(levels []model.Level) []byte {
	type levelJSON struct {
		Px float64 `json:"px"`
		Sz float64 `json:"sz"`
		N  int     `json:"n"`
	}
	out := make([]levelJSON, len(levels))
	for i, lv := range levels {
		out[i] = levelJSON{Px: lv.Price, Sz: lv.Size, N: lv.Orders}
	}
	data, _ := json.Marshal(out)
	return data
}

// flush writes both batches to the database.
func (w *BookWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	deltaBatch := w.deltaBatch
	snapshotBatch := w.snapshotBatch
	w.deltaBatch = make([]deltaRow, 0, w.cfg.BatchSize)
	w.snapshotBatch = make([]snapshotRow, 0, 100)
	w.batchMu.Unlock()

	if len(deltaBatch) == 0 && len(snapshotBatch) == 0 {
		return
	}

	start := time.Now()

	if len(deltaBatch) > 0 {
		inserted, err := w.batchInsertDeltas(ctx, deltaBatch)
		if err != nil {
			w.logger.Error("delta batch insert failed", "error", err, "count", len(deltaBatch))
			metrics.ArchiveErrors.WithLabelValues("book_deltas").Inc()
		} else {
			metrics.ArchiveInserts.WithLabelValues("book_deltas").Add(float64(inserted))
		}
	}

	if len(snapshotBatch) > 0 {
		if err := w.batchInsertSnapshots(ctx, snapshotBatch); err != nil {
			w.logger.Error("snapshot batch insert failed", "error", err, "count", len(snapshotBatch))
			metrics.ArchiveErrors.WithLabelValues("book_snapshots").Inc()
		} else {
			metrics.ArchiveInserts.WithLabelValues("book_snapshots").Add(float64(len(snapshotBatch)))
		}
	}

	metrics.ArchiveFlushSeconds.Observe(time.Since(start).Seconds())

	w.logger.Debug("flushed book archive",
		"deltas", len(deltaBatch),
		"snapshots", len(snapshotBatch),
		"duration", time.Since(start),
	)
}

// batchInsertDeltas inserts delta rows with ON CONFLICT DO NOTHING and
// returns the count actually inserted.
func (w *BookWriter) batchInsertDeltas(ctx context.Context, rows []deltaRow) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_deltas (coin, time, seq, side, price, size, orders)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (coin, seq) DO NOTHING
		`, r.Coin, r.Time, r.Seq, r.Side, r.Price, r.Size, r.Orders)
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

// batchInsertSnapshots inserts snapshot rows with ON CONFLICT DO NOTHING.
func (w *BookWriter) batchInsertSnapshots(ctx context.Context, rows []snapshotRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_snapshots (coin, time, bids, asks, best_bid, best_ask, mid)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (coin, time) DO NOTHING
		`, r.Coin, r.Time, r.Bids, r.Asks, r.BestBid, r.BestAsk, r.Mid)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
