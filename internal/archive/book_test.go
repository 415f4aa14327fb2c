package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmarchuk/depthstream/internal/book"
	"github.com/dmarchuk/depthstream/internal/model"
	"github.com/dmarchuk/depthstream/internal/reconstruct"
)

func TestBookWriter_TransformDelta(t *testing.T) {
	rec := &DeltaRecord{
		Coin: "BTC",
		Delta: reconstruct.Delta{
			Time:   1705320000000,
			Side:   book.SideBid,
			Price:  100.5,
			Size:   2.5,
			Orders: 3,
			Seq:    42,
		},
	}

	row := transformDelta(rec)

	if row.Coin != "BTC" {
		t.Errorf("Coin = %s, want BTC", row.Coin)
	}
	if row.Time != 1705320000000 {
		t.Errorf("Time = %d, want 1705320000000", row.Time)
	}
	if row.Seq != 42 {
		t.Errorf("Seq = %d, want 42", row.Seq)
	}
	if row.Side != "bid" {
		t.Errorf("Side = %s, want bid", row.Side)
	}
	if row.Price != 100.5 || row.Size != 2.5 || row.Orders != 3 {
		t.Errorf("px/sz/n = %v/%v/%d, want 100.5/2.5/3", row.Price, row.Size, row.Orders)
	}
}

func TestBookWriter_TransformSnapshot(t *testing.T) {
	mid := 100.5
	snap := &model.BookSnapshot{
		Coin: "ETH",
		Time: 2000,
		Bids: []model.Level{{Price: 100, Size: 5, Orders: 2}},
		Asks: []model.Level{{Price: 101, Size: 3, Orders: 1}},
		MidPrice: &mid,
	}

	row := transformSnapshot(snap)

	if row.Coin != "ETH" || row.Time != 2000 {
		t.Errorf("key = %s/%d, want ETH/2000", row.Coin, row.Time)
	}
	if row.BestBid == nil || *row.BestBid != 100 {
		t.Errorf("BestBid = %v, want 100", row.BestBid)
	}
	if row.BestAsk == nil || *row.BestAsk != 101 {
		t.Errorf("BestAsk = %v, want 101", row.BestAsk)
	}
	if row.Mid == nil || *row.Mid != 100.5 {
		t.Errorf("Mid = %v, want 100.5", row.Mid)
	}

	var bids []struct {
		Px float64 `json:"px"`
		Sz float64 `json:"sz"`
		N  int     `json:"n"`
	}
	if err := json.Unmarshal(row.Bids, &bids); err != nil {
		t.Fatalf("bids JSONB invalid: %v", err)
	}
	if len(bids) != 1 || bids[0].Px != 100 || bids[0].Sz != 5 || bids[0].N != 2 {
		t.Errorf("bids JSONB = %+v, want one level 100/5/2", bids)
	}
}

func TestBookWriter_TransformSnapshotEmptySide(t *testing.T) {
	snap := &model.BookSnapshot{
		Coin: "XRP",
		Time: 3000,
		Asks: []model.Level{{Price: 1.2, Size: 10}},
	}

	row := transformSnapshot(snap)

	if row.BestBid != nil {
		t.Errorf("BestBid = %v, want nil for empty bid side", row.BestBid)
	}
	if row.Mid != nil {
		t.Errorf("Mid = %v, want nil for one-sided book", row.Mid)
	}
	if string(row.Bids) != "[]" {
		t.Errorf("empty bids JSONB = %s, want []", row.Bids)
	}
}

func TestBookWriter_HandleRecordBatching(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // Large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	input := NewQueue[BookRecord](10)
	w := NewBookWriter(cfg, input, nil, nil)

	w.handleRecord(BookRecord{Delta: &DeltaRecord{Coin: "BTC", Delta: reconstruct.Delta{Seq: 1, Side: book.SideBid}}})
	w.handleRecord(BookRecord{Snapshot: &model.BookSnapshot{Coin: "BTC", Time: 1}})
	w.handleRecord(BookRecord{}) // empty records are dropped

	w.batchMu.Lock()
	deltas, snaps := len(w.deltaBatch), len(w.snapshotBatch)
	w.batchMu.Unlock()

	if deltas != 1 {
		t.Errorf("delta batch = %d, want 1", deltas)
	}
	if snaps != 1 {
		t.Errorf("snapshot batch = %d, want 1", snaps)
	}
}

func TestBookWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := NewQueue[BookRecord](10)

	// No database: this tests the goroutine lifecycle only.
	w := NewBookWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTradeWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := NewQueue[model.Trade](10)

	w := NewTradeWriter(cfg, input, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTradeWriter_HandleTradeBatching(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	input := NewQueue[model.Trade](10)
	w := NewTradeWriter(cfg, input, nil, nil)

	w.handleTrade(model.Trade{Coin: "BTC", Time: 1, Side: "buy", Price: 100, Size: 1})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
	if cfg.QueueSize != 1000 {
		t.Errorf("QueueSize = %d, want 1000", cfg.QueueSize)
	}
}
