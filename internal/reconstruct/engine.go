package reconstruct

import (
	"errors"
	"fmt"

	"github.com/dmarchuk/depthstream/internal/book"
	"github.com/dmarchuk/depthstream/internal/metrics"
	"github.com/dmarchuk/depthstream/internal/model"
)

var (
	// ErrInvalidCheckpoint means the checkpoint is missing required fields.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrInvalidDelta means a delta is malformed or out of sequence order.
	// The reconstruction run fails at that delta; nothing after it is applied.
	ErrInvalidDelta = errors.New("invalid delta")
)

// Checkpoint is a full two-sided book snapshot used to seed reconstruction.
// It is treated as immutable input; the engine copies levels before mutating.
type Checkpoint struct {
	Coin string        // Instrument
	Time int64         // Checkpoint time (ms since epoch)
	Bids []model.Level // Bid side
	Asks []model.Level // Ask side
}

// Delta is a single incremental price-level mutation.
type Delta struct {
	Time   int64     // Mutation time (ms since epoch)
	Side   book.Side // "bid" or "ask"
	Price  float64   // Price level
	Size   float64   // New aggregate size; 0 removes the level
	Orders int       // Order count at the level
	Seq    int64     // Strictly increasing sequence number
}

// Options configures a reconstruction run.
type Options struct {
	// Depth bounds the levels per side retained in emitted snapshots.
	// Zero or negative means unlimited.
	Depth int
}

// Book is a ledger pair for one instrument. It is owned by whoever drives
// the reconstruction (the history walker keeps one across page boundaries)
// and borrowed by engines per batch.
type Book struct {
	Bids *book.Ledger
	Asks *book.Ledger
}

// NewBook creates an empty ledger pair.
func NewBook() *Book {
	return &Book{
		Bids: book.NewLedger(book.SideBid),
		Asks: book.NewLedger(book.SideAsk),
	}
}

// Snapshot materializes the current book state bounded to depth levels per
// side. MidPrice is set only when both sides are populated.
func (b *Book) Snapshot(coin string, ts int64, depth int) model.BookSnapshot {
	snap := model.BookSnapshot{
		Coin: coin,
		Time: ts,
		Bids: b.Bids.TopLevels(depth),
		Asks: b.Asks.TopLevels(depth),
	}

	bestBid, okBid := b.Bids.Best()
	bestAsk, okAsk := b.Asks.Best()
	if okBid && okAsk {
		mid := (bestBid.Price + bestAsk.Price) / 2
		snap.MidPrice = &mid
	}

	return snap
}

// Engine applies ordered deltas to a Book and synthesizes snapshots.
type Engine struct {
	coin    string
	book    *Book
	depth   int
	lastSeq int64
	applied bool // true once at least one delta has been applied
	seedTs  int64
}

// NewEngine validates the checkpoint and seeds a fresh Book from it.
func NewEngine(cp *Checkpoint, opts Options) (*Engine, error) {
	if err := validateCheckpoint(cp); err != nil {
		return nil, err
	}

	b := NewBook()
	b.Bids.Seed(cp.Bids)
	b.Asks.Seed(cp.Asks)

	return &Engine{
		coin:   cp.Coin,
		book:   b,
		depth:  opts.Depth,
		seedTs: cp.Time,
	}, nil
}

// NewEngineWithBook creates an engine that borrows an existing Book,
// continuing from lastSeq. Used for delta-only continuation across history
// pages, where the caller carries the ledger state.
func NewEngineWithBook(coin string, b *Book, lastSeq int64, opts Options) *Engine {
	return &Engine{
		coin:    coin,
		book:    b,
		depth:   opts.Depth,
		lastSeq: lastSeq,
		applied: lastSeq > 0,
		seedTs:  0,
	}
}

// LastSeq returns the sequence number of the last applied delta.
func (e *Engine) LastSeq() int64 {
	return e.lastSeq
}

// Book exposes the ledger pair the engine mutates, so a caller driving
// reconstruction across batches can take ownership of the carried state.
func (e *Engine) Book() *Book {
	return e.book
}

// Apply mutates the book with a single delta. It enforces side validity and
// strictly ascending sequence order; the offending delta is not applied.
func (e *Engine) Apply(d Delta) error {
	if !d.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q at seq %d", ErrInvalidDelta, d.Side, d.Seq)
	}
	if d.Size < 0 {
		return fmt.Errorf("%w: negative size %v at seq %d", ErrInvalidDelta, d.Size, d.Seq)
	}
	if e.applied && d.Seq <= e.lastSeq {
		return fmt.Errorf("%w: seq %d not after %d", ErrInvalidDelta, d.Seq, e.lastSeq)
	}

	if d.Side == book.SideBid {
		e.book.Bids.Upsert(d.Price, d.Size, d.Orders)
	} else {
		e.book.Asks.Upsert(d.Price, d.Size, d.Orders)
	}
	e.lastSeq = d.Seq
	e.applied = true
	return nil
}

// Snapshot materializes the current state at the given timestamp.
func (e *Engine) Snapshot(ts int64) model.BookSnapshot {
	metrics.SnapshotsEmitted.Inc()
	return e.book.Snapshot(e.coin, ts, e.depth)
}

// Iterate returns a lazy iterator emitting one snapshot per delta. Deltas
// are applied only as the consumer pulls; stopping early leaves the rest
// unapplied.
func (e *Engine) Iterate(deltas []Delta) *Iterator {
	return &Iterator{engine: e, deltas: deltas}
}

// Final applies all deltas without intermediate snapshot synthesis and
// returns exactly one final snapshot. With no deltas the snapshot reflects
// the seed state at the checkpoint time.
func (e *Engine) Final(deltas []Delta) (model.BookSnapshot, error) {
	ts := e.seedTs
	for _, d := range deltas {
		if err := e.Apply(d); err != nil {
			return model.BookSnapshot{}, err
		}
		ts = d.Time
	}
	return e.Snapshot(ts), nil
}

// Iterator lazily yields one snapshot per applied delta. It is restartable
// only by re-running reconstruction from the same checkpoint.
type Iterator struct {
	engine *Engine
	deltas []Delta
	pos    int
	err    error
}

// Next applies the next delta and returns the resulting snapshot. The second
// return is false when the sequence is exhausted or a previous call failed;
// the error, once set, is sticky.
func (it *Iterator) Next() (model.BookSnapshot, bool, error) {
	if it.err != nil {
		return model.BookSnapshot{}, false, it.err
	}
	if it.pos >= len(it.deltas) {
		return model.BookSnapshot{}, false, nil
	}

	d := it.deltas[it.pos]
	if err := it.engine.Apply(d); err != nil {
		it.err = err
		return model.BookSnapshot{}, false, err
	}
	it.pos++

	return it.engine.Snapshot(d.Time), true, nil
}

// Reconstruct seeds from the checkpoint and returns a lazy per-delta
// snapshot iterator.
func Reconstruct(cp *Checkpoint, deltas []Delta, opts Options) (*Iterator, error) {
	e, err := NewEngine(cp, opts)
	if err != nil {
		return nil, err
	}
	return e.Iterate(deltas), nil
}

// ReconstructFinal seeds from the checkpoint, applies all deltas, and
// returns the single final snapshot. This is the efficient path when
// intermediate states are not needed.
func ReconstructFinal(cp *Checkpoint, deltas []Delta, opts Options) (model.BookSnapshot, error) {
	e, err := NewEngine(cp, opts)
	if err != nil {
		return model.BookSnapshot{}, err
	}
	return e.Final(deltas)
}

func validateCheckpoint(cp *Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCheckpoint)
	}
	if cp.Coin == "" {
		return fmt.Errorf("%w: missing coin", ErrInvalidCheckpoint)
	}
	if cp.Time <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidCheckpoint)
	}
	return nil
}
