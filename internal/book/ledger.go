package book

import (
	"sort"

	"github.com/dmarchuk/depthstream/internal/model"
)

// Side identifies one side of the book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Valid reports whether s is a recognized book side.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// Ledger holds one side's price levels sorted best-first.
// Prices are unique; a level is either present with size > 0 or absent.
type Ledger struct {
	side   Side
	levels []model.Level
}

// NewLedger creates an empty ledger for the given side.
func NewLedger(side Side) *Ledger {
	return &Ledger{side: side}
}

// Side returns the side this ledger represents.
func (l *Ledger) Side() Side {
	return l.side
}

// Len returns the number of populated price levels.
func (l *Ledger) Len() int {
	return len(l.levels)
}

// Seed replaces the ledger contents with the given levels. The input is
// copied; zero-size levels are dropped. Used to initialize from a checkpoint.
func (l *Ledger) Seed(levels []model.Level) {
	l.levels = l.levels[:0]
	for _, lv := range levels {
		if lv.Size > 0 {
			l.levels = append(l.levels, lv)
		}
	}
	if l.side == SideBid {
		sort.Slice(l.levels, func(i, j int) bool {
			return l.levels[i].Price > l.levels[j].Price
		})
	} else {
		sort.Slice(l.levels, func(i, j int) bool {
			return l.levels[i].Price < l.levels[j].Price
		})
	}
}

// Upsert inserts or replaces the level at price when size > 0, and removes
// it when size == 0. Removing an absent level is a no-op.
func (l *Ledger) Upsert(price, size float64, orders int) {
	i := l.search(price)
	found := i < len(l.levels) && l.levels[i].Price == price

	switch {
	case size == 0 && found:
		l.levels = append(l.levels[:i], l.levels[i+1:]...)
	case size == 0:
		// Absent level, nothing to remove.
	case found:
		l.levels[i].Size = size
		l.levels[i].Orders = orders
	default:
		l.levels = append(l.levels, model.Level{})
		copy(l.levels[i+1:], l.levels[i:])
		l.levels[i] = model.Level{Price: price, Size: size, Orders: orders}
	}
}

// Best returns the top-ranked level, if any.
func (l *Ledger) Best() (model.Level, bool) {
	if len(l.levels) == 0 {
		return model.Level{}, false
	}
	return l.levels[0], true
}

// TopLevels returns up to depth best-ranked levels as a copy. depth <= 0
// returns the whole side.
func (l *Ledger) TopLevels(depth int) []model.Level {
	n := len(l.levels)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]model.Level, n)
	copy(out, l.levels[:n])
	return out
}

// search returns the insertion index for price in best-first order.
// If the price is present, the returned index points at it.
func (l *Ledger) search(price float64) int {
	if l.side == SideBid {
		return sort.Search(len(l.levels), func(i int) bool {
			return l.levels[i].Price <= price
		})
	}
	return sort.Search(len(l.levels), func(i int) bool {
		return l.levels[i].Price >= price
	})
}
