package model

import "github.com/google/uuid"

// -----------------------------------------------------------------------------
// Order Book Types
// -----------------------------------------------------------------------------

// Level is a single aggregated price level on one side of the book.
type Level struct {
	Price  float64 // Price
	Size   float64 // Aggregate size resting at this price
	Orders int     // Number of orders contributing to the size
}

// BookSnapshot is a point-in-time materialization of a two-sided book.
// Bids are ordered best-first (descending price), asks ascending.
type BookSnapshot struct {
	Coin     string   // Instrument identifier (e.g., "BTC")
	Time     int64    // Snapshot time (ms since epoch)
	Bids     []Level  // Bid side, best-first
	Asks     []Level  // Ask side, best-first
	MidPrice *float64 // (bestBid+bestAsk)/2, nil when either side is empty
}

// BestBid returns the top bid level, if any.
func (s *BookSnapshot) BestBid() (Level, bool) {
	if len(s.Bids) == 0 {
		return Level{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (s *BookSnapshot) BestAsk() (Level, bool) {
	if len(s.Asks) == 0 {
		return Level{}, false
	}
	return s.Asks[0], true
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Trade represents an executed trade.
type Trade struct {
	TradeID uuid.UUID // Trade identifier assigned upstream
	Coin    string    // Instrument
	Time    int64     // Execution time (ms since epoch)
	Side    string    // Taker side: "buy" or "sell"
	Price   float64   // Execution price
	Size    float64   // Executed size
}

// Candle represents an OHLCV bar.
type Candle struct {
	Coin      string  // Instrument
	Interval  string  // Bar interval (e.g., "1m", "1h")
	OpenTime  int64   // Bar open (ms since epoch)
	CloseTime int64   // Bar close (ms since epoch)
	Open      float64 // Open price
	High      float64 // High price
	Low       float64 // Low price
	Close     float64 // Close price
	Volume    float64 // Base volume
	Trades    int     // Trade count
}

// FundingRate represents a funding payment observation.
type FundingRate struct {
	Coin    string  // Instrument
	Time    int64   // Funding time (ms since epoch)
	Rate    float64 // Funding rate for the interval
	Premium float64 // Premium component
}

// OpenInterest represents an open-interest observation.
type OpenInterest struct {
	Coin  string  // Instrument
	Time  int64   // Observation time (ms since epoch)
	Value float64 // Open interest in contracts
}

// Liquidation represents a forced liquidation event.
type Liquidation struct {
	Coin  string  // Instrument
	Time  int64   // Event time (ms since epoch)
	Side  string  // Liquidated side: "long" or "short"
	Price float64 // Liquidation price
	Size  float64 // Liquidated size
}

// Instrument describes a tradeable instrument.
type Instrument struct {
	Coin        string // Instrument identifier
	Name        string // Display name
	SzDecimals  int    // Size precision (decimal places)
	PxDecimals  int    // Price precision (decimal places)
	MaxLeverage int    // Maximum leverage
	Delisted    bool   // True once the instrument is no longer tradeable
}
