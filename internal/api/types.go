package api

import "github.com/dmarchuk/depthstream/internal/wire"

// BookPageResponse is one bounded chunk of order-book history. The
// checkpoint is present only on the first page of a range.
type BookPageResponse struct {
	Coin       string               `json:"coin"`
	Checkpoint *wire.BookCheckpoint `json:"checkpoint,omitempty"`
	Deltas     []wire.BookDelta     `json:"deltas"`
}

// APITrade is an executed trade as served by the REST API. Prices and
// sizes cross the wire as decimal strings.
type APITrade struct {
	TradeID string `json:"trade_id"`
	Coin    string `json:"coin"`
	Time    int64  `json:"time"`
	Side    string `json:"side"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
}

// TradesResponse is a page of trades with a continuation cursor.
type TradesResponse struct {
	Trades []APITrade `json:"trades"`
	Cursor string     `json:"cursor"`
}

// APICandle is an OHLCV bar on the wire.
type APICandle struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	OpenTime  int64  `json:"open_time"`
	CloseTime int64  `json:"close_time"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	Trades    int    `json:"trades"`
}

// CandlesResponse is a full candle range; candle queries are not paginated.
type CandlesResponse struct {
	Candles []APICandle `json:"candles"`
}

// APIFundingRate is one funding observation on the wire.
type APIFundingRate struct {
	Coin    string `json:"coin"`
	Time    int64  `json:"time"`
	Rate    string `json:"rate"`
	Premium string `json:"premium"`
}

// FundingResponse is a page of funding history.
type FundingResponse struct {
	Funding []APIFundingRate `json:"funding"`
	Cursor  string           `json:"cursor"`
}

// APIOpenInterest is one open-interest observation on the wire.
type APIOpenInterest struct {
	Coin  string `json:"coin"`
	Time  int64  `json:"time"`
	Value string `json:"value"`
}

// OpenInterestResponse is a page of open-interest history.
type OpenInterestResponse struct {
	OpenInterest []APIOpenInterest `json:"open_interest"`
	Cursor       string            `json:"cursor"`
}

// APILiquidation is one forced liquidation on the wire.
type APILiquidation struct {
	Coin string `json:"coin"`
	Time int64  `json:"time"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
}

// LiquidationsResponse is a page of liquidations.
type LiquidationsResponse struct {
	Liquidations []APILiquidation `json:"liquidations"`
	Cursor       string           `json:"cursor"`
}

// APIInstrument describes a tradeable instrument on the wire.
type APIInstrument struct {
	Coin        string `json:"coin"`
	Name        string `json:"name"`
	SzDecimals  int    `json:"sz_decimals"`
	PxDecimals  int    `json:"px_decimals"`
	MaxLeverage int    `json:"max_leverage"`
	Delisted    bool   `json:"delisted"`
}

// InstrumentsResponse lists the instrument universe.
type InstrumentsResponse struct {
	Instruments []APIInstrument `json:"instruments"`
}

// SingleInstrumentResponse wraps one instrument.
type SingleInstrumentResponse struct {
	Instrument APIInstrument `json:"instrument"`
}
