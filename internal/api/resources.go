package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dmarchuk/depthstream/internal/model"
)

// RangeOptions bounds a paginated time-series query.
type RangeOptions struct {
	Coin   string
	Start  int64  // Range start (ms since epoch, inclusive)
	End    int64  // Range end (ms since epoch, inclusive)
	Cursor string // Continuation cursor from a prior page
	Limit  int    // Max records per page; 0 = server default
}

func (o RangeOptions) query() url.Values {
	q := url.Values{}
	q.Set("coin", o.Coin)
	q.Set("start", strconv.FormatInt(o.Start, 10))
	q.Set("end", strconv.FormatInt(o.End, 10))
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// GetTrades fetches a page of executed trades.
func (c *Client) GetTrades(ctx context.Context, opts RangeOptions) (*TradesResponse, error) {
	var resp TradesResponse
	if err := c.get(ctx, "/trades", opts.query(), &resp); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}
	return &resp, nil
}

// GetAllTrades fetches every trade in the range by paginating through
// results.
func (c *Client) GetAllTrades(ctx context.Context, opts RangeOptions) ([]model.Trade, error) {
	var all []model.Trade
	opts.Limit = 1000 // Max page size

	for {
		resp, err := c.GetTrades(ctx, opts)
		if err != nil {
			return nil, err
		}

		for i := range resp.Trades {
			trade, err := resp.Trades[i].ToTrade()
			if err != nil {
				return nil, err
			}
			all = append(all, trade)
		}

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}

// GetCandles fetches OHLCV bars for a range at the given interval.
func (c *Client) GetCandles(ctx context.Context, opts RangeOptions, interval string) ([]model.Candle, error) {
	query := opts.query()
	query.Set("interval", interval)

	var resp CandlesResponse
	if err := c.get(ctx, "/candles", query, &resp); err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	candles := make([]model.Candle, 0, len(resp.Candles))
	for i := range resp.Candles {
		candle, err := resp.Candles[i].ToCandle()
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetFundingHistory fetches a page of funding observations. The returned
// cursor continues the range; empty means the last page.
func (c *Client) GetFundingHistory(ctx context.Context, opts RangeOptions) ([]model.FundingRate, string, error) {
	var resp FundingResponse
	if err := c.get(ctx, "/funding", opts.query(), &resp); err != nil {
		return nil, "", fmt.Errorf("get funding history: %w", err)
	}

	rates := make([]model.FundingRate, 0, len(resp.Funding))
	for i := range resp.Funding {
		rate, err := resp.Funding[i].ToFundingRate()
		if err != nil {
			return nil, "", err
		}
		rates = append(rates, rate)
	}
	return rates, resp.Cursor, nil
}

// GetOpenInterest fetches a page of open-interest observations.
func (c *Client) GetOpenInterest(ctx context.Context, opts RangeOptions) ([]model.OpenInterest, string, error) {
	var resp OpenInterestResponse
	if err := c.get(ctx, "/open-interest", opts.query(), &resp); err != nil {
		return nil, "", fmt.Errorf("get open interest: %w", err)
	}

	out := make([]model.OpenInterest, 0, len(resp.OpenInterest))
	for i := range resp.OpenInterest {
		oi, err := resp.OpenInterest[i].ToOpenInterest()
		if err != nil {
			return nil, "", err
		}
		out = append(out, oi)
	}
	return out, resp.Cursor, nil
}

// GetLiquidations fetches a page of forced liquidations.
func (c *Client) GetLiquidations(ctx context.Context, opts RangeOptions) ([]model.Liquidation, string, error) {
	var resp LiquidationsResponse
	if err := c.get(ctx, "/liquidations", opts.query(), &resp); err != nil {
		return nil, "", fmt.Errorf("get liquidations: %w", err)
	}

	out := make([]model.Liquidation, 0, len(resp.Liquidations))
	for i := range resp.Liquidations {
		liq, err := resp.Liquidations[i].ToLiquidation()
		if err != nil {
			return nil, "", err
		}
		out = append(out, liq)
	}
	return out, resp.Cursor, nil
}

// GetInstruments fetches the full instrument universe.
func (c *Client) GetInstruments(ctx context.Context) ([]model.Instrument, error) {
	var resp InstrumentsResponse
	if err := c.get(ctx, "/instruments", nil, &resp); err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}

	out := make([]model.Instrument, 0, len(resp.Instruments))
	for i := range resp.Instruments {
		out = append(out, resp.Instruments[i].ToInstrument())
	}
	return out, nil
}

// GetInstrument fetches a single instrument by coin.
func (c *Client) GetInstrument(ctx context.Context, coin string) (*model.Instrument, error) {
	var resp SingleInstrumentResponse
	if err := c.get(ctx, "/instruments/"+coin, nil, &resp); err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", coin, err)
	}
	inst := resp.Instrument.ToInstrument()
	return &inst, nil
}
