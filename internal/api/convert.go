package api

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/dmarchuk/depthstream/internal/model"
)

func parseDecimal(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, s, err)
	}
	return v, nil
}

// ToTrade converts the wire trade into the internal model.
func (t *APITrade) ToTrade() (model.Trade, error) {
	id, err := uuid.Parse(t.TradeID)
	if err != nil {
		return model.Trade{}, fmt.Errorf("trade id %q: %w", t.TradeID, err)
	}
	px, err := parseDecimal("trade price", t.Px)
	if err != nil {
		return model.Trade{}, err
	}
	sz, err := parseDecimal("trade size", t.Sz)
	if err != nil {
		return model.Trade{}, err
	}
	return model.Trade{
		TradeID: id,
		Coin:    t.Coin,
		Time:    t.Time,
		Side:    t.Side,
		Price:   px,
		Size:    sz,
	}, nil
}

// ToCandle converts the wire candle into the internal model.
func (c *APICandle) ToCandle() (model.Candle, error) {
	out := model.Candle{
		Coin:      c.Coin,
		Interval:  c.Interval,
		OpenTime:  c.OpenTime,
		CloseTime: c.CloseTime,
		Trades:    c.Trades,
	}

	var err error
	if out.Open, err = parseDecimal("candle open", c.Open); err != nil {
		return model.Candle{}, err
	}
	if out.High, err = parseDecimal("candle high", c.High); err != nil {
		return model.Candle{}, err
	}
	if out.Low, err = parseDecimal("candle low", c.Low); err != nil {
		return model.Candle{}, err
	}
	if out.Close, err = parseDecimal("candle close", c.Close); err != nil {
		return model.Candle{}, err
	}
	if out.Volume, err = parseDecimal("candle volume", c.Volume); err != nil {
		return model.Candle{}, err
	}
	return out, nil
}

// ToFundingRate converts the wire funding observation into the internal
// model.
func (f *APIFundingRate) ToFundingRate() (model.FundingRate, error) {
	rate, err := parseDecimal("funding rate", f.Rate)
	if err != nil {
		return model.FundingRate{}, err
	}
	premium, err := parseDecimal("funding premium", f.Premium)
	if err != nil {
		return model.FundingRate{}, err
	}
	return model.FundingRate{
		Coin:    f.Coin,
		Time:    f.Time,
		Rate:    rate,
		Premium: premium,
	}, nil
}

// ToOpenInterest converts the wire open-interest observation into the
// internal model.
func (o *APIOpenInterest) ToOpenInterest() (model.OpenInterest, error) {
	value, err := parseDecimal("open interest", o.Value)
	if err != nil {
		return model.OpenInterest{}, err
	}
	return model.OpenInterest{
		Coin:  o.Coin,
		Time:  o.Time,
		Value: value,
	}, nil
}

// ToLiquidation converts the wire liquidation into the internal model.
func (l *APILiquidation) ToLiquidation() (model.Liquidation, error) {
	px, err := parseDecimal("liquidation price", l.Px)
	if err != nil {
		return model.Liquidation{}, err
	}
	sz, err := parseDecimal("liquidation size", l.Sz)
	if err != nil {
		return model.Liquidation{}, err
	}
	return model.Liquidation{
		Coin:  l.Coin,
		Time:  l.Time,
		Side:  l.Side,
		Price: px,
		Size:  sz,
	}, nil
}

// ToInstrument converts the wire instrument into the internal model.
func (i *APIInstrument) ToInstrument() model.Instrument {
	return model.Instrument{
		Coin:        i.Coin,
		Name:        i.Name,
		SzDecimals:  i.SzDecimals,
		PxDecimals:  i.PxDecimals,
		MaxLeverage: i.MaxLeverage,
		Delisted:    i.Delisted,
	}
}
