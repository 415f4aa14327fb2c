package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmarchuk/depthstream/internal/model"
)

// UpsertInstruments reconciles the instrument catalog in Postgres. Rows are
// keyed by coin and updated in place so delistings and precision changes
// propagate on every bootstrap.
func (p *Pools) UpsertInstruments(ctx context.Context, instruments []model.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	batch := instrumentBatch(instruments)
	results := p.Postgres.SendBatch(ctx, batch)
	defer results.Close()

	for range instruments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert instruments: %w", err)
		}
	}
	return nil
}

func instrumentBatch(instruments []model.Instrument) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, inst := range instruments {
		batch.Queue(`
			INSERT INTO instruments (coin, name, sz_decimals, px_decimals, max_leverage, delisted)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (coin) DO UPDATE SET
				name = EXCLUDED.name,
				sz_decimals = EXCLUDED.sz_decimals,
				px_decimals = EXCLUDED.px_decimals,
				max_leverage = EXCLUDED.max_leverage,
				delisted = EXCLUDED.delisted
		`, inst.Coin, inst.Name, inst.SzDecimals, inst.PxDecimals, inst.MaxLeverage, inst.Delisted)
	}
	return batch
}
