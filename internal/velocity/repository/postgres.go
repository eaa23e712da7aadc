package repository

import (
	"context"

	"github.com/fekuna/omnipos-sync-service/internal/database"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/jmoiron/sqlx"
)

const batchSize = 500

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertVelocity = `
	INSERT INTO sales_velocity (
		tenant_id, variation_id, location_id, period_days,
		total_quantity_sold, total_revenue_amount,
		daily_avg_quantity, weekly_avg_quantity, monthly_avg_quantity,
		period_start_date, period_end_date, updated_at
	) VALUES (
		:tenant_id, :variation_id, :location_id, :period_days,
		:total_quantity_sold, :total_revenue_amount,
		:daily_avg_quantity, :weekly_avg_quantity, :monthly_avg_quantity,
		:period_start_date, :period_end_date, :updated_at
	)
`

func (r *PGRepository) ReplacePeriod(ctx context.Context, tenantID string, periodDays int, rows []model.SalesVelocity) error {
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM sales_velocity WHERE tenant_id = $1 AND period_days = $2`, tenantID, periodDays)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		stmt, err := tx.PrepareNamedContext(ctx, insertVelocity)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// The averages are derived from the summed totals inside the statement so
// concurrent increments never overwrite each other.
const incrementVelocity = insertVelocity + `
	ON CONFLICT (tenant_id, variation_id, location_id, period_days) DO UPDATE SET
		total_quantity_sold = sales_velocity.total_quantity_sold + EXCLUDED.total_quantity_sold,
		total_revenue_amount = sales_velocity.total_revenue_amount + EXCLUDED.total_revenue_amount,
		daily_avg_quantity = (sales_velocity.total_quantity_sold + EXCLUDED.total_quantity_sold) / sales_velocity.period_days,
		weekly_avg_quantity = (sales_velocity.total_quantity_sold + EXCLUDED.total_quantity_sold) / (sales_velocity.period_days / 7.0),
		monthly_avg_quantity = (sales_velocity.total_quantity_sold + EXCLUDED.total_quantity_sold) / (sales_velocity.period_days / 30.0),
		period_end_date = GREATEST(sales_velocity.period_end_date, EXCLUDED.period_end_date),
		updated_at = EXCLUDED.updated_at
`

func (r *PGRepository) IncrementFromOrder(ctx context.Context, rows []model.SalesVelocity) error {
	if len(rows) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, incrementVelocity)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range rows {
			if _, err := stmt.ExecContext(ctx, &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) ListByPeriod(ctx context.Context, tenantID string, periodDays int) ([]model.SalesVelocity, error) {
	var rows []model.SalesVelocity
	err := r.DB.SelectContext(ctx, &rows, `
		SELECT tenant_id, variation_id, location_id, period_days,
			total_quantity_sold, total_revenue_amount,
			daily_avg_quantity, weekly_avg_quantity, monthly_avg_quantity,
			period_start_date, period_end_date, updated_at
		FROM sales_velocity
		WHERE tenant_id = $1 AND period_days = $2
		ORDER BY variation_id, location_id
	`, tenantID, periodDays)
	return rows, err
}

func (r *PGRepository) KnownVariationIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	var out []string
	for _, chunk := range database.Chunk(ids, batchSize) {
		query, args, err := sqlx.In(
			`SELECT id FROM catalog_variations WHERE tenant_id = ? AND id IN (?) AND is_deleted = FALSE`, tenantID, chunk)
		if err != nil {
			return nil, err
		}
		var found []string
		if err := r.DB.SelectContext(ctx, &found, r.DB.Rebind(query), args...); err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}
