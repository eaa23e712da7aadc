package repository

import (
	"context"
	"time"

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

func (r *PGRepository) DeleteRowsNotInInvoices(ctx context.Context, tenantID string, openInvoiceIDs []string) (int64, error) {
	if len(openInvoiceIDs) == 0 {
		res, err := r.DB.ExecContext(ctx, `DELETE FROM committed_inventory WHERE tenant_id = $1`, tenantID)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	query, args, err := sqlx.In(`DELETE FROM committed_inventory WHERE tenant_id = ? AND invoice_id NOT IN (?)`, tenantID, openInvoiceIDs)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepository) ReplaceInvoiceRows(ctx context.Context, tenantID, invoiceID string, rows []model.CommittedInventory) error {
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM committed_inventory WHERE tenant_id = $1 AND invoice_id = $2`, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		query := `
			INSERT INTO committed_inventory (
				id, tenant_id, invoice_id, order_id, variation_id, location_id,
				quantity, invoice_status, created_at, updated_at
			) VALUES (
				:id, :tenant_id, :invoice_id, :order_id, :variation_id, :location_id,
				:quantity, :invoice_status, :created_at, :updated_at
			)
		`
		stmt, err := tx.PrepareNamedContext(ctx, query)
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

func (r *PGRepository) CountRows(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := r.DB.GetContext(ctx, &n, `SELECT COUNT(*) FROM committed_inventory WHERE tenant_id = $1`, tenantID)
	return n, err
}

func (r *PGRepository) RebuildReservedCounts(ctx context.Context, tenantID string, at time.Time) (int64, error) {
	var inserted int64
	err := database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM inventory_counts WHERE tenant_id = $1 AND state = $2`, tenantID, model.StateReservedForSale)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_counts (tenant_id, variation_id, location_id, state, quantity, calculated_at, updated_at)
			SELECT tenant_id, variation_id, location_id, $2, SUM(quantity), $3, $3
			FROM committed_inventory
			WHERE tenant_id = $1
			GROUP BY tenant_id, variation_id, location_id
		`, tenantID, model.StateReservedForSale, at)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	return inserted, err
}

func (r *PGRepository) UpsertCounts(ctx context.Context, counts []model.InventoryCount) error {
	if len(counts) == 0 {
		return nil
	}
	query := `
		INSERT INTO inventory_counts (tenant_id, variation_id, location_id, state, quantity, calculated_at, updated_at)
		VALUES (:tenant_id, :variation_id, :location_id, :state, :quantity, :calculated_at, :updated_at)
		ON CONFLICT (tenant_id, variation_id, location_id, state) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			calculated_at = EXCLUDED.calculated_at,
			updated_at = EXCLUDED.updated_at
	`
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range counts {
			if _, err := stmt.ExecContext(ctx, &counts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) ListCounts(ctx context.Context, tenantID, state string) ([]model.InventoryCount, error) {
	var counts []model.InventoryCount
	err := r.DB.SelectContext(ctx, &counts, `
		SELECT tenant_id, variation_id, location_id, state, quantity, calculated_at, updated_at
		FROM inventory_counts
		WHERE tenant_id = $1 AND state = $2
		ORDER BY variation_id, location_id
	`, tenantID, state)
	return counts, err
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
