package repository

import (
	"context"
	"database/sql"
	"errors"
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

// execEach runs one named statement per row inside a single transaction.
func execEach[T any](ctx context.Context, db *sqlx.DB, query string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
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

func (r *PGRepository) UpsertCategories(ctx context.Context, categories []model.Category) error {
	query := `
		INSERT INTO catalog_categories (tenant_id, id, name, parent_id, version, is_deleted, deleted_at, updated_at)
		VALUES (:tenant_id, :id, :name, :parent_id, :version, FALSE, NULL, :updated_at)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			parent_id = EXCLUDED.parent_id,
			version = EXCLUDED.version,
			is_deleted = FALSE,
			deleted_at = NULL,
			updated_at = EXCLUDED.updated_at
	`
	return execEach(ctx, r.DB, query, categories)
}

func (r *PGRepository) UpsertImages(ctx context.Context, images []model.Image) error {
	query := `
		INSERT INTO catalog_images (tenant_id, id, name, url, caption, version, is_deleted, deleted_at, updated_at)
		VALUES (:tenant_id, :id, :name, :url, :caption, :version, FALSE, NULL, :updated_at)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			caption = EXCLUDED.caption,
			version = EXCLUDED.version,
			is_deleted = FALSE,
			deleted_at = NULL,
			updated_at = EXCLUDED.updated_at
	`
	return execEach(ctx, r.DB, query, images)
}

func (r *PGRepository) CategoryNames(ctx context.Context, tenantID string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, chunk := range database.Chunk(ids, batchSize) {
		query, args, err := sqlx.In(`SELECT id, name FROM catalog_categories WHERE tenant_id = ? AND id IN (?) AND is_deleted = FALSE`, tenantID, chunk)
		if err != nil {
			return nil, err
		}
		var rows []struct {
			ID   string `db:"id"`
			Name string `db:"name"`
		}
		if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, row := range rows {
			out[row.ID] = row.Name
		}
	}
	return out, nil
}

// UpsertItems leaves category_id and category_name of existing rows alone;
// UpdateItemCategories owns them.
func (r *PGRepository) UpsertItems(ctx context.Context, items []model.CatalogItem) error {
	query := `
		INSERT INTO catalog_items (
			tenant_id, id, name, description, category_id, category_name, reporting_category_id,
			product_type, is_archived, visibility, seo_title, seo_description, seo_permalink,
			image_ids, present_at_all_locations, present_at_location_ids, absent_at_location_ids,
			custom_attributes, version, is_deleted, deleted_at, remote_updated_at, updated_at
		) VALUES (
			:tenant_id, :id, :name, :description, :category_id, :category_name, :reporting_category_id,
			:product_type, :is_archived, :visibility, :seo_title, :seo_description, :seo_permalink,
			:image_ids, :present_at_all_locations, :present_at_location_ids, :absent_at_location_ids,
			:custom_attributes, :version, FALSE, NULL, :remote_updated_at, :updated_at
		)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			reporting_category_id = EXCLUDED.reporting_category_id,
			product_type = EXCLUDED.product_type,
			is_archived = EXCLUDED.is_archived,
			visibility = EXCLUDED.visibility,
			seo_title = EXCLUDED.seo_title,
			seo_description = EXCLUDED.seo_description,
			seo_permalink = EXCLUDED.seo_permalink,
			image_ids = EXCLUDED.image_ids,
			present_at_all_locations = EXCLUDED.present_at_all_locations,
			present_at_location_ids = EXCLUDED.present_at_location_ids,
			absent_at_location_ids = EXCLUDED.absent_at_location_ids,
			custom_attributes = EXCLUDED.custom_attributes,
			version = EXCLUDED.version,
			is_deleted = FALSE,
			deleted_at = NULL,
			remote_updated_at = EXCLUDED.remote_updated_at,
			updated_at = EXCLUDED.updated_at
	`
	return execEach(ctx, r.DB, query, items)
}

// UpsertVariation writes the variation and replaces its vendor cost links
// in one transaction.
func (r *PGRepository) UpsertVariation(ctx context.Context, v *model.CatalogVariation) error {
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO catalog_variations (
				tenant_id, id, item_id, name, sku, upc, ordinal, pricing_type, price_amount, price_currency,
				track_inventory, inventory_alert_type, inventory_alert_threshold, sellable, stockable,
				present_at_all_locations, present_at_location_ids, custom_attributes, version,
				is_deleted, deleted_at, remote_updated_at, updated_at
			) VALUES (
				:tenant_id, :id, :item_id, :name, :sku, :upc, :ordinal, :pricing_type, :price_amount, :price_currency,
				:track_inventory, :inventory_alert_type, :inventory_alert_threshold, :sellable, :stockable,
				:present_at_all_locations, :present_at_location_ids, :custom_attributes, :version,
				FALSE, NULL, :remote_updated_at, :updated_at
			)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				item_id = EXCLUDED.item_id,
				name = EXCLUDED.name,
				sku = EXCLUDED.sku,
				upc = EXCLUDED.upc,
				ordinal = EXCLUDED.ordinal,
				pricing_type = EXCLUDED.pricing_type,
				price_amount = EXCLUDED.price_amount,
				price_currency = EXCLUDED.price_currency,
				track_inventory = EXCLUDED.track_inventory,
				inventory_alert_type = EXCLUDED.inventory_alert_type,
				inventory_alert_threshold = EXCLUDED.inventory_alert_threshold,
				sellable = EXCLUDED.sellable,
				stockable = EXCLUDED.stockable,
				present_at_all_locations = EXCLUDED.present_at_all_locations,
				present_at_location_ids = EXCLUDED.present_at_location_ids,
				custom_attributes = EXCLUDED.custom_attributes,
				version = EXCLUDED.version,
				is_deleted = FALSE,
				deleted_at = NULL,
				remote_updated_at = EXCLUDED.remote_updated_at,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.NamedExecContext(ctx, query, v); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM variation_vendor_costs WHERE tenant_id = $1 AND variation_id = $2`, v.TenantID, v.ID); err != nil {
			return err
		}
		for i := range v.VendorCosts {
			if _, err := tx.NamedExecContext(ctx, insertVendorCost, &v.VendorCosts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

const insertVendorCost = `
	INSERT INTO variation_vendor_costs (tenant_id, variation_id, vendor_id, vendor_code, unit_cost_amount, currency, updated_at)
	VALUES (:tenant_id, :variation_id, :vendor_id, :vendor_code, :unit_cost_amount, :currency, :updated_at)
	ON CONFLICT (tenant_id, variation_id, vendor_id) DO UPDATE SET
		vendor_code = EXCLUDED.vendor_code,
		unit_cost_amount = EXCLUDED.unit_cost_amount,
		currency = EXCLUDED.currency,
		updated_at = EXCLUDED.updated_at
`

func (r *PGRepository) UpsertVendorCost(ctx context.Context, cost *model.VariationVendorCost) error {
	_, err := r.DB.NamedExecContext(ctx, insertVendorCost, cost)
	return err
}

func (r *PGRepository) selectIDs(ctx context.Context, query, tenantID string, ids []string) ([]string, error) {
	var out []string
	for _, chunk := range database.Chunk(ids, batchSize) {
		q, args, err := sqlx.In(query, tenantID, chunk)
		if err != nil {
			return nil, err
		}
		var found []string
		if err := r.DB.SelectContext(ctx, &found, r.DB.Rebind(q), args...); err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

func (r *PGRepository) ExistingItemIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	return r.selectIDs(ctx, `SELECT id FROM catalog_items WHERE tenant_id = ? AND id IN (?)`, tenantID, ids)
}

func (r *PGRepository) KnownVendorIDs(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	return r.selectIDs(ctx, `SELECT id FROM vendors WHERE tenant_id = ? AND id IN (?)`, tenantID, ids)
}

func (r *PGRepository) UpdateItemCategories(ctx context.Context, tenantID string, assignments []model.ItemCategory) error {
	if len(assignments) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		for _, a := range assignments {
			_, err := tx.ExecContext(ctx,
				`UPDATE catalog_items SET category_id = $3, category_name = $4 WHERE tenant_id = $1 AND id = $2`,
				tenantID, a.ItemID, a.CategoryID, a.CategoryName)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PGRepository) UpsertVendor(ctx context.Context, v *model.Vendor) error {
	query := `
		INSERT INTO vendors (tenant_id, id, name, status, updated_at)
		VALUES (:tenant_id, :id, :name, :status, :updated_at)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.NamedExecContext(ctx, query, v)
	return err
}

func (r *PGRepository) ActiveItemIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := r.DB.SelectContext(ctx, &ids, `SELECT id FROM catalog_items WHERE tenant_id = $1 AND is_deleted = FALSE`, tenantID)
	return ids, err
}

func (r *PGRepository) ActiveVariationIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := r.DB.SelectContext(ctx, &ids, `SELECT id FROM catalog_variations WHERE tenant_id = $1 AND is_deleted = FALSE`, tenantID)
	return ids, err
}

func zeroCounts(ctx context.Context, tx *sqlx.Tx, tenantID string, variationIDs []string, at time.Time) error {
	if len(variationIDs) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE inventory_counts SET quantity = 0, updated_at = ? WHERE tenant_id = ? AND variation_id IN (?)`, at, tenantID, variationIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(q), args...)
	return err
}

func (r *PGRepository) SoftDeleteItems(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, int64, error) {
	var items, variations int64
	for _, chunk := range database.Chunk(ids, batchSize) {
		err := database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
			q, args, err := sqlx.In(`
				UPDATE catalog_items SET is_deleted = TRUE, deleted_at = ?, updated_at = ?
				WHERE tenant_id = ? AND id IN (?) AND is_deleted = FALSE`, at, at, tenantID, chunk)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			items += n

			q, args, err = sqlx.In(`
				UPDATE catalog_variations SET is_deleted = TRUE, deleted_at = ?, updated_at = ?
				WHERE tenant_id = ? AND item_id IN (?) AND is_deleted = FALSE
				RETURNING id`, at, at, tenantID, chunk)
			if err != nil {
				return err
			}
			var deleted []string
			if err := tx.SelectContext(ctx, &deleted, tx.Rebind(q), args...); err != nil {
				return err
			}
			variations += int64(len(deleted))
			return zeroCounts(ctx, tx, tenantID, deleted, at)
		})
		if err != nil {
			return items, variations, err
		}
	}
	return items, variations, nil
}

func (r *PGRepository) SoftDeleteVariations(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error) {
	var total int64
	for _, chunk := range database.Chunk(ids, batchSize) {
		err := database.WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
			q, args, err := sqlx.In(`
				UPDATE catalog_variations SET is_deleted = TRUE, deleted_at = ?, updated_at = ?
				WHERE tenant_id = ? AND id IN (?) AND is_deleted = FALSE
				RETURNING id`, at, at, tenantID, chunk)
			if err != nil {
				return err
			}
			var deleted []string
			if err := tx.SelectContext(ctx, &deleted, tx.Rebind(q), args...); err != nil {
				return err
			}
			total += int64(len(deleted))
			return zeroCounts(ctx, tx, tenantID, deleted, at)
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *PGRepository) softDelete(ctx context.Context, table, tenantID string, ids []string, at time.Time) (int64, error) {
	var total int64
	for _, chunk := range database.Chunk(ids, batchSize) {
		q, args, err := sqlx.In(`UPDATE `+table+` SET is_deleted = TRUE, deleted_at = ?, updated_at = ?
			WHERE tenant_id = ? AND id IN (?) AND is_deleted = FALSE`, at, at, tenantID, chunk)
		if err != nil {
			return total, err
		}
		res, err := r.DB.ExecContext(ctx, r.DB.Rebind(q), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *PGRepository) SoftDeleteCategories(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error) {
	return r.softDelete(ctx, "catalog_categories", tenantID, ids, at)
}

func (r *PGRepository) SoftDeleteImages(ctx context.Context, tenantID string, ids []string, at time.Time) (int64, error) {
	return r.softDelete(ctx, "catalog_images", tenantID, ids, at)
}

func (r *PGRepository) GetDeltaCursor(ctx context.Context, tenantID string) (*time.Time, error) {
	var cursor sql.NullTime
	err := r.DB.GetContext(ctx, &cursor,
		`SELECT last_delta_cursor FROM sync_state WHERE tenant_id = $1 AND sync_kind = 'catalog'`, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !cursor.Valid {
		return nil, nil
	}
	return &cursor.Time, nil
}

func (r *PGRepository) SetDeltaCursor(ctx context.Context, tenantID string, cursor time.Time) error {
	query := `
		INSERT INTO sync_state (tenant_id, sync_kind, status, last_delta_cursor, updated_at)
		VALUES ($1, 'catalog', 'SUCCESS', $2, NOW())
		ON CONFLICT (tenant_id, sync_kind) DO UPDATE SET
			last_delta_cursor = EXCLUDED.last_delta_cursor,
			updated_at = NOW()
	`
	_, err := r.DB.ExecContext(ctx, query, tenantID, cursor)
	return err
}
