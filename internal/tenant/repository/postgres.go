package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := r.DB.GetContext(ctx, &t, `SELECT * FROM tenants WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGRepository) ListActive(ctx context.Context) ([]model.Tenant, error) {
	var tenants []model.Tenant
	err := r.DB.SelectContext(ctx, &tenants, `SELECT * FROM tenants WHERE is_active = TRUE AND access_token <> '' ORDER BY id`)
	return tenants, err
}
