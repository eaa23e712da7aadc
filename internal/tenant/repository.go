package tenant

import (
	"context"

	"github.com/fekuna/omnipos-sync-service/internal/model"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	ListActive(ctx context.Context) ([]model.Tenant, error)
}
