package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapRepo struct {
	tenants map[string]model.Tenant
	err     error
}

func (m mapRepo) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m mapRepo) ListActive(context.Context) ([]model.Tenant, error) {
	var out []model.Tenant
	for _, t := range m.tenants {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestTokenSource(t *testing.T) {
	src := NewTokenSource(mapRepo{tenants: map[string]model.Tenant{
		"active":   {ID: "active", AccessToken: "tok", IsActive: true},
		"disabled": {ID: "disabled", AccessToken: "tok", IsActive: false},
		"empty":    {ID: "empty", IsActive: true},
	}})
	ctx := context.Background()

	tok, err := src.AccessToken(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	for _, id := range []string{"disabled", "empty", "missing"} {
		_, err := src.AccessToken(ctx, id)
		assert.ErrorIs(t, err, remote.ErrNoCredentials, id)
	}
}

func TestTokenSourceWrapsRepositoryErrors(t *testing.T) {
	src := NewTokenSource(mapRepo{err: errors.New("db down")})
	_, err := src.AccessToken(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, remote.ErrNoCredentials)
}
