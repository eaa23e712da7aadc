package tenant

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-sync-service/internal/remote"
)

// TokenSource serves remote access tokens from the tenants table.
type TokenSource struct {
	repo Repository
}

func NewTokenSource(repo Repository) *TokenSource {
	return &TokenSource{repo: repo}
}

func (s *TokenSource) AccessToken(ctx context.Context, tenantID string) (string, error) {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if t == nil || !t.IsActive || t.AccessToken == "" {
		return "", fmt.Errorf("tenant %s: %w", tenantID, remote.ErrNoCredentials)
	}
	return t.AccessToken, nil
}
