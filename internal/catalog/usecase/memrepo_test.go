package usecase

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
)

var fkViolation = &pgconn.PgError{Code: "23503"}

// memRepo is a single-tenant catalog store with the same reference checks
// the schema enforces.
type memRepo struct {
	mu         sync.Mutex
	categories map[string]model.Category
	images     map[string]model.Image
	items      map[string]model.CatalogItem
	variations map[string]model.CatalogVariation
	vendors    map[string]model.Vendor
	costs      map[string]model.VariationVendorCost
	cursor     *time.Time
	cursorErr  error
}

func newMemRepo() *memRepo {
	return &memRepo{
		categories: map[string]model.Category{},
		images:     map[string]model.Image{},
		items:      map[string]model.CatalogItem{},
		variations: map[string]model.CatalogVariation{},
		vendors:    map[string]model.Vendor{},
		costs:      map[string]model.VariationVendorCost{},
	}
}

func costKey(variationID, vendorID string) string { return variationID + "|" + vendorID }

func (m *memRepo) UpsertCategories(_ context.Context, categories []model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range categories {
		c.IsDeleted, c.DeletedAt = false, nil
		m.categories[c.ID] = c
	}
	return nil
}

func (m *memRepo) UpsertImages(_ context.Context, images []model.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range images {
		img.IsDeleted, img.DeletedAt = false, nil
		m.images[img.ID] = img
	}
	return nil
}

func (m *memRepo) CategoryNames(_ context.Context, _ string, ids []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if c, ok := m.categories[id]; ok && !c.IsDeleted {
			out[id] = c.Name
		}
	}
	return out, nil
}

func (m *memRepo) UpsertItems(_ context.Context, items []model.CatalogItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if existing, ok := m.items[item.ID]; ok {
			item.CategoryID, item.CategoryName = existing.CategoryID, existing.CategoryName
		}
		item.IsDeleted, item.DeletedAt = false, nil
		m.items[item.ID] = item
	}
	return nil
}

func (m *memRepo) UpsertVariation(_ context.Context, v *model.CatalogVariation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[v.ItemID]; !ok {
		return fkViolation
	}
	for _, c := range v.VendorCosts {
		if _, ok := m.vendors[c.VendorID]; !ok {
			return fkViolation
		}
	}
	for k, c := range m.costs {
		if c.VariationID == v.ID {
			delete(m.costs, k)
		}
	}
	for _, c := range v.VendorCosts {
		m.costs[costKey(c.VariationID, c.VendorID)] = c
	}
	stored := *v
	stored.VendorCosts = nil
	stored.IsDeleted, stored.DeletedAt = false, nil
	m.variations[v.ID] = stored
	return nil
}

func (m *memRepo) ExistingItemIDs(_ context.Context, _ string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range ids {
		if _, ok := m.items[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateItemCategories(_ context.Context, _ string, assignments []model.ItemCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range assignments {
		item, ok := m.items[a.ItemID]
		if !ok {
			continue
		}
		item.CategoryID, item.CategoryName = a.CategoryID, a.CategoryName
		m.items[a.ItemID] = item
	}
	return nil
}

func (m *memRepo) KnownVendorIDs(_ context.Context, _ string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range ids {
		if _, ok := m.vendors[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memRepo) UpsertVendor(_ context.Context, v *model.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendors[v.ID] = *v
	return nil
}

func (m *memRepo) UpsertVendorCost(_ context.Context, cost *model.VariationVendorCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.variations[cost.VariationID]; !ok {
		return fkViolation
	}
	if _, ok := m.vendors[cost.VendorID]; !ok {
		return fkViolation
	}
	m.costs[costKey(cost.VariationID, cost.VendorID)] = *cost
	return nil
}

func (m *memRepo) ActiveItemIDs(context.Context, string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range slices.Sorted(maps.Keys(m.items)) {
		if !m.items[id].IsDeleted {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memRepo) ActiveVariationIDs(context.Context, string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range slices.Sorted(maps.Keys(m.variations)) {
		if !m.variations[id].IsDeleted {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memRepo) SoftDeleteItems(_ context.Context, _ string, ids []string, at time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items, variations int64
	for _, id := range ids {
		item, ok := m.items[id]
		if !ok || item.IsDeleted {
			continue
		}
		item.IsDeleted, item.DeletedAt = true, &at
		m.items[id] = item
		items++
		for vid, v := range m.variations {
			if v.ItemID == id && !v.IsDeleted {
				v.IsDeleted, v.DeletedAt = true, &at
				m.variations[vid] = v
				variations++
			}
		}
	}
	return items, variations, nil
}

func (m *memRepo) SoftDeleteVariations(_ context.Context, _ string, ids []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		v, ok := m.variations[id]
		if !ok || v.IsDeleted {
			continue
		}
		v.IsDeleted, v.DeletedAt = true, &at
		m.variations[id] = v
		n++
	}
	return n, nil
}

func (m *memRepo) SoftDeleteCategories(_ context.Context, _ string, ids []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if c, ok := m.categories[id]; ok && !c.IsDeleted {
			c.IsDeleted, c.DeletedAt = true, &at
			m.categories[id] = c
			n++
		}
	}
	return n, nil
}

func (m *memRepo) SoftDeleteImages(_ context.Context, _ string, ids []string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if img, ok := m.images[id]; ok && !img.IsDeleted {
			img.IsDeleted, img.DeletedAt = true, &at
			m.images[id] = img
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetDeltaCursor(context.Context, string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursorErr != nil {
		return nil, m.cursorErr
	}
	if m.cursor == nil {
		return nil, nil
	}
	c := *m.cursor
	return &c, nil
}

func (m *memRepo) SetDeltaCursor(_ context.Context, _ string, cursor time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = &cursor
	return nil
}

func (m *memRepo) activeItems() int {
	ids, _ := m.ActiveItemIDs(context.Background(), "")
	return len(ids)
}
