package usecase

import (
	"context"
	"fmt"
	"slices"

	"github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-sync-service/internal/database"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"go.uber.org/zap"
)

// apply writes a snapshot in dependency order: categories, images, items,
// variations. Category assignment is recomputed last.
func (uc *catalogUseCase) apply(ctx context.Context, tenantID string, client remote.Client, snap *snapshot, stats *dto.SyncStats) error {
	now := uc.now()

	categories := make([]model.Category, 0, len(snap.categories))
	for _, id := range sortedKeys(snap.categories) {
		categories = append(categories, toCategory(tenantID, snap.categories[id], now))
	}
	if err := uc.repo.UpsertCategories(ctx, categories); err != nil {
		return fmt.Errorf("upsert categories: %w", err)
	}
	stats.Categories = len(categories)

	images := make([]model.Image, 0, len(snap.images))
	for _, id := range sortedKeys(snap.images) {
		images = append(images, toImage(tenantID, snap.images[id], now))
	}
	if err := uc.repo.UpsertImages(ctx, images); err != nil {
		return fmt.Errorf("upsert images: %w", err)
	}
	stats.Images = len(images)

	items := make([]model.CatalogItem, 0, len(snap.items))
	for _, id := range sortedKeys(snap.items) {
		items = append(items, toItem(tenantID, snap.items[id], now))
	}
	if err := uc.repo.UpsertItems(ctx, items); err != nil {
		return fmt.Errorf("upsert items: %w", err)
	}
	stats.Items = len(items)

	if err := uc.writeVariations(ctx, tenantID, client, snap, stats); err != nil {
		return err
	}
	return uc.recomputeCategories(ctx, tenantID, snap)
}

func (uc *catalogUseCase) writeVariations(ctx context.Context, tenantID string, client remote.Client, snap *snapshot, stats *dto.SyncStats) error {
	if len(snap.variations) == 0 {
		return nil
	}
	log := uc.logger.With(zap.String("tenant_id", tenantID))

	knownItems := make(map[string]bool, len(snap.items))
	for id := range snap.items {
		knownItems[id] = true
	}
	var outside, vendorIDs []string
	seenOutside := map[string]struct{}{}
	seenVendors := map[string]struct{}{}
	for _, obj := range snap.variations {
		data := obj.ItemVariationData
		if data == nil {
			continue
		}
		if data.ItemID != "" && !knownItems[data.ItemID] {
			if _, ok := seenOutside[data.ItemID]; !ok {
				seenOutside[data.ItemID] = struct{}{}
				outside = append(outside, data.ItemID)
			}
		}
		for _, info := range data.ItemVariationVendorInfos {
			id := info.ItemVariationVendorInfo.VendorID
			if id == "" {
				continue
			}
			if _, ok := seenVendors[id]; !ok {
				seenVendors[id] = struct{}{}
				vendorIDs = append(vendorIDs, id)
			}
		}
	}
	if len(outside) > 0 {
		existing, err := uc.repo.ExistingItemIDs(ctx, tenantID, outside)
		if err != nil {
			return fmt.Errorf("check parent items: %w", err)
		}
		for _, id := range existing {
			knownItems[id] = true
		}
	}

	slices.Sort(vendorIDs)
	vendors, err := uc.resolveVendors(ctx, tenantID, client, vendorIDs, stats)
	if err != nil {
		return err
	}

	now := uc.now()
	for _, id := range sortedKeys(snap.variations) {
		obj := snap.variations[id]
		if obj.ItemVariationData == nil || !knownItems[obj.ItemVariationData.ItemID] {
			itemID := ""
			if obj.ItemVariationData != nil {
				itemID = obj.ItemVariationData.ItemID
			}
			stats.VariationsSkipped++
			log.Warn("variation references unknown item, skipped",
				zap.String("variation_id", id),
				zap.String("item_id", itemID),
			)
			continue
		}

		v := toVariation(tenantID, obj, now, vendors)
		if err := uc.repo.UpsertVariation(ctx, v); err != nil {
			if database.IsForeignKeyViolation(err) {
				stats.VariationsSkipped++
				stats.Errors = append(stats.Errors, fmt.Sprintf("variation %s: %v", id, err))
				log.Warn("variation write hit missing reference, skipped", zap.String("variation_id", id), zap.Error(err))
				continue
			}
			return fmt.Errorf("upsert variation %s: %w", id, err)
		}
		stats.Variations++
	}
	return nil
}

// resolveVendors returns the vendor IDs that may be linked. Unknown vendors
// are fetched one by one and stored; a vendor that cannot be fetched is left
// out so its cost links are dropped instead of failing the variation.
func (uc *catalogUseCase) resolveVendors(ctx context.Context, tenantID string, client remote.Client, ids []string, stats *dto.SyncStats) (map[string]bool, error) {
	usable := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return usable, nil
	}
	known, err := uc.repo.KnownVendorIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("check vendors: %w", err)
	}
	for _, id := range known {
		usable[id] = true
	}

	now := uc.now()
	for _, id := range ids {
		if usable[id] {
			continue
		}
		vendor, err := client.RetrieveVendor(ctx, id)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("vendor %s: %v", id, err))
			uc.logger.Warn("vendor lookup failed, dropping cost links",
				zap.String("tenant_id", tenantID),
				zap.String("vendor_id", id),
				zap.Error(err),
			)
			continue
		}
		if err := uc.repo.UpsertVendor(ctx, toVendor(tenantID, *vendor, now)); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("vendor %s: %v", id, err))
			uc.logger.Warn("vendor write failed, dropping cost links",
				zap.String("tenant_id", tenantID),
				zap.String("vendor_id", id),
				zap.Error(err),
			)
			continue
		}
		usable[id] = true
		stats.VendorsFetched++
	}
	return usable, nil
}

// recomputeCategories assigns each synced item the first of its category
// candidates that exists locally.
func (uc *catalogUseCase) recomputeCategories(ctx context.Context, tenantID string, snap *snapshot) error {
	if len(snap.items) == 0 {
		return nil
	}
	names := make(map[string]string, len(snap.categories))
	for id, obj := range snap.categories {
		if obj.CategoryData != nil {
			names[id] = obj.CategoryData.Name
		}
	}
	var lookup []string
	pending := map[string]struct{}{}
	candidates := make(map[string][]string, len(snap.items))
	for id, obj := range snap.items {
		c := categoryCandidates(obj.ItemData)
		candidates[id] = c
		for _, cid := range c {
			if _, ok := names[cid]; ok {
				continue
			}
			if _, ok := pending[cid]; !ok {
				pending[cid] = struct{}{}
				lookup = append(lookup, cid)
			}
		}
	}
	if len(lookup) > 0 {
		stored, err := uc.repo.CategoryNames(ctx, tenantID, lookup)
		if err != nil {
			return fmt.Errorf("load category names: %w", err)
		}
		for id, name := range stored {
			names[id] = name
		}
	}

	assignments := make([]model.ItemCategory, 0, len(snap.items))
	for _, id := range sortedKeys(snap.items) {
		a := model.ItemCategory{ItemID: id}
		for _, cid := range candidates[id] {
			if name, ok := names[cid]; ok {
				a.CategoryID = strPtr(cid)
				a.CategoryName = &name
				break
			}
		}
		if a.CategoryID == nil && len(candidates[id]) > 0 {
			a.CategoryID = strPtr(candidates[id][0])
		}
		assignments = append(assignments, a)
	}
	if err := uc.repo.UpdateItemCategories(ctx, tenantID, assignments); err != nil {
		return fmt.Errorf("update item categories: %w", err)
	}
	return nil
}
