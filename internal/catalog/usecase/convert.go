package usecase

import (
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/jmoiron/sqlx/types"
)

func jsonList(ids []string) types.JSONText {
	if len(ids) == 0 {
		return types.JSONText("[]")
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return types.JSONText("[]")
	}
	return b
}

// jsonAttrs passes custom attribute values through untouched.
func jsonAttrs(values map[string]json.RawMessage) types.JSONText {
	if len(values) == 0 {
		return types.JSONText("{}")
	}
	b, err := json.Marshal(values)
	if err != nil {
		return types.JSONText("{}")
	}
	return b
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toCategory(tenantID string, obj remote.CatalogObject, now time.Time) model.Category {
	c := model.Category{
		TenantID:  tenantID,
		ID:        obj.ID,
		Version:   obj.Version,
		UpdatedAt: now,
	}
	if data := obj.CategoryData; data != nil {
		c.Name = data.Name
		if data.ParentCategory != nil {
			c.ParentID = strPtr(data.ParentCategory.ID)
		}
	}
	return c
}

func toImage(tenantID string, obj remote.CatalogObject, now time.Time) model.Image {
	img := model.Image{
		TenantID:  tenantID,
		ID:        obj.ID,
		Version:   obj.Version,
		UpdatedAt: now,
	}
	if data := obj.ImageData; data != nil {
		img.Name = data.Name
		img.URL = data.URL
		img.Caption = data.Caption
	}
	return img
}

func toItem(tenantID string, obj remote.CatalogObject, now time.Time) model.CatalogItem {
	item := model.CatalogItem{
		TenantID:              tenantID,
		ID:                    obj.ID,
		PresentAtAllLocations: obj.PresentAtAllLocations,
		PresentAtLocationIDs:  jsonList(obj.PresentAtLocationIDs),
		AbsentAtLocationIDs:   jsonList(obj.AbsentAtLocationIDs),
		CustomAttributes:      jsonAttrs(obj.CustomAttributeValues),
		ImageIDs:              jsonList(nil),
		Version:               obj.Version,
		RemoteUpdatedAt:       timePtr(obj.UpdatedAt),
		UpdatedAt:             now,
	}
	data := obj.ItemData
	if data == nil {
		return item
	}
	item.Name = data.Name
	item.Description = strPtr(data.Description)
	item.ProductType = data.ProductType
	item.IsArchived = data.IsArchived
	item.Visibility = data.Visibility
	item.ImageIDs = jsonList(data.ImageIDs)
	if data.ReportingCategory != nil {
		item.ReportingCategoryID = strPtr(data.ReportingCategory.ID)
	}
	if seo := data.EcomSEOData; seo != nil {
		item.SEOTitle = strPtr(seo.PageTitle)
		item.SEODescription = strPtr(seo.PageDescription)
		item.SEOPermalink = strPtr(seo.Permalink)
	}
	return item
}

// toVariation converts a variation, keeping only vendor cost links whose
// vendor is in usableVendors.
func toVariation(tenantID string, obj remote.CatalogObject, now time.Time, usableVendors map[string]bool) *model.CatalogVariation {
	data := obj.ItemVariationData
	v := &model.CatalogVariation{
		TenantID:                tenantID,
		ID:                      obj.ID,
		ItemID:                  data.ItemID,
		Name:                    data.Name,
		SKU:                     strPtr(data.SKU),
		UPC:                     strPtr(data.UPC),
		Ordinal:                 data.Ordinal,
		PricingType:             data.PricingType,
		InventoryAlertType:      strPtr(data.InventoryAlertType),
		InventoryAlertThreshold: data.InventoryAlertThreshold,
		Sellable:                data.Sellable == nil || *data.Sellable,
		Stockable:               data.Stockable == nil || *data.Stockable,
		TrackInventory:          data.TrackInventory != nil && *data.TrackInventory,
		PresentAtAllLocations:   obj.PresentAtAllLocations,
		PresentAtLocationIDs:    jsonList(obj.PresentAtLocationIDs),
		CustomAttributes:        jsonAttrs(obj.CustomAttributeValues),
		Version:                 obj.Version,
		RemoteUpdatedAt:         timePtr(obj.UpdatedAt),
		UpdatedAt:               now,
	}
	if data.PriceMoney != nil {
		amount := data.PriceMoney.Amount
		v.PriceAmount = &amount
		v.PriceCurrency = strPtr(data.PriceMoney.Currency)
	}
	for _, info := range data.ItemVariationVendorInfos {
		vi := info.ItemVariationVendorInfo
		if vi.VendorID == "" || !usableVendors[vi.VendorID] {
			continue
		}
		cost := model.VariationVendorCost{
			TenantID:    tenantID,
			VariationID: obj.ID,
			VendorID:    vi.VendorID,
			VendorCode:  strPtr(vi.VendorCode),
			UpdatedAt:   now,
		}
		if vi.PriceMoney != nil {
			amount := vi.PriceMoney.Amount
			cost.UnitCostAmount = &amount
			cost.Currency = strPtr(vi.PriceMoney.Currency)
		}
		v.VendorCosts = append(v.VendorCosts, cost)
	}
	return v
}

func toVendor(tenantID string, v remote.Vendor, now time.Time) *model.Vendor {
	return &model.Vendor{
		TenantID:  tenantID,
		ID:        v.ID,
		Name:      v.Name,
		Status:    v.Status,
		UpdatedAt: now,
	}
}

// categoryCandidates lists an item's category sources in priority order:
// the categories list, the deprecated category_id, the reporting category.
func categoryCandidates(data *remote.ItemData) []string {
	if data == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	push := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(data.Categories) > 0 {
		push(data.Categories[0].ID)
	}
	push(data.CategoryID)
	if data.ReportingCategory != nil {
		push(data.ReportingCategory.ID)
	}
	return out
}
