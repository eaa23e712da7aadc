package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	"github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	"github.com/fekuna/omnipos-sync-service/internal/database"
	"github.com/fekuna/omnipos-sync-service/internal/model"
	"github.com/fekuna/omnipos-sync-service/internal/remote"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const vendorCostAttempts = 2

func validateVendorCost(input *dto.VendorCostInput) error {
	switch {
	case input == nil:
		return fmt.Errorf("%w: nil input", catalog.ErrInvalidInput)
	case input.TenantID == "":
		return fmt.Errorf("%w: tenant id is required", catalog.ErrInvalidInput)
	case input.VariationID == "":
		return fmt.Errorf("%w: variation id is required", catalog.ErrInvalidInput)
	case input.VendorID == "":
		return fmt.Errorf("%w: vendor id is required", catalog.ErrInvalidInput)
	case input.UnitCostAmount < 0:
		return fmt.Errorf("%w: unit cost must not be negative", catalog.ErrInvalidInput)
	case input.Currency == "":
		return fmt.Errorf("%w: currency is required", catalog.ErrInvalidInput)
	}
	return nil
}

// UpdateVariationVendorCost pushes a vendor cost to the remote variation and
// mirrors it locally. A version conflict is retried once against a freshly
// retrieved variation; any other remote rejection is returned as is.
func (uc *catalogUseCase) UpdateVariationVendorCost(ctx context.Context, input *dto.VendorCostInput) error {
	if err := validateVendorCost(input); err != nil {
		return err
	}
	client, err := uc.clients.ForTenant(ctx, input.TenantID)
	if err != nil {
		return err
	}
	log := uc.logger.With(
		zap.String("tenant_id", input.TenantID),
		zap.String("variation_id", input.VariationID),
		zap.String("vendor_id", input.VendorID),
	)

	for attempt := 1; ; attempt++ {
		err = uc.pushVendorCost(ctx, client, input)
		if err == nil {
			break
		}
		if attempt < vendorCostAttempts && remote.IsConflict(err) {
			log.Warn("vendor cost push conflicted, retrying with fresh variation", zap.Error(err))
			continue
		}
		return err
	}

	stats := &dto.SyncStats{}
	usable, err := uc.resolveVendors(ctx, input.TenantID, client, []string{input.VendorID}, stats)
	if err != nil {
		return err
	}
	if !usable[input.VendorID] {
		log.Warn("vendor unavailable locally, remote cost updated only", zap.Strings("errors", stats.Errors))
		return nil
	}

	amount := input.UnitCostAmount
	cost := &model.VariationVendorCost{
		TenantID:       input.TenantID,
		VariationID:    input.VariationID,
		VendorID:       input.VendorID,
		VendorCode:     strPtr(input.VendorCode),
		UnitCostAmount: &amount,
		Currency:       strPtr(strings.ToUpper(input.Currency)),
		UpdatedAt:      uc.now(),
	}
	if err := uc.repo.UpsertVendorCost(ctx, cost); err != nil {
		if database.IsForeignKeyViolation(err) {
			log.Warn("variation not synced locally, remote cost updated only", zap.Error(err))
			return nil
		}
		return fmt.Errorf("store vendor cost: %w", err)
	}
	log.Info("vendor cost updated", zap.Int64("unit_cost_amount", amount))
	return nil
}

func (uc *catalogUseCase) pushVendorCost(ctx context.Context, client remote.Client, input *dto.VendorCostInput) error {
	objects, err := client.BatchRetrieveCatalogObjects(ctx, []string{input.VariationID})
	if err != nil {
		return fmt.Errorf("retrieve variation: %w", err)
	}
	var variation *remote.CatalogObject
	for i := range objects {
		if objects[i].ID == input.VariationID && objects[i].ItemVariationData != nil {
			variation = &objects[i]
			break
		}
	}
	if variation == nil || variation.IsDeleted {
		return fmt.Errorf("%w: %s", catalog.ErrVariationNotFound, input.VariationID)
	}

	data := *variation.ItemVariationData
	info := remote.VendorInfoObject{
		Type: "ITEM_VARIATION_VENDOR_INFO",
		ItemVariationVendorInfo: remote.ItemVariationVendorInfo{
			VendorID:   input.VendorID,
			VendorCode: input.VendorCode,
			PriceMoney: &remote.Money{Amount: input.UnitCostAmount, Currency: strings.ToUpper(input.Currency)},
		},
	}
	infos := make([]remote.VendorInfoObject, 0, len(data.ItemVariationVendorInfos)+1)
	replaced := false
	for _, existing := range data.ItemVariationVendorInfos {
		if existing.ItemVariationVendorInfo.VendorID == input.VendorID {
			info.ID = existing.ID
			if info.ItemVariationVendorInfo.VendorCode == "" {
				info.ItemVariationVendorInfo.VendorCode = existing.ItemVariationVendorInfo.VendorCode
			}
			infos = append(infos, info)
			replaced = true
			continue
		}
		infos = append(infos, existing)
	}
	if !replaced {
		info.ID = "#vendor-info-" + input.VendorID
		infos = append(infos, info)
	}
	data.ItemVariationVendorInfos = infos

	updated := *variation
	updated.ItemVariationData = &data
	if _, err := client.BatchUpsertCatalogObjects(ctx, uuid.NewString(), []remote.CatalogObject{updated}); err != nil {
		return fmt.Errorf("upsert variation: %w", err)
	}
	return nil
}
