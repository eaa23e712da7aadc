package cli

import (
	"context"
	"fmt"

	catalogdto "github.com/fekuna/omnipos-sync-service/internal/catalog/dto"
	inventorydto "github.com/fekuna/omnipos-sync-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	velocitydto "github.com/fekuna/omnipos-sync-service/internal/velocity/dto"
	"github.com/spf13/cobra"
)

func newCatalogCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog synchronization",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "full",
		Short: "Run a full catalog sync with deletion detection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				return syncqueue.ExecuteWithQueue(ctx, svc.Coordinator, syncqueue.KindCatalog, opts.Tenant,
					func(ctx context.Context) (*catalogdto.SyncStats, error) {
						return svc.Catalog.SyncCatalog(ctx, opts.Tenant)
					})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delta",
		Short: "Run a delta catalog sync, falling back to full when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				return syncqueue.ExecuteWithQueue(ctx, svc.Coordinator, syncqueue.KindCatalog, opts.Tenant,
					func(ctx context.Context) (*catalogdto.SyncStats, error) {
						return svc.Catalog.DeltaSyncCatalog(ctx, opts.Tenant)
					})
			})
		},
	})

	cmd.AddCommand(newVendorCostCommand(opts))
	return cmd
}

func newVendorCostCommand(opts *RootOptions) *cobra.Command {
	input := &catalogdto.VendorCostInput{}

	cmd := &cobra.Command{
		Use:     "vendor-cost",
		Short:   "Push a variation's vendor unit cost to the remote catalog",
		Example: `  syncctl catalog vendor-cost -t T1 --variation VAR1 --vendor V1 --amount 1250 --currency USD`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				input.TenantID = opts.Tenant
				if err := svc.Catalog.UpdateVariationVendorCost(ctx, input); err != nil {
					return nil, err
				}
				return map[string]any{"updated": true, "variationId": input.VariationID}, nil
			})
		},
	}

	cmd.Flags().StringVar(&input.VariationID, "variation", "", "variation id")
	cmd.Flags().StringVar(&input.VendorID, "vendor", "", "vendor id")
	cmd.Flags().StringVar(&input.VendorCode, "code", "", "vendor product code")
	cmd.Flags().Int64Var(&input.UnitCostAmount, "amount", 0, "unit cost in minor units")
	cmd.Flags().StringVar(&input.Currency, "currency", "", "ISO 4217 currency code")
	_ = cmd.MarkFlagRequired("variation")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func newCommittedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "committed",
		Short: "Rebuild committed inventory from open invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				return syncqueue.ExecuteWithQueue(ctx, svc.Coordinator, syncqueue.KindCommittedInventory, opts.Tenant,
					func(ctx context.Context) (*inventorydto.CommittedResult, error) {
						return svc.Inventory.SyncCommittedInventory(ctx, opts.Tenant)
					})
			})
		},
	}
}

func newCountsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Sync IN_STOCK inventory counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				return syncqueue.ExecuteWithQueue(ctx, svc.Coordinator, syncqueue.KindInventory, opts.Tenant,
					func(ctx context.Context) (*inventorydto.CountsResult, error) {
						return svc.Inventory.SyncInventoryCounts(ctx, opts.Tenant)
					})
			})
		},
	}
}

func newVelocityCommand(opts *RootOptions) *cobra.Command {
	var maxDays int

	cmd := &cobra.Command{
		Use:   "velocity",
		Short: "Recompute sales velocity for every period up to --max-days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(ctx context.Context, svc *Services) (any, error) {
				days := maxDays
				if !cmd.Flags().Changed("max-days") {
					days = svc.VelocityMaxPeriodDays
				}
				if days < 0 {
					return nil, fmt.Errorf("--max-days must not be negative")
				}
				return syncqueue.ExecuteWithQueue(ctx, svc.Coordinator, syncqueue.KindSalesVelocity, opts.Tenant,
					func(ctx context.Context) (*velocitydto.SyncResult, error) {
						return svc.Velocity.SyncSalesVelocityAllPeriods(ctx, opts.Tenant, days)
					})
			})
		},
	}

	cmd.Flags().IntVar(&maxDays, "max-days", 365, "longest period to recompute, in days")
	return cmd
}

func newRecoverCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Mark stale RUNNING syncs as INTERRUPTED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, false, func(ctx context.Context, svc *Services) (any, error) {
				return svc.Coordinator.Recover(ctx)
			})
		},
	}
}
