// Package cli implements the syncctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fekuna/omnipos-sync-service/internal/catalog"
	"github.com/fekuna/omnipos-sync-service/internal/inventory"
	"github.com/fekuna/omnipos-sync-service/internal/retry"
	"github.com/fekuna/omnipos-sync-service/internal/syncqueue"
	"github.com/fekuna/omnipos-sync-service/internal/velocity"
	"github.com/spf13/cobra"
)

// Services are the engine components the commands drive.
type Services struct {
	Coordinator *syncqueue.Coordinator
	Catalog     catalog.UseCase
	Inventory   inventory.UseCase
	Velocity    velocity.UseCase
	Retry       retry.UseCase

	VelocityMaxPeriodDays int
	RetentionDays         int
	FailedRetentionDays   int
}

// Loader builds Services on demand so --help never touches the database.
// The returned func releases what the loader opened.
type Loader func(ctx context.Context) (*Services, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Tenant  string
	Compact bool

	load Loader
}

func NewRootCommand(load Loader) *cobra.Command {
	opts := &RootOptions{load: load}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the catalog, inventory and sales-velocity sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.Tenant, "tenant", "t", "", "tenant id")
	cmd.PersistentFlags().BoolVar(&opts.Compact, "compact", false, "print single-line JSON")

	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newCommittedCommand(opts))
	cmd.AddCommand(newCountsCommand(opts))
	cmd.AddCommand(newVelocityCommand(opts))
	cmd.AddCommand(newRetryCommand(opts))
	cmd.AddCommand(newRecoverCommand(opts))

	return cmd
}

// run loads services and hands them to fn; fn's result is printed as JSON.
func (o *RootOptions) run(cmd *cobra.Command, needTenant bool, fn func(ctx context.Context, svc *Services) (any, error)) error {
	if needTenant && o.Tenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, release, err := o.load(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer release()

	result, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result, !o.Compact)
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
