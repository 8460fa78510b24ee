// Package cli wires the command-line surface: import, export, list, get,
// delete, search, stats, and migration management over the selected storage
// backend.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"datakit/internal/backend"
	"datakit/internal/config"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// App carries the dependencies every command shares.
type App struct {
	Config   *config.Config
	Backends *backend.Backends
}

// NewRootCommand creates the datakit root command.
func NewRootCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datakit",
		Short: "Curate labeled datasets across embedded storage backends",
		Long: `datakit manages labeled dataset records (profiles, products, QA records)
in an embedded store. It validates imports against per-entity schemas,
exports to CSV, JSON, or XLSX, and selects the best available storage
backend at startup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewImportCommand(app))
	cmd.AddCommand(NewExportCommand(app))
	cmd.AddCommand(NewListCommand(app))
	cmd.AddCommand(NewGetCommand(app))
	cmd.AddCommand(NewDeleteCommand(app))
	cmd.AddCommand(NewSearchCommand(app))
	cmd.AddCommand(NewStatsCommand(app))
	cmd.AddCommand(NewMigrateCommand(app))

	return cmd
}

// storeFor resolves an entity kind argument to its open store.
func (a *App) storeFor(name string) (store.Store, *schema.EntityDef, error) {
	kind, err := resolveKind(name)
	if err != nil {
		return nil, nil, err
	}
	st, err := a.Backends.Store(kind)
	if err != nil {
		return nil, nil, err
	}
	return st, schema.MustGet(kind), nil
}

// resolveKind matches a kind name case-insensitively against the registry.
func resolveKind(name string) (schema.Kind, error) {
	for _, kind := range schema.Kinds() {
		if strings.EqualFold(name, string(kind)) {
			return kind, nil
		}
	}
	known := make([]string, 0, len(schema.Kinds()))
	for _, kind := range schema.Kinds() {
		known = append(known, string(kind))
	}
	return "", fmt.Errorf("unknown entity kind %q: must be one of %s", name, strings.Join(known, ", "))
}
