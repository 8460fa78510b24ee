package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"datakit/internal/store/sqlite"
)

// NewMigrateCommand creates the migrate command group. Migrations only
// apply to the SQL backend; the object store and memory backends have no
// versioned schema.
func NewMigrateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL backend's schema migrations",
	}

	cmd.AddCommand(newMigrateUpCommand(app))
	cmd.AddCommand(newMigrateResetCommand(app))
	return cmd
}

func newMigrateUpCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations and show the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(cmd.Context(), app.Config.Storage.SQLitePath())
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := sqlite.AppliedMigrations(cmd.Context(), db.Handle())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, m := range applied {
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newMigrateResetCommand(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and re-run every migration",
		Long:  `Reset destroys all stored records. It refuses to run without --force.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("reset destroys all data; re-run with --force to confirm")
			}

			db, err := sqlite.Open(cmd.Context(), app.Config.Storage.SQLitePath())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := sqlite.Reset(cmd.Context(), db.Handle()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema reset, all migrations reapplied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm the destructive reset")
	return cmd
}
