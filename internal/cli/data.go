package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"datakit/internal/query"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	Page     int
	PageSize int
	SortBy   string
	Order    string
	Filters  []string
	Search   string
	JSON     bool
}

// NewListCommand creates the list command.
func NewListCommand(app *App) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List records with filtering, sorting, and pagination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, app, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 1, "1-indexed page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 25, "records per page")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "field to sort by")
	cmd.Flags().StringVar(&opts.Order, "order", "asc", "sort direction: asc or desc")
	cmd.Flags().StringArrayVar(&opts.Filters, "filter", nil, "field filter, key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Search, "search", "", "free-text search over searchable fields")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit JSON instead of a table")

	return cmd
}

func runList(cmd *cobra.Command, app *App, opts *ListOptions, kindName string) error {
	st, def, err := app.storeFor(kindName)
	if err != nil {
		return err
	}

	filters, err := parseFilters(opts.Filters)
	if err != nil {
		return err
	}

	result, err := st.GetPaginated(cmd.Context(), store.PageOptions{
		Page:      opts.Page,
		PageSize:  opts.PageSize,
		SortBy:    opts.SortBy,
		SortOrder: opts.Order,
		Filters:   filters,
		Search:    opts.Search,
	})
	if err != nil {
		return err
	}

	if opts.JSON {
		return writeJSON(cmd, result)
	}

	printTable(cmd, def, result.Items)
	fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total\n", result.Page, result.TotalPages, result.Total)
	return nil
}

// NewGetCommand creates the get command.
func NewGetCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Show one record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := app.storeFor(args[0])
			if err != nil {
				return err
			}
			rec, err := st.GetByID(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd, rec)
		},
	}
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete one record by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := app.storeFor(args[0])
			if err != nil {
				return err
			}
			found, err := st.Delete(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s %q not found", st.Kind(), args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", st.Kind(), args[1])
			return nil
		},
	}
	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(app *App) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <kind> <query>",
		Short: "Search records ranked by relevance",
		Long: `Search matches the query against each record's searchable fields and
ranks results by match count plus field diversity.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, def, err := app.storeFor(args[0])
			if err != nil {
				return err
			}

			matched, err := st.SearchText(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			ranked := query.RankSearch(matched, args[1])
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}

			if asJSON {
				return writeJSON(cmd, ranked)
			}

			records := make([]schema.Record, len(ranked))
			for i, sr := range ranked {
				records[i] = sr.Record
			}
			printTable(cmd, def, records)
			fmt.Fprintf(cmd.OutOrStdout(), "%d matches\n", len(ranked))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 25, "maximum results to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per entity kind and source",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tTOTAL\tHUMAN\tSYNTHETIC")

			for _, kind := range schema.Kinds() {
				st, err := app.Backends.Store(kind)
				if err != nil {
					return err
				}
				total, err := st.Count(cmd.Context(), nil)
				if err != nil {
					return err
				}
				human, err := st.Count(cmd.Context(), store.Filters{schema.Discriminant: schema.SourceHuman})
				if err != nil {
					return err
				}
				synthetic, err := st.Count(cmd.Context(), store.Filters{schema.Discriminant: schema.SourceSynthetic})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", kind, total, human, synthetic)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\n", app.Backends.Kind)
			if app.Backends.Warning != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "warning: %s\n", app.Backends.Warning)
			}
			return nil
		},
	}
	return cmd
}

// printTable renders records as a tab-aligned table over the entity's
// canonical columns.
func printTable(cmd *cobra.Command, def *schema.EntityDef, records []schema.Record) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)

	header := ""
	for i, col := range def.Columns {
		if i > 0 {
			header += "\t"
		}
		header += col
	}
	fmt.Fprintln(w, header)

	for _, rec := range records {
		flat := def.Flatten(rec)
		line := ""
		for i, col := range def.Columns {
			if i > 0 {
				line += "\t"
			}
			line += flat[col]
		}
		fmt.Fprintln(w, line)
	}
	w.Flush()
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
