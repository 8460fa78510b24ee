package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"datakit/internal/pipeline"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	Kind         string
	Format       string
	Sheet        string
	ValidateOnly bool
	BatchSize    int
	ChunkSize    int
	Progress     bool
}

// NewImportCommand creates the import command.
func NewImportCommand(app *App) *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a CSV, JSON, or XLSX file",
		Long: `Import validates every row against the entity schema and writes the
survivors in transactional batches. Row failures never abort the run;
they are collected and reported at the end. Use --validate-only for a
dry run that writes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, app, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "", "entity kind to import into (required)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "source format: csv, json, or xlsx (default: by file extension)")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "sheet name for xlsx sources (default: first sheet)")
	cmd.Flags().BoolVar(&opts.ValidateOnly, "validate-only", false, "validate without writing")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "records per storage transaction")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "CSV rows parsed per chunk")
	cmd.Flags().BoolVar(&opts.Progress, "progress", false, "print progress to stderr")
	cmd.MarkFlagRequired("kind")

	return cmd
}

func runImport(cmd *cobra.Command, app *App, opts *ImportOptions, path string) error {
	st, _, err := app.storeFor(opts.Kind)
	if err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	if info.Size() > app.Config.Import.MaxFileSize {
		return fmt.Errorf("source is %d bytes, over the %d byte limit", info.Size(), app.Config.Import.MaxFileSize)
	}

	pipeOpts := pipeline.ImportOptions{
		BatchSize:    firstPositive(opts.BatchSize, app.Config.Import.BatchSize),
		ChunkSize:    firstPositive(opts.ChunkSize, app.Config.Import.ChunkSize),
		ValidateOnly: opts.ValidateOnly,
		ErrorPreview: app.Config.Import.ErrorPreview,
	}
	if opts.Progress {
		pipeOpts.OnProgress = func(phase pipeline.Phase, percent int) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d%%\n", phase, percent)
		}
	}

	im := pipeline.NewImporter(st)

	var res *pipeline.ImportResult
	switch format {
	case "csv":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer f.Close()
		res = im.ImportCSV(cmd.Context(), f, info.Size(), pipeOpts)
	case "json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		res = im.ImportJSON(cmd.Context(), data, pipeOpts)
	case "xlsx":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		res = im.ImportXLSX(cmd.Context(), data, opts.Sheet, pipeOpts)
	default:
		return fmt.Errorf("unsupported format %q: must be csv, json, or xlsx", format)
	}

	printImportResult(cmd, res)
	if !res.Success() {
		return fmt.Errorf("%d of %d rows failed", res.ErrorRows, res.TotalRows)
	}
	return nil
}

func printImportResult(cmd *cobra.Command, res *pipeline.ImportResult) {
	out := cmd.OutOrStdout()
	verb := "imported"
	if res.ValidateOnly {
		verb = "validated"
	}
	fmt.Fprintf(out, "%s %d/%d rows into %s (%d failed) in %s\n",
		verb, res.SuccessRows, res.TotalRows, res.Kind, res.ErrorRows, res.Duration.Round(1e6))

	for _, e := range res.Errors {
		if e.Row == 0 {
			fmt.Fprintf(out, "  source: %s\n", e.Message)
			continue
		}
		fmt.Fprintf(out, "  row %d: %s\n", e.Row, e.Message)
	}
	if res.TotalErrors > len(res.Errors) {
		fmt.Fprintf(out, "  ... and %d more errors\n", res.TotalErrors-len(res.Errors))
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
