package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"datakit/internal/logging"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// Pager fetches one 1-indexed page of records for a streaming export.
type Pager func(ctx context.Context, page, pageSize int) (*store.PaginatedResult, error)

// Source is the data feeding an export: either already-loaded records or a
// paging callback for large datasets. Records wins when both are set.
type Source struct {
	Records []schema.Record
	Pager   Pager
}

// ExportOptions tune one export run.
type ExportOptions struct {
	// OnProgress receives phase transitions and periodic percent updates.
	OnProgress ProgressFunc

	// Filename overrides the generated "{kind}_{timestamp}.{ext}" name.
	Filename string

	// SheetName names the sheet for spreadsheet export (default: the
	// entity's label).
	SheetName string

	// PageSize is how many records a Pager source fetches per page
	// (default 500).
	PageSize int
}

// Exporter serializes records of one entity kind.
type Exporter struct {
	def *schema.EntityDef
	log *slog.Logger
}

// NewExporter creates an exporter for one entity kind.
func NewExporter(kind schema.Kind) *Exporter {
	return &Exporter{
		def: schema.MustGet(kind),
		log: logging.WithFields("component", "export", "kind", kind),
	}
}

// CSV serializes the source to comma-separated text. A zero-record source
// yields a header-only payload with the canonical column names, never an
// error.
func (ex *Exporter) CSV(ctx context.Context, src Source, opts ExportOptions) (*ExportResult, error) {
	prog := newProgress(opts.OnProgress)
	records, err := ex.collect(ctx, src, opts, prog)
	if err != nil {
		prog.fail()
		return nil, err
	}
	prog.transition(PhaseWriting)

	columns := ex.def.ExportColumns(records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		prog.fail()
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		flat := ex.def.Flatten(rec)
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = flat[col]
		}
		if err := w.Write(row); err != nil {
			prog.fail()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
		prog.update(90 + (i+1)*9/len(records))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		prog.fail()
		return nil, fmt.Errorf("flush: %w", err)
	}

	return ex.done(prog, buf.Bytes(), opts.Filename, "csv", len(records)), nil
}

// JSON serializes the source as a list of flat objects, the same shape the
// JSON import path accepts.
func (ex *Exporter) JSON(ctx context.Context, src Source, opts ExportOptions) (*ExportResult, error) {
	prog := newProgress(opts.OnProgress)
	records, err := ex.collect(ctx, src, opts, prog)
	if err != nil {
		prog.fail()
		return nil, err
	}
	prog.transition(PhaseWriting)

	flat := make([]map[string]string, len(records))
	for i, rec := range records {
		flat[i] = ex.def.Flatten(rec)
		prog.update(90 + (i+1)*9/len(records))
	}

	payload, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		prog.fail()
		return nil, fmt.Errorf("encode: %w", err)
	}

	return ex.done(prog, payload, opts.Filename, "json", len(records)), nil
}

// XLSX serializes the source to a spreadsheet. Zero records produce a
// well-formed sheet holding only the header row.
func (ex *Exporter) XLSX(ctx context.Context, src Source, opts ExportOptions) (*ExportResult, error) {
	prog := newProgress(opts.OnProgress)
	records, err := ex.collect(ctx, src, opts, prog)
	if err != nil {
		prog.fail()
		return nil, err
	}
	prog.transition(PhaseWriting)

	sheet := opts.SheetName
	if sheet == "" {
		sheet = ex.def.Label
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		prog.fail()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	columns := ex.def.ExportColumns(records)
	headerCells := make([]any, len(columns))
	for i, col := range columns {
		headerCells[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &headerCells); err != nil {
		prog.fail()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		flat := ex.def.Flatten(rec)
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = flat[col]
		}
		anchor, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			prog.fail()
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(sheet, anchor, &cells); err != nil {
			prog.fail()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
		prog.update(90 + (i+1)*9/len(records))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		prog.fail()
		return nil, fmt.Errorf("encode: %w", err)
	}

	return ex.done(prog, buf.Bytes(), opts.Filename, "xlsx", len(records)), nil
}

// collect resolves the source into a record slice. Pager sources are pulled
// page by page with progress mapped into the 0-90 range; serialization owns
// the rest.
func (ex *Exporter) collect(ctx context.Context, src Source, opts ExportOptions, prog *progress) ([]schema.Record, error) {
	prog.emit(0)

	if src.Records != nil || src.Pager == nil {
		prog.update(90)
		return src.Records, nil
	}

	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 500
	}

	var out []schema.Record
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := src.Pager(ctx, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		out = append(out, result.Items...)
		if result.Total > 0 {
			prog.update(len(out) * 90 / result.Total)
		}
		if len(result.Items) < pageSize || page >= result.TotalPages {
			break
		}
	}
	prog.update(90)
	return out, nil
}

func (ex *Exporter) done(prog *progress, payload []byte, filename, ext string, count int) *ExportResult {
	if filename == "" {
		filename = GenerateFilename(ex.def.Kind, ext, time.Now())
	}
	prog.finish()
	ex.log.Info("export finished", "records", count, "filename", filename, "bytes", len(payload))
	return &ExportResult{Payload: payload, Filename: filename, Records: count}
}

// GenerateFilename builds the "{kind}_{YYYYMMDD}_{HHmmss}.{ext}" export
// filename.
func GenerateFilename(kind schema.Kind, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", kind, now.Format("20060102_150405"), ext)
}
