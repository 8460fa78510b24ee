// Package pipeline implements the streaming import and export paths. Import
// parses a source format into raw rows, validates every row independently
// against the entity definition, enriches the survivors, and writes them in
// transactional batches. Export pulls records (loaded or paged) and
// serializes them with a generated filename. Neither path returns a Go error
// for data problems: row failures land in the result, and a source-level
// failure is reported as a row-0 error.
package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"datakit/internal/logging"
	"datakit/internal/schema"
	"datakit/internal/store"
)

// maxHeaderScan is how many leading CSV rows are searched for the header.
var maxHeaderScan = 20

// ImportOptions tune one import run. Zero values take defaults.
type ImportOptions struct {
	// OnProgress receives phase transitions and periodic percent updates.
	OnProgress ProgressFunc

	// BatchSize is how many validated records go into one storage
	// transaction (default store.DefaultBatchSize).
	BatchSize int

	// ChunkSize is how many CSV rows are parsed before the parser pauses
	// to let validation and writing catch up (default 200).
	ChunkSize int

	// ValidateOnly runs parse and validation but never writes.
	ValidateOnly bool

	// ErrorPreview caps how many row errors the result carries in full
	// detail (default 50).
	ErrorPreview int
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.BatchSize < 1 {
		o.BatchSize = store.DefaultBatchSize
	}
	if o.ChunkSize < 1 {
		o.ChunkSize = 200
	}
	if o.ErrorPreview < 1 {
		o.ErrorPreview = 50
	}
	return o
}

// Importer runs imports into one entity kind's store.
type Importer struct {
	store store.Store
	def   *schema.EntityDef
	log   *slog.Logger
}

// NewImporter creates an importer bound to the store's entity kind.
func NewImporter(st store.Store) *Importer {
	return &Importer{
		store: st,
		def:   schema.MustGet(st.Kind()),
		log:   logging.WithFields("component", "import", "kind", st.Kind()),
	}
}

// chunk is a parsed slice of CSV data rows. firstRow is the 1-indexed data
// row number of rows[0].
type chunk struct {
	firstRow int
	rows     [][]string
}

// ImportCSV streams a CSV source through parse, validation, and batched
// writes. The parser and the validate/write stage run concurrently, with a
// bounded channel between them so a chunk is parsed while the previous one
// is being processed and peak memory stays at a few chunks. size is the
// source length in bytes when known (0 otherwise), used only for progress.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, size int64, opts ImportOptions) *ImportResult {
	opts = opts.withDefaults()
	prog := newProgress(opts.OnProgress)
	res := &ImportResult{Kind: im.def.Kind, ValidateOnly: opts.ValidateOnly}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	prog.emit(0)

	src := wrapSource(r, size)
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := findHeader(reader)
	if err != nil {
		return im.fatal(res, prog, err)
	}

	chunks := make(chan chunk, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		return parseChunks(gctx, reader, opts.ChunkSize, chunks)
	})

	b := im.newBatcher(opts, res, prog)
	g.Go(func() error {
		for c := range chunks {
			prog.transition(PhaseValidating)
			for i, row := range c.rows {
				if err := gctx.Err(); err != nil {
					return err
				}
				b.row(gctx, c.firstRow+i, rowMap(header, row))
			}
			prog.update(src.percent() * 95 / 100)
		}
		return b.flush(gctx)
	})

	if err := g.Wait(); err != nil {
		return im.fatal(res, prog, err)
	}

	im.finish(res, prog)
	return res
}

// parseChunks reads data rows and hands them over in fixed-size chunks,
// blocking when the consumer is behind. Empty rows are dropped without
// consuming a row number.
func parseChunks(ctx context.Context, reader *csv.Reader, chunkSize int, out chan<- chunk) error {
	rowNum := 1
	c := chunk{firstRow: rowNum, rows: make([][]string, 0, chunkSize)}

	send := func() error {
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
		c = chunk{firstRow: rowNum, rows: make([][]string, 0, chunkSize)}
		return nil
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse source: %w", err)
		}
		if isEmptyRow(row) {
			continue
		}
		c.rows = append(c.rows, row)
		rowNum++
		if len(c.rows) >= chunkSize {
			if err := send(); err != nil {
				return err
			}
		}
	}
	if len(c.rows) > 0 {
		return send()
	}
	return nil
}

// findHeader scans the leading rows for the header row, identified by the
// presence of the source column. Extra title or comment rows above the
// header are tolerated.
func findHeader(reader *csv.Reader) ([]string, error) {
	for i := 0; i < maxHeaderScan; i++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse source: %w", err)
		}
		for _, cell := range row {
			if strings.EqualFold(schema.CleanCell(cell), schema.Discriminant) {
				header := make([]string, len(row))
				for j, c := range row {
					header[j] = strings.ToLower(schema.CleanCell(c))
				}
				return header, nil
			}
		}
	}
	return nil, fmt.Errorf("header row not found: no %q column in the first %d rows", schema.Discriminant, maxHeaderScan)
}

// ImportJSON imports a JSON array of flat objects. The whole document is
// decoded up front, then each element runs through the same per-row
// validation path as CSV rows.
func (im *Importer) ImportJSON(ctx context.Context, data []byte, opts ImportOptions) *ImportResult {
	opts = opts.withDefaults()
	prog := newProgress(opts.OnProgress)
	res := &ImportResult{Kind: im.def.Kind, ValidateOnly: opts.ValidateOnly}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	prog.emit(0)

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return im.fatal(res, prog, fmt.Errorf("source must be a list of objects: %w", err))
	}

	rows := make([]map[string]string, len(raw))
	for i, obj := range raw {
		rows[i] = stringifyObject(obj)
	}

	return im.importRows(ctx, rows, opts, res, prog)
}

// ImportXLSX imports the named sheet of a spreadsheet, or the first sheet
// when sheetName is empty. The sheet's first matching row is the header and
// the rest flow through the shared per-row path.
func (im *Importer) ImportXLSX(ctx context.Context, data []byte, sheetName string, opts ImportOptions) *ImportResult {
	opts = opts.withDefaults()
	prog := newProgress(opts.OnProgress)
	res := &ImportResult{Kind: im.def.Kind, ValidateOnly: opts.ValidateOnly}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	prog.emit(0)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return im.fatal(res, prog, fmt.Errorf("open spreadsheet: %w", err))
	}
	defer f.Close()

	if sheetName == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return im.fatal(res, prog, fmt.Errorf("spreadsheet has no sheets"))
		}
		sheetName = sheets[0]
	}

	cells, err := f.GetRows(sheetName)
	if err != nil {
		return im.fatal(res, prog, fmt.Errorf("read sheet %q: %w", sheetName, err))
	}

	headerIdx := -1
	var header []string
	for i, row := range cells {
		if i >= maxHeaderScan {
			break
		}
		for _, cell := range row {
			if strings.EqualFold(schema.CleanCell(cell), schema.Discriminant) {
				header = make([]string, len(row))
				for j, c := range row {
					header[j] = strings.ToLower(schema.CleanCell(c))
				}
				headerIdx = i
				break
			}
		}
		if headerIdx >= 0 {
			break
		}
	}
	if headerIdx < 0 {
		return im.fatal(res, prog, fmt.Errorf("header row not found: no %q column in sheet %q", schema.Discriminant, sheetName))
	}

	var rows []map[string]string
	for _, row := range cells[headerIdx+1:] {
		if isEmptyRow(row) {
			continue
		}
		rows = append(rows, rowMap(header, row))
	}

	return im.importRows(ctx, rows, opts, res, prog)
}

// importRows is the shared whole-source path for formats parsed up front.
func (im *Importer) importRows(ctx context.Context, rows []map[string]string, opts ImportOptions, res *ImportResult, prog *progress) *ImportResult {
	b := im.newBatcher(opts, res, prog)
	prog.transition(PhaseValidating)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return im.fatal(res, prog, err)
		}
		b.row(ctx, i+1, row)
		if len(rows) > 0 {
			prog.update((i + 1) * 95 / len(rows))
		}
	}
	if err := b.flush(ctx); err != nil {
		return im.fatal(res, prog, err)
	}

	im.finish(res, prog)
	return res
}

func (im *Importer) fatal(res *ImportResult, prog *progress, err error) *ImportResult {
	res.addError(1, RowError{Row: 0, Message: err.Error()})
	prog.fail()
	im.log.Error("import failed", "error", err)
	return res
}

func (im *Importer) finish(res *ImportResult, prog *progress) {
	prog.finish()
	im.log.Info("import finished",
		"total", res.TotalRows,
		"succeeded", res.SuccessRows,
		"failed", res.ErrorRows,
		"validate_only", res.ValidateOnly,
	)
}

// batcher accumulates validated records and writes them in transactional
// batches. Row errors never stop the run; a failed batch write fails only
// the rows of that batch.
type batcher struct {
	im      *Importer
	opts    ImportOptions
	res     *ImportResult
	prog    *progress
	seen    map[string]int
	pending []schema.Record
	rowNums []int
}

func (im *Importer) newBatcher(opts ImportOptions, res *ImportResult, prog *progress) *batcher {
	return &batcher{im: im, opts: opts, res: res, prog: prog, seen: make(map[string]int)}
}

// row validates and enriches one raw row, queueing it for the next batch
// write or recording its failure.
func (b *batcher) row(ctx context.Context, rowNum int, raw map[string]string) {
	b.res.TotalRows++

	vr := b.im.def.ValidateRow(raw)
	if !vr.Valid {
		msgs := make([]string, len(vr.Errors))
		for i, e := range vr.Errors {
			msgs[i] = e.Error()
		}
		b.res.ErrorRows++
		b.res.addError(b.opts.ErrorPreview, RowError{
			Row:     rowNum,
			Message: strings.Join(msgs, "; "),
			Data:    raw,
		})
		return
	}

	rec := b.im.def.BuildRecord(raw)

	if rec.ID != "" {
		if prev, dup := b.seen[rec.ID]; dup {
			b.res.ErrorRows++
			b.res.addError(b.opts.ErrorPreview, RowError{
				Row:     rowNum,
				Message: fmt.Sprintf("duplicate id %q: already used by row %d", rec.ID, prev),
				Data:    raw,
			})
			return
		}
		b.seen[rec.ID] = rowNum

		if _, err := b.im.store.GetByID(ctx, rec.ID); err == nil {
			b.res.ErrorRows++
			b.res.addError(b.opts.ErrorPreview, RowError{
				Row:     rowNum,
				Message: fmt.Sprintf("id %q already exists", rec.ID),
				Data:    raw,
			})
			return
		}
	}

	if b.opts.ValidateOnly {
		b.res.SuccessRows++
		return
	}

	b.pending = append(b.pending, rec)
	b.rowNums = append(b.rowNums, rowNum)
	if len(b.pending) >= b.opts.BatchSize {
		b.write(ctx)
	}
}

// flush writes any remaining queued records.
func (b *batcher) flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.pending) > 0 {
		b.write(ctx)
	}
	return nil
}

// write commits the queued records in one transaction. On failure the whole
// batch rolls back and its rows are recorded as failed; earlier committed
// batches stay durable.
func (b *batcher) write(ctx context.Context) {
	b.prog.transition(PhaseWriting)

	batch := b.pending
	rows := b.rowNums
	b.pending = nil
	b.rowNums = nil

	if err := b.im.store.BatchInsert(ctx, batch, len(batch)); err != nil {
		b.res.ErrorRows += len(batch)
		b.res.addError(b.opts.ErrorPreview, RowError{
			Row:     rows[0],
			Message: fmt.Sprintf("rows %d-%d: batch write failed: %v", rows[0], rows[len(rows)-1], err),
		})
		b.res.TotalErrors += len(batch) - 1
		b.im.log.Warn("batch write failed", "rows", len(batch), "error", err)
		return
	}
	b.res.SuccessRows += len(batch)
}

// rowMap pairs header names with row cells. Cells past the header width are
// dropped; missing trailing cells read as empty.
func rowMap(header []string, row []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(row) {
			m[name] = row[i]
		} else {
			m[name] = ""
		}
	}
	return m
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// stringifyObject flattens one decoded JSON object into the string map the
// validator consumes. A nested "steps" object spreads into its step keys.
func stringifyObject(obj map[string]any) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "steps" {
			if steps, ok := v.(map[string]any); ok {
				for sk, sv := range steps {
					out[strings.ToLower(sk)] = stringifyValue(sv)
				}
				continue
			}
		}
		out[key] = stringifyValue(v)
	}
	return out
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringifyValue(e)
		}
		return schema.JoinList(parts)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
