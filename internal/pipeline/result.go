package pipeline

import (
	"time"

	"datakit/internal/schema"
)

// RowError records one failed row: its 1-indexed position among the data
// rows, what went wrong, and the offending raw values. Row 0 marks a
// parse-level failure of the whole source rather than a single row.
type RowError struct {
	Row     int               `json:"row"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// ImportResult is the outcome of one import run. Errors holds at most the
// configured preview count in full detail; TotalErrors is always exact.
type ImportResult struct {
	Kind         schema.Kind   `json:"kind"`
	TotalRows    int           `json:"totalRows"`
	SuccessRows  int           `json:"successRows"`
	ErrorRows    int           `json:"errorRows"`
	Errors       []RowError    `json:"errors,omitempty"`
	TotalErrors  int           `json:"totalErrors"`
	ValidateOnly bool          `json:"validateOnly,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Success reports whether the run completed without a single row error.
func (r *ImportResult) Success() bool {
	return r.TotalErrors == 0
}

// addError records a row error, keeping full detail only up to the preview
// cap. The counts stay exact past the cap.
func (r *ImportResult) addError(previewCap int, e RowError) {
	r.TotalErrors++
	if len(r.Errors) < previewCap {
		r.Errors = append(r.Errors, e)
	}
}

// ExportResult is the outcome of one export run: a self-contained payload
// and a generated filename.
type ExportResult struct {
	Payload  []byte
	Filename string
	Records  int
}
