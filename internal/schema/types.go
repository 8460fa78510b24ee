// Package schema defines the entity kinds managed by the dataset engine and
// the validation rules applied to every imported row.
//
// Each entity kind is a closed tagged union: a two-valued discriminant field
// ("source") selects which optional fields are legal for a record. Validation
// dispatches on the discriminant, so there is no inheritance hierarchy —
// just one field-spec table per kind with per-variant legality.
package schema

import (
	"strings"
	"time"
)

// Kind identifies one of the managed entity kinds.
type Kind string

const (
	KindProfile Kind = "profile"
	KindProduct Kind = "product"
	KindQA      Kind = "qa"
)

// Discriminant is the field whose value selects the legal variant field set.
const Discriminant = "source"

// SourceHuman and SourceSynthetic are the two discriminant values.
const (
	SourceHuman     = "human"
	SourceSynthetic = "synthetic"
)

// FieldType represents the expected data type for a field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldList
)

// FieldSpec defines validation rules for a single field.
type FieldSpec struct {
	Name       string              // Field name (also the tabular column header)
	Type       FieldType           // Expected data type
	Required   bool                // Field must be present and non-empty
	EnumValues []string            // Valid values for FieldEnum type
	Sources    []string            // Discriminant values this field is legal for (empty = all)
	Searchable bool                // Included in free-text search concatenation
	Indexed    bool                // Backends keep a secondary index / real column for this field
	Normalizer func(string) string // Optional transformation applied before validation
}

// Record is a single stored entity. Fields holds the variant fields validated
// against the kind's definition; values are strings, or []string for
// FieldList fields. Steps is non-nil only for QA records.
type Record struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Fields    map[string]any `json:"fields"`
	Steps     *StepList      `json:"steps,omitempty"`
}

// Source returns the record's discriminant value.
func (r Record) Source() string {
	return r.String(Discriminant)
}

// String returns the named field as a string, or "" if absent or non-string.
func (r Record) String(field string) string {
	if v, ok := r.Fields[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// StringList returns the named field as a string slice. Scalar strings are
// wrapped in a single-element slice.
func (r Record) StringList(field string) []string {
	switch v := r.Fields[field].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// Clone returns a deep copy of the record. Backends hand out clones so
// callers can never mutate stored state in place.
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		if list, ok := v.([]string); ok {
			out.Fields[k] = append([]string(nil), list...)
			continue
		}
		out.Fields[k] = v
	}
	if r.Steps != nil {
		out.Steps = r.Steps.Clone()
	}
	return out
}

// ListSeparator joins FieldList values in tabular formats.
const ListSeparator = ";"

// JoinList renders a list field for tabular output.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// SplitList parses a tabular list cell into its elements, dropping empties.
func SplitList(cell string) []string {
	if cell == "" {
		return nil
	}
	parts := strings.Split(cell, ListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CleanCell removes common tabular-source artifacts from a cell value:
// surrounding whitespace, Excel formula prefixes (="..."), and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	case FieldList:
		return "list"
	default:
		return "value"
	}
}
