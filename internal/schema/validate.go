package schema

// validate.go provides row-level validation for imported data.
//
// Validation happens at two levels:
//  1. Discriminant validation: the "source" value must be legal, because it
//     decides which optional fields the row may carry.
//  2. Field validation: each value is checked against its FieldSpec (type,
//     format, enum membership, variant legality).
//
// Errors are field-attributed (field name + human-readable reason) so import
// callers can report exactly what is wrong with each row.

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the result of validating a row.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

func (r *ValidationResult) add(field, value, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Value: value, Message: message})
}

// ValidateRow validates a raw row against the definition and returns all
// validation errors. Values are cleaned (CleanCell) before checking; a
// failing field never stops validation of the remaining fields.
func (d *EntityDef) ValidateRow(raw map[string]string) ValidationResult {
	result := ValidationResult{Valid: true}

	cleaned := make(map[string]string, len(raw))
	for k, v := range raw {
		cleaned[strings.ToLower(strings.TrimSpace(k))] = CleanCell(v)
	}

	source := cleaned[Discriminant]

	for _, spec := range d.FieldSpecs {
		value := cleaned[strings.ToLower(spec.Name)]

		if value == "" {
			if spec.Required && d.fieldLegal(spec, source) {
				result.add(spec.Name, "", "required field is empty")
			}
			continue
		}

		if spec.Normalizer != nil {
			value = spec.Normalizer(value)
		}

		if !d.fieldLegal(spec, source) {
			result.add(spec.Name, value,
				fmt.Sprintf("field not allowed when %s is %q", Discriminant, source))
			continue
		}

		if err := ValidateCell(value, spec); err != nil {
			result.add(spec.Name, value, err.Error())
		}
	}

	return result
}

// fieldLegal reports whether a field may carry a value for the given
// discriminant value. Fields with no Sources restriction are always legal.
func (d *EntityDef) fieldLegal(spec FieldSpec, source string) bool {
	if len(spec.Sources) == 0 {
		return true
	}
	for _, s := range spec.Sources {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

// ValidateCell validates a single cleaned value against a field spec.
// Returns nil if valid, or an error describing the problem.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		if _, err := ParseNumeric(value); err != nil {
			return fmt.Errorf("invalid %s format", fieldTypeName(spec.Type))
		}
	case FieldDate:
		if _, err := ParseDate(value); err != nil {
			return fmt.Errorf("invalid %s format (use YYYY-MM-DD or similar)", fieldTypeName(spec.Type))
		}
	case FieldBool:
		if _, err := ParseBool(value); err != nil {
			return fmt.Errorf("invalid %s: must be yes/no, true/false, or 1/0", fieldTypeName(spec.Type))
		}
	case FieldEnum:
		if len(spec.EnumValues) > 0 {
			for _, ev := range spec.EnumValues {
				if strings.EqualFold(ev, value) {
					return nil
				}
			}
			return fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
		}
	}
	return nil
}

// BuildRecord converts a validated raw row into a Record: cleaned field
// values are copied under their canonical names, list fields are split, and
// for step-carrying kinds every "cotN" key is extracted into the ordered step
// list. Backend-assigned fields (id, timestamps) are left for the caller.
func (d *EntityDef) BuildRecord(raw map[string]string) Record {
	cleaned := make(map[string]string, len(raw))
	for k, v := range raw {
		cleaned[strings.ToLower(strings.TrimSpace(k))] = CleanCell(v)
	}

	rec := Record{
		Kind:   d.Kind,
		Fields: make(map[string]any, len(d.FieldSpecs)),
	}

	for _, spec := range d.FieldSpecs {
		if _, isStep := ParseStepKey(spec.Name); isStep && d.HasSteps {
			continue // steps live in the ordered step list, not the field map
		}
		value := cleaned[strings.ToLower(spec.Name)]
		if value == "" {
			continue
		}
		if strings.EqualFold(spec.Name, "id") {
			rec.ID = value
			continue
		}
		if spec.Normalizer != nil {
			value = spec.Normalizer(value)
		}
		if spec.Type == FieldList {
			rec.Fields[spec.Name] = SplitList(value)
			continue
		}
		rec.Fields[spec.Name] = value
	}

	if d.HasSteps {
		rec.Steps = StepsFromMap(cleaned)
	}

	return rec
}

// dateLayouts are the accepted date formats, most common first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
}

// ParseDate parses a date-shaped string using the accepted layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseNumeric parses a numeric string, tolerating currency symbols,
// thousands separators, and parenthesized negatives.
func ParseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", "%", "").Replace(s)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized number %q", s)
	}
	if neg {
		f = -f
	}
	return f, nil
}

// ParseBool parses a boolean string in the forms accepted by the validators.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("unrecognized bool %q", s)
}
