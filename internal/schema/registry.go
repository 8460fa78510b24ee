package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EntityDef contains everything needed to validate, store, and export one
// entity kind.
type EntityDef struct {
	Kind       Kind
	Label      string // Display name: "Customer Profile"
	FieldSpecs []FieldSpec

	// Columns is the canonical ordered field list used for tabular headers.
	// Populated from FieldSpecs at registration when not set explicitly.
	Columns []string

	// HasSteps marks kinds that carry an ordered chain-of-thought step list.
	HasSteps bool
}

// Spec returns the field spec for a field name (case-insensitive).
func (d *EntityDef) Spec(name string) (FieldSpec, bool) {
	for _, spec := range d.FieldSpecs {
		if strings.EqualFold(spec.Name, name) {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// SearchFields returns the names of all searchable fields.
func (d *EntityDef) SearchFields() []string {
	var out []string
	for _, spec := range d.FieldSpecs {
		if spec.Searchable {
			out = append(out, spec.Name)
		}
	}
	return out
}

// IndexedFields returns the names of all fields backends keep secondary
// indexes for. The discriminant is always indexed.
func (d *EntityDef) IndexedFields() []string {
	out := []string{Discriminant}
	for _, spec := range d.FieldSpecs {
		if spec.Indexed && spec.Name != Discriminant {
			out = append(out, spec.Name)
		}
	}
	return out
}

// SearchableText concatenates a record's searchable content for free-text
// matching. QA records contribute the question, every ordered step value
// (mandatory and dynamic), and the answer; other kinds contribute their
// searchable string fields, with list fields flattened.
func (d *EntityDef) SearchableText(r Record) string {
	var parts []string
	for _, spec := range d.FieldSpecs {
		if !spec.Searchable {
			continue
		}
		switch spec.Type {
		case FieldList:
			parts = append(parts, r.StringList(spec.Name)...)
		default:
			if v := r.String(spec.Name); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if d.HasSteps && r.Steps != nil {
		parts = append(parts, r.Steps.Values()...)
	}
	return strings.Join(parts, " ")
}

// Flatten renders a record as a tabular row keyed by canonical column names.
// Backend-assigned timestamps are not included; steps (mandatory and dynamic)
// are flattened to their "cotN" keys.
func (d *EntityDef) Flatten(r Record) map[string]string {
	row := make(map[string]string, len(d.FieldSpecs))
	for _, spec := range d.FieldSpecs {
		if _, isStep := ParseStepKey(spec.Name); isStep && d.HasSteps {
			continue
		}
		if strings.EqualFold(spec.Name, "id") {
			row[spec.Name] = r.ID
			continue
		}
		if spec.Type == FieldList {
			row[spec.Name] = JoinList(r.StringList(spec.Name))
			continue
		}
		row[spec.Name] = r.String(spec.Name)
	}
	if d.HasSteps && r.Steps != nil {
		for k, v := range r.Steps.ToMap() {
			row[k] = v
		}
	}
	return row
}

// ExportColumns derives the tabular header for a record set: the canonical
// column list, plus — for step-carrying kinds — any dynamic step keys present
// in the data, appended in numeric order. An empty record set yields exactly
// the canonical columns, so downstream tools always see consistent headers.
func (d *EntityDef) ExportColumns(records []Record) []string {
	cols := append([]string(nil), d.Columns...)
	if !d.HasSteps {
		return cols
	}

	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[strings.ToLower(c)] = true
	}

	var extra []int
	for _, r := range records {
		if r.Steps == nil {
			continue
		}
		for _, key := range r.Steps.Keys() {
			if seen[key] {
				continue
			}
			seen[key] = true
			if n, ok := ParseStepKey(key); ok {
				extra = append(extra, n)
			}
		}
	}
	sort.Ints(extra)
	for _, n := range extra {
		cols = append(cols, stepKey(n))
	}
	return cols
}

var (
	registry   = make(map[Kind]*EntityDef)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if the kind is already registered.
func Register(def *EntityDef) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("entity kind already registered: %s", def.Kind))
	}

	// Populate Columns from FieldSpecs if not set
	if len(def.Columns) == 0 && len(def.FieldSpecs) > 0 {
		def.Columns = make([]string, len(def.FieldSpecs))
		for i, spec := range def.FieldSpecs {
			def.Columns[i] = spec.Name
		}
	}

	registry[def.Kind] = def
}

// Get returns an entity definition by kind.
// Returns false if not found.
func Get(kind Kind) (*EntityDef, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// MustGet returns an entity definition by kind, panicking if absent.
// The three built-in kinds register during package init, so lookups for them
// cannot fail in a correctly linked binary.
func MustGet(kind Kind) *EntityDef {
	def, ok := Get(kind)
	if !ok {
		panic(fmt.Sprintf("entity kind not registered: %s", kind))
	}
	return def
}

// All returns all registered entity definitions sorted by kind.
func All() []*EntityDef {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*EntityDef, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result
}

// Kinds returns all registered kinds sorted alphabetically.
func Kinds() []Kind {
	defs := All()
	kinds := make([]Kind, len(defs))
	for i, def := range defs {
		kinds[i] = def.Kind
	}
	return kinds
}
