// Package query implements the backend-agnostic filter, search, sort, and
// pagination service. Everything here is a pure function over a record
// slice: it holds no state, caches nothing across calls, and is safe to use
// concurrently. Backends layer it over their native record access; callers
// can also run it over an already-loaded GetAll result.
package query

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"datakit/internal/schema"
	"datakit/internal/store"
)

// Process applies filters, free-text search, sorting, and pagination in that
// order and returns one page plus totals.
func Process(records []schema.Record, opts store.PageOptions) *store.PaginatedResult {
	out := ApplyFilters(records, opts.Filters)
	if opts.Search != "" {
		out = ApplySearch(out, opts.Search)
	}
	if opts.SortBy != "" {
		out = SortRecords(out, opts.SortBy, opts.SortOrder)
	}
	return Paginate(out, opts.Page, opts.PageSize)
}

// ApplyFilters returns the records matching every active filter entry.
func ApplyFilters(records []schema.Record, filters store.Filters) []schema.Record {
	if len(filters) == 0 {
		return records
	}
	out := make([]schema.Record, 0, len(records))
	for _, rec := range records {
		if MatchFilters(rec, filters) {
			out = append(out, rec)
		}
	}
	return out
}

// MatchFilters reports whether a record satisfies all active filters.
// Entries with nil or empty values are ignored (no constraint).
func MatchFilters(rec schema.Record, filters store.Filters) bool {
	def, _ := schema.Get(rec.Kind)
	for field, want := range filters {
		if isEmptyFilter(want) {
			continue
		}
		exact := false
		if def != nil {
			// Enumerated fields match whole values: substring semantics
			// would make "male" match "female".
			if spec, ok := def.Spec(field); ok && spec.Type == schema.FieldEnum {
				exact = true
			}
		}
		if !matchField(fieldValue(rec, field), want, exact) {
			return false
		}
	}
	return true
}

func isEmptyFilter(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case store.Range:
		return t.From == "" && t.To == ""
	}
	return false
}

// fieldValue resolves a filter key against a record. The id and timestamps
// live on the record itself; everything else is a variant field.
func fieldValue(rec schema.Record, field string) any {
	switch field {
	case "id":
		return rec.ID
	case "createdAt":
		return rec.CreatedAt.Format("2006-01-02 15:04:05")
	case "updatedAt":
		return rec.UpdatedAt.Format("2006-01-02 15:04:05")
	}
	return rec.Fields[field]
}

// matchField applies the per-type filter semantics:
//   - list-typed field values match when any filter value is contained;
//   - scalar fields match []string filters by membership;
//   - string filters match string fields by case-insensitive substring
//     (whole-value for enumerated fields, see MatchFilters);
//   - Range filters use inclusive bounds;
//   - everything else is exact equality.
func matchField(have any, want any, exact bool) bool {
	if have == nil {
		return false
	}

	if list, ok := have.([]string); ok {
		return matchList(list, want)
	}

	haveStr, haveIsStr := have.(string)

	switch w := want.(type) {
	case string:
		if haveIsStr {
			if exact {
				return strings.EqualFold(haveStr, w)
			}
			return strings.Contains(strings.ToLower(haveStr), strings.ToLower(w))
		}
		return have == want
	case []string:
		// Scalar field, array filter: match if the field value is one of
		// the filter values.
		for _, v := range w {
			if haveIsStr && strings.EqualFold(haveStr, v) {
				return true
			}
		}
		return false
	case store.Range:
		return matchRange(haveStr, w)
	default:
		return have == want
	}
}

func matchList(have []string, want any) bool {
	switch w := want.(type) {
	case string:
		for _, v := range have {
			if strings.Contains(strings.ToLower(v), strings.ToLower(w)) {
				return true
			}
		}
	case []string:
		for _, fv := range w {
			for _, v := range have {
				if strings.EqualFold(v, fv) {
					return true
				}
			}
		}
	}
	return false
}

// matchRange compares with inclusive bounds. Date-shaped values compare by
// parsed instant, numeric values numerically, anything else lexically.
func matchRange(have string, r store.Range) bool {
	if have == "" {
		return false
	}
	cmp := compareTyped(have)
	if r.From != "" && cmp(r.From) < 0 {
		return false
	}
	if r.To != "" && cmp(r.To) > 0 {
		return false
	}
	return true
}

// compareTyped returns a comparator of have against another raw value using
// the richest interpretation both sides support.
func compareTyped(have string) func(other string) int {
	return func(other string) int {
		if ht, err1 := schema.ParseDate(have); err1 == nil {
			if ot, err2 := schema.ParseDate(other); err2 == nil {
				switch {
				case ht.Before(ot):
					return -1
				case ht.After(ot):
					return 1
				}
				return 0
			}
		}
		if hn, err1 := schema.ParseNumeric(have); err1 == nil {
			if on, err2 := schema.ParseNumeric(other); err2 == nil {
				switch {
				case hn < on:
					return -1
				case hn > on:
					return 1
				}
				return 0
			}
		}
		return strings.Compare(have, other)
	}
}

// ApplySearch returns records whose searchable text contains the query,
// case-insensitively. For QA records the searchable text spans the question,
// every ordered step, and the answer.
func ApplySearch(records []schema.Record, q string) []schema.Record {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return records
	}
	out := make([]schema.Record, 0, len(records))
	for _, rec := range records {
		def, ok := schema.Get(rec.Kind)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(def.SearchableText(rec)), q) {
			out = append(out, rec)
		}
	}
	return out
}

// SortRecords stably sorts by the named field. String fields compare
// locale-aware, date-shaped strings by parsed instant, numeric fields
// numerically. Records missing the field sort last regardless of direction.
func SortRecords(records []schema.Record, sortBy, sortOrder string) []schema.Record {
	out := append([]schema.Record(nil), records...)
	desc := strings.EqualFold(sortOrder, "desc")
	coll := collate.New(language.English, collate.IgnoreCase)

	sort.SliceStable(out, func(i, j int) bool {
		a, aok := sortValue(out[i], sortBy)
		b, bok := sortValue(out[j], sortBy)

		// Nulls last regardless of direction.
		if !aok || !bok {
			return aok && !bok
		}

		c := compareSortValues(a, b, coll)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func sortValue(rec schema.Record, field string) (string, bool) {
	v := fieldValue(rec, field)
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case []string:
		return schema.JoinList(t), len(t) > 0
	}
	return "", false
}

func compareSortValues(a, b string, coll *collate.Collator) int {
	if at, err1 := schema.ParseDate(a); err1 == nil {
		if bt, err2 := schema.ParseDate(b); err2 == nil {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	if an, err1 := schema.ParseNumeric(a); err1 == nil {
		if bn, err2 := schema.ParseNumeric(b); err2 == nil {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	return coll.CompareString(a, b)
}

// Paginate slices one 1-indexed page out of the records. An out-of-range
// page returns an empty item list with intact totals, never an error.
func Paginate(records []schema.Record, page, pageSize int) *store.PaginatedResult {
	if pageSize < 1 {
		pageSize = 25
	}
	if page < 1 {
		page = 1
	}

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return &store.PaginatedResult{
			Items:      []schema.Record{},
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		}
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &store.PaginatedResult{
		Items:      append([]schema.Record(nil), records[start:end]...),
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
