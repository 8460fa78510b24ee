package query

import (
	"fmt"
	"testing"

	"datakit/internal/schema"
	"datakit/internal/store"
)

func profile(id, source, name, gender, ageGroup string, extra map[string]any) schema.Record {
	fields := map[string]any{
		"source":   source,
		"name":     name,
		"gender":   gender,
		"ageGroup": ageGroup,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return schema.Record{ID: id, Kind: schema.KindProfile, Fields: fields}
}

func testProfiles() []schema.Record {
	return []schema.Record{
		profile("p1", "human", "Alice Tanaka", "female", "30s", map[string]any{
			"occupation": "engineer", "annualIncome": "52000", "products": []string{"deposit", "fund"},
		}),
		profile("p2", "human", "Ben Okafor", "male", "40s", map[string]any{
			"occupation": "teacher", "annualIncome": "61000",
		}),
		profile("p3", "synthetic", "Cara Lindt", "female", "30s", map[string]any{
			"occupation": "designer", "annualIncome": "48000", "products": []string{"pension"},
		}),
		profile("p4", "synthetic", "Dan Malik", "male", "20s", map[string]any{
			"annualIncome": "39000",
		}),
	}
}

func ids(records []schema.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApplyFilters(t *testing.T) {
	records := testProfiles()

	tests := []struct {
		name    string
		filters store.Filters
		want    []string
	}{
		{"no filters returns all", nil, []string{"p1", "p2", "p3", "p4"}},
		{"empty values ignored", store.Filters{"gender": "", "ageGroup": nil}, []string{"p1", "p2", "p3", "p4"}},
		{"single enum filter", store.Filters{"gender": "female"}, []string{"p1", "p3"}},
		{"enum matches whole values only", store.Filters{"gender": "male"}, []string{"p2", "p4"}},
		{"text filter is substring", store.Filters{"occupation": "design"}, []string{"p3"}},
		{"combined filters narrow monotonically", store.Filters{"gender": "female", "ageGroup": "30s", "source": "human"}, []string{"p1"}},
		{"membership filter", store.Filters{"ageGroup": []string{"20s", "40s"}}, []string{"p2", "p4"}},
		{"list containment", store.Filters{"products": "fund"}, []string{"p1"}},
		{"numeric range inclusive", store.Filters{"annualIncome": store.Range{From: "48000", To: "52000"}}, []string{"p1", "p3"}},
		{"open-ended range", store.Filters{"annualIncome": store.Range{From: "52000"}}, []string{"p1", "p2"}},
		{"missing field never matches", store.Filters{"occupation": "pilot"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(ApplyFilters(records, tt.filters))
			if !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyFilters_MonotonicNarrowing(t *testing.T) {
	records := testProfiles()

	steps := []store.Filters{
		{"gender": "female"},
		{"gender": "female", "ageGroup": "30s"},
		{"gender": "female", "ageGroup": "30s", "source": "synthetic"},
	}

	prev := len(records)
	for _, filters := range steps {
		n := len(ApplyFilters(records, filters))
		if n > prev {
			t.Fatalf("adding filter %v grew the result set: %d > %d", filters, n, prev)
		}
		prev = n
	}
}

func TestApplySearch(t *testing.T) {
	records := testProfiles()

	if got := ids(ApplySearch(records, "tanaka")); !equalIDs(got, []string{"p1"}) {
		t.Errorf("search tanaka = %v, want [p1]", got)
	}
	// products is a searchable list field, so its flattened values match.
	if got := ids(ApplySearch(records, "pension")); !equalIDs(got, []string{"p3"}) {
		t.Errorf("search pension = %v, want [p3]", got)
	}
	if got := ids(ApplySearch(records, "")); !equalIDs(got, []string{"p1", "p2", "p3", "p4"}) {
		t.Errorf("empty search should match all, got %v", got)
	}
}

func TestSortRecords(t *testing.T) {
	records := testProfiles()

	asc := SortRecords(records, "annualIncome", "asc")
	if got := ids(asc); !equalIDs(got, []string{"p4", "p3", "p1", "p2"}) {
		t.Errorf("numeric asc = %v", got)
	}

	desc := SortRecords(records, "annualIncome", "desc")
	if got := ids(desc); !equalIDs(got, []string{"p2", "p1", "p3", "p4"}) {
		t.Errorf("numeric desc = %v", got)
	}

	// p4 has no occupation: it sorts last in both directions.
	ascOcc := SortRecords(records, "occupation", "asc")
	if got := ids(ascOcc); got[len(got)-1] != "p4" {
		t.Errorf("asc nulls last: got %v", got)
	}
	descOcc := SortRecords(records, "occupation", "desc")
	if got := ids(descOcc); got[len(got)-1] != "p4" {
		t.Errorf("desc nulls last: got %v", got)
	}

	if got := ids(SortRecords(records, "name", "asc")); !equalIDs(got, []string{"p1", "p2", "p3", "p4"}) {
		t.Errorf("name asc = %v", got)
	}
}

func TestSortRecords_Stable(t *testing.T) {
	records := testProfiles()
	// ageGroup "30s" is shared by p1 and p3: their input order must hold.
	sorted := SortRecords(records, "ageGroup", "asc")
	var thirties []string
	for _, r := range sorted {
		if r.String("ageGroup") == "30s" {
			thirties = append(thirties, r.ID)
		}
	}
	if !equalIDs(thirties, []string{"p1", "p3"}) {
		t.Errorf("ties must preserve encounter order, got %v", thirties)
	}
}

func TestPaginate(t *testing.T) {
	var records []schema.Record
	for i := 1; i <= 7; i++ {
		records = append(records, schema.Record{ID: fmt.Sprintf("p%d", i), Kind: schema.KindProfile})
	}

	tests := []struct {
		name       string
		page       int
		pageSize   int
		wantIDs    []string
		wantTotal  int
		wantPages  int
		wantedPage int
	}{
		{"first page", 1, 3, []string{"p1", "p2", "p3"}, 7, 3, 1},
		{"last partial page", 3, 3, []string{"p7"}, 7, 3, 3},
		{"out-of-range page is empty not error", 9, 3, []string{}, 7, 3, 9},
		{"page below one clamps to one", 0, 3, []string{"p1", "p2", "p3"}, 7, 3, 1},
		{"default page size", 1, 0, []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}, 7, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(records, tt.page, tt.pageSize)
			if !equalIDs(ids(got.Items), tt.wantIDs) {
				t.Errorf("items = %v, want %v", ids(got.Items), tt.wantIDs)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", got.Total, tt.wantTotal)
			}
			if got.TotalPages != tt.wantPages {
				t.Errorf("totalPages = %d, want %d", got.TotalPages, tt.wantPages)
			}
			if got.Page != tt.wantedPage {
				t.Errorf("page = %d, want %d", got.Page, tt.wantedPage)
			}
		})
	}
}

func TestPaginate_Invariant(t *testing.T) {
	var records []schema.Record
	for i := 0; i < 53; i++ {
		records = append(records, schema.Record{ID: fmt.Sprintf("p%02d", i), Kind: schema.KindProfile})
	}

	pageSize := 10
	result := Paginate(records, 1, pageSize)
	seen := 0
	for page := 1; page <= result.TotalPages; page++ {
		r := Paginate(records, page, pageSize)
		seen += len(r.Items)
	}
	if seen != len(records) {
		t.Errorf("pages must cover every record exactly once: saw %d of %d", seen, len(records))
	}
}

func TestRankSearch(t *testing.T) {
	records := []schema.Record{
		profile("p1", "human", "fund manager", "female", "30s", map[string]any{
			"occupation": "fund analyst", "notes": "manages a fund desk", "products": []string{"fund"},
		}),
		profile("p2", "human", "Ben", "male", "40s", map[string]any{
			"notes": "asked about one fund",
		}),
		profile("p3", "human", "Cara", "female", "20s", nil),
	}

	ranked := RankSearch(records, "fund")
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d results, want 2", len(ranked))
	}
	if ranked[0].Record.ID != "p1" {
		t.Errorf("most diverse match should rank first, got %s", ranked[0].Record.ID)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("scores should strictly order p1 over p2: %v vs %v", ranked[0].Score, ranked[1].Score)
	}
}

func TestProcess(t *testing.T) {
	records := testProfiles()

	result := Process(records, store.PageOptions{
		Page:      1,
		PageSize:  2,
		SortBy:    "name",
		SortOrder: "desc",
		Filters:   store.Filters{"gender": "female"},
	})

	if result.Total != 2 {
		t.Fatalf("total = %d, want 2", result.Total)
	}
	if got := ids(result.Items); !equalIDs(got, []string{"p3", "p1"}) {
		t.Errorf("items = %v, want [p3 p1]", got)
	}
}
