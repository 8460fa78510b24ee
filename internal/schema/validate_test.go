package schema

import (
	"strings"
	"testing"
)

func validProfileRow() map[string]string {
	return map[string]string{
		"source":   "human",
		"name":     "Anon 0412",
		"gender":   "female",
		"ageGroup": "30s",
		"region":   "Busan",
		"products": "Star Savings;Blue Chip Fund",
	}
}

func TestValidateRow_Profile(t *testing.T) {
	def := MustGet(KindProfile)

	tests := []struct {
		name      string
		mutate    func(map[string]string)
		wantValid bool
		wantField string
	}{
		{
			name:      "valid row",
			mutate:    func(m map[string]string) {},
			wantValid: true,
		},
		{
			name:      "missing required name",
			mutate:    func(m map[string]string) { delete(m, "name") },
			wantValid: false,
			wantField: "name",
		},
		{
			name:      "empty required field",
			mutate:    func(m map[string]string) { m["gender"] = "   " },
			wantValid: false,
			wantField: "gender",
		},
		{
			name:      "invalid enum value",
			mutate:    func(m map[string]string) { m["ageGroup"] = "300s" },
			wantValid: false,
			wantField: "ageGroup",
		},
		{
			name:      "enum matching is case-insensitive",
			mutate:    func(m map[string]string) { m["gender"] = "Female" },
			wantValid: true,
		},
		{
			name:      "invalid numeric",
			mutate:    func(m map[string]string) { m["annualIncome"] = "lots" },
			wantValid: false,
			wantField: "annualIncome",
		},
		{
			name:      "numeric with currency artifacts",
			mutate:    func(m map[string]string) { m["annualIncome"] = "$52,000" },
			wantValid: true,
		},
		{
			name:      "invalid date",
			mutate:    func(m map[string]string) { m["consentDate"] = "not a date" },
			wantValid: false,
			wantField: "consentDate",
		},
		{
			name: "human-only field rejected for synthetic",
			mutate: func(m map[string]string) {
				m["source"] = "synthetic"
				m["consentDate"] = "2024-01-15"
			},
			wantValid: false,
			wantField: "consentDate",
		},
		{
			name: "synthetic-only field accepted for synthetic",
			mutate: func(m map[string]string) {
				m["source"] = "synthetic"
				m["generatorModel"] = "gen-v2"
			},
			wantValid: true,
		},
		{
			name:      "synthetic-only field rejected for human",
			mutate:    func(m map[string]string) { m["generatorModel"] = "gen-v2" },
			wantValid: false,
			wantField: "generatorModel",
		},
		{
			name:      "header keys are case-insensitive",
			mutate:    func(m map[string]string) { m["AgeGroup"] = m["ageGroup"]; delete(m, "ageGroup") },
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validProfileRow()
			tt.mutate(row)

			result := def.ValidateRow(row)
			if result.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if tt.wantValid {
				return
			}
			found := false
			for _, e := range result.Errors {
				if e.Field == tt.wantField {
					found = true
					if e.Message == "" {
						t.Errorf("error for %q has empty message", e.Field)
					}
				}
			}
			if !found {
				t.Errorf("expected an error attributed to field %q, got %v", tt.wantField, result.Errors)
			}
		})
	}
}

func TestValidateRow_CollectsAllErrors(t *testing.T) {
	def := MustGet(KindProfile)

	row := validProfileRow()
	delete(row, "name")
	row["ageGroup"] = "300s"
	row["annualIncome"] = "lots"

	result := def.ValidateRow(row)
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

func TestValidateRow_QASteps(t *testing.T) {
	def := MustGet(KindQA)

	row := map[string]string{
		"source":   "human",
		"question": "What savings product fits a 30s customer?",
		"cot1":     "Consider income stability.",
		"cot2":     "Consider risk tolerance.",
		"cot3":     "Match against product categories.",
		"answer":   "A fixed deposit.",
	}

	if result := def.ValidateRow(row); !result.Valid {
		t.Fatalf("expected valid, got %v", result.Errors)
	}

	delete(row, "cot2")
	result := def.ValidateRow(row)
	if result.Valid {
		t.Fatal("expected invalid when a mandatory step is empty")
	}
	if result.Errors[0].Field != "cot2" {
		t.Errorf("error field = %q, want cot2", result.Errors[0].Field)
	}
}

func TestValidateCell_MessagesNameTheType(t *testing.T) {
	tests := []struct {
		name  string
		value string
		spec  FieldSpec
		want  string
	}{
		{"numeric", "lots", FieldSpec{Name: "annualIncome", Type: FieldNumeric}, "numeric"},
		{"date", "not a date", FieldSpec{Name: "consentDate", Type: FieldDate}, "date"},
		{"bool", "maybe", FieldSpec{Name: "reviewed", Type: FieldBool}, "bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCell(tt.value, tt.spec)
			if err == nil {
				t.Fatalf("expected error for %q", tt.value)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("message %q should name the %s type", err.Error(), tt.want)
			}
		})
	}
}

func TestBuildRecord_Profile(t *testing.T) {
	def := MustGet(KindProfile)

	row := validProfileRow()
	row["id"] = "profile-1700000000000-ab12cd34"
	row["name"] = "  Anon 0412  "

	rec := def.BuildRecord(row)
	if rec.Kind != KindProfile {
		t.Errorf("Kind = %q, want profile", rec.Kind)
	}
	if rec.ID != "profile-1700000000000-ab12cd34" {
		t.Errorf("ID = %q, want supplied id", rec.ID)
	}
	if _, ok := rec.Fields["id"]; ok {
		t.Error("id must not be duplicated into Fields")
	}
	if got := rec.String("name"); got != "Anon 0412" {
		t.Errorf("name = %q, want trimmed value", got)
	}
	if got := rec.StringList("products"); len(got) != 2 || got[0] != "Star Savings" {
		t.Errorf("products = %v, want split list", got)
	}
	if rec.Steps != nil {
		t.Error("profile records must not carry steps")
	}
}

func TestBuildRecord_QADynamicSteps(t *testing.T) {
	def := MustGet(KindQA)

	rec := def.BuildRecord(map[string]string{
		"source":   "synthetic",
		"question": "Q",
		"cot1":     "one",
		"cot2":     "two",
		"cot3":     "three",
		"cot5":     "five",
		"answer":   "A",
	})

	if rec.Steps == nil {
		t.Fatal("expected steps")
	}
	if got := rec.Steps.Keys(); strings.Join(got, ",") != "cot1,cot2,cot3,cot5" {
		t.Errorf("step keys = %v", got)
	}
	for _, key := range []string{"cot1", "cot2", "cot3", "cot5"} {
		if _, ok := rec.Fields[key]; ok {
			t.Errorf("step %s must not be duplicated into Fields", key)
		}
	}
}

func TestFlatten_RoundTripsBuildRecord(t *testing.T) {
	def := MustGet(KindQA)

	raw := map[string]string{
		"id":       "qa-1700000000000-ab12cd34",
		"source":   "human",
		"question": "Q",
		"cot1":     "one",
		"cot2":     "two",
		"cot3":     "three",
		"cot4":     "four",
		"answer":   "A",
		"topic":    "savings",
	}

	rec := def.BuildRecord(raw)
	flat := def.Flatten(rec)

	for key, want := range raw {
		if flat[key] != want {
			t.Errorf("flat[%q] = %q, want %q", key, flat[key], want)
		}
	}
}

func TestExportColumns(t *testing.T) {
	def := MustGet(KindQA)

	// Empty dataset keeps the canonical header.
	cols := def.ExportColumns(nil)
	if len(cols) != len(def.Columns) {
		t.Fatalf("empty dataset header = %v", cols)
	}

	rec := def.BuildRecord(map[string]string{
		"source": "human", "question": "Q", "answer": "A",
		"cot1": "a", "cot2": "b", "cot3": "c", "cot6": "f", "cot4": "d",
	})
	cols = def.ExportColumns([]Record{rec})
	if got := strings.Join(cols[len(def.Columns):], ","); got != "cot4,cot6" {
		t.Errorf("dynamic step columns = %q, want cot4,cot6", got)
	}
}

func TestParseDate(t *testing.T) {
	valid := []string{"2024-01-15", "01/15/2024", "Jan 15, 2024", "2024-01-15 10:30:00"}
	for _, s := range valid {
		if _, err := ParseDate(s); err != nil {
			t.Errorf("ParseDate(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseDate("soon"); err == nil {
		t.Error("ParseDate(\"soon\") should fail")
	}
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{"$1,234.56", 1234.56},
		{"(500)", -500},
		{"  3.14  ", 3.14},
	}
	for _, tt := range tests {
		got, err := ParseNumeric(tt.in)
		if err != nil {
			t.Errorf("ParseNumeric(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseNumeric(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseNumeric("many"); err == nil {
		t.Error("ParseNumeric(\"many\") should fail")
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{`="00123"`, "00123"},
		{"=A1", "A1"},
		{`"quoted"`, "quoted"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
