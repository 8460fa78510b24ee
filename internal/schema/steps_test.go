package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestStepList_AddAssignsNextInteger(t *testing.T) {
	l := NewStepList("a", "b", "c")

	if key := l.Add("d"); key != "cot4" {
		t.Errorf("first Add = %q, want cot4", key)
	}
	if key := l.Add("e"); key != "cot5" {
		t.Errorf("second Add = %q, want cot5", key)
	}

	// Removing a middle step must not cause key reuse: numbering is
	// append-next-integer past the highest live key, never a key count.
	if _, err := l.Remove("cot4"); err != nil {
		t.Fatalf("Remove(cot4): %v", err)
	}
	if key := l.Add("f"); key != "cot6" {
		t.Errorf("Add after removal = %q, want cot6", key)
	}
}

func TestStepList_MandatoryStepsProtected(t *testing.T) {
	l := NewStepList("a", "b", "c")

	for _, key := range []string{"cot1", "cot2", "cot3"} {
		if _, err := l.Remove(key); !errors.Is(err, ErrMandatoryStep) {
			t.Errorf("Remove(%s) err = %v, want ErrMandatoryStep", key, err)
		}
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d after rejected removals, want 3", l.Len())
	}
}

func TestStepList_AddThenRemoveRestoresPriorContent(t *testing.T) {
	l := NewStepList("a", "b", "c")
	before := l.Values()

	key := l.Add("temporary")
	removed, err := l.Remove(key)
	if err != nil || !removed {
		t.Fatalf("Remove(%s) = %v, %v", key, removed, err)
	}

	if !reflect.DeepEqual(l.Values(), before) {
		t.Errorf("Values = %v, want %v", l.Values(), before)
	}
}

func TestStepList_RemoveAbsentKey(t *testing.T) {
	l := NewStepList("a", "b", "c")
	removed, err := l.Remove("cot9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("Remove of absent key reported true")
	}
}

func TestStepList_JSONRoundTrip(t *testing.T) {
	l := NewStepList("one", "two", "three")
	l.Add("four")

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got StepList
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got.Steps(), l.Steps()) {
		t.Errorf("round trip = %v, want %v", got.Steps(), l.Steps())
	}
}

func TestStepsFromMap(t *testing.T) {
	l := StepsFromMap(map[string]string{
		"cot3":     "three",
		"cot1":     "one",
		"cot7":     "seven",
		"question": "ignored",
	})

	wantKeys := []string{"cot1", "cot2", "cot3", "cot7"}
	if !reflect.DeepEqual(l.Keys(), wantKeys) {
		t.Fatalf("Keys = %v, want %v", l.Keys(), wantKeys)
	}
	if v, _ := l.Get("cot2"); v != "" {
		t.Errorf("missing mandatory step filled with %q, want empty", v)
	}
}

func TestParseStepKey(t *testing.T) {
	tests := []struct {
		in     string
		wantN  int
		wantOK bool
	}{
		{"cot1", 1, true},
		{"cot12", 12, true},
		{"COT3", 3, true},
		{"cot0", 0, false},
		{"cot01", 0, false},
		{"cot", 0, false},
		{"question", 0, false},
	}
	for _, tt := range tests {
		n, ok := ParseStepKey(tt.in)
		if n != tt.wantN || ok != tt.wantOK {
			t.Errorf("ParseStepKey(%q) = (%d, %v), want (%d, %v)", tt.in, n, ok, tt.wantN, tt.wantOK)
		}
	}
}
