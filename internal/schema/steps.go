package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// StepKeyPrefix is the key prefix for chain-of-thought steps ("cot1", "cot2", ...).
const StepKeyPrefix = "cot"

// MandatoryStepCount is the number of steps every QA record must carry.
const MandatoryStepCount = 3

// ErrMandatoryStep is returned when a caller attempts to remove one of the
// mandatory steps.
var ErrMandatoryStep = fmt.Errorf("mandatory steps %s1-%s%d cannot be removed", StepKeyPrefix, StepKeyPrefix, MandatoryStepCount)

var stepKeyPattern = regexp.MustCompile(`^cot([1-9][0-9]*)$`)

// Step is a single ordered chain-of-thought step.
type Step struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StepList is the ordered step set of a QA record: three mandatory steps plus
// zero or more dynamic numbered steps. New steps always receive the next
// integer after the highest existing step number, so removing and re-adding
// never reuses a live key. Removal deletes the key without renumbering.
type StepList struct {
	steps []Step
}

// NewStepList builds a step list with the three mandatory steps populated.
func NewStepList(first, second, third string) *StepList {
	return &StepList{steps: []Step{
		{Key: StepKeyPrefix + "1", Value: first},
		{Key: StepKeyPrefix + "2", Value: second},
		{Key: StepKeyPrefix + "3", Value: third},
	}}
}

// ParseStepKey returns the step number for keys of the form "cotN", or
// (0, false) for anything else.
func ParseStepKey(key string) (int, bool) {
	m := stepKeyPattern.FindStringSubmatch(strings.ToLower(key))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StepsFromMap extracts every "cotN" key from a raw row into an ordered step
// list. Missing mandatory steps are created empty; validation catches them
// separately so import errors stay field-attributed.
func StepsFromMap(raw map[string]string) *StepList {
	byNum := make(map[int]string)
	for key, value := range raw {
		if n, ok := ParseStepKey(key); ok {
			byNum[n] = value
		}
	}
	for i := 1; i <= MandatoryStepCount; i++ {
		if _, ok := byNum[i]; !ok {
			byNum[i] = ""
		}
	}

	nums := make([]int, 0, len(byNum))
	for n := range byNum {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	l := &StepList{steps: make([]Step, 0, len(nums))}
	for _, n := range nums {
		l.steps = append(l.steps, Step{Key: stepKey(n), Value: byNum[n]})
	}
	return l
}

func stepKey(n int) string {
	return StepKeyPrefix + strconv.Itoa(n)
}

// Len returns the number of steps.
func (l *StepList) Len() int {
	return len(l.steps)
}

// Steps returns the ordered steps. The returned slice is a copy.
func (l *StepList) Steps() []Step {
	return append([]Step(nil), l.steps...)
}

// Values returns the ordered step values.
func (l *StepList) Values() []string {
	out := make([]string, len(l.steps))
	for i, s := range l.steps {
		out[i] = s.Value
	}
	return out
}

// Get returns the value for a step key.
func (l *StepList) Get(key string) (string, bool) {
	for _, s := range l.steps {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

// Set updates the value of an existing step key. It returns false if the key
// does not exist; use Add to append new steps.
func (l *StepList) Set(key, value string) bool {
	for i, s := range l.steps {
		if s.Key == key {
			l.steps[i].Value = value
			return true
		}
	}
	return false
}

// Add appends a new dynamic step and returns its assigned key. Numbering is
// append-next-integer: one past the highest existing step number.
func (l *StepList) Add(value string) string {
	max := MandatoryStepCount
	for _, s := range l.steps {
		if n, ok := ParseStepKey(s.Key); ok && n > max {
			max = n
		}
	}
	key := stepKey(max + 1)
	l.steps = append(l.steps, Step{Key: key, Value: value})
	return key
}

// Remove deletes a dynamic step by key. Removing a mandatory step returns
// ErrMandatoryStep; removing an absent key is a no-op returning false.
func (l *StepList) Remove(key string) (bool, error) {
	if n, ok := ParseStepKey(key); ok && n <= MandatoryStepCount {
		return false, ErrMandatoryStep
	}
	for i, s := range l.steps {
		if s.Key == key {
			l.steps = append(l.steps[:i], l.steps[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Clone returns a deep copy of the step list.
func (l *StepList) Clone() *StepList {
	if l == nil {
		return nil
	}
	return &StepList{steps: append([]Step(nil), l.steps...)}
}

// ToMap renders the steps as key/value pairs for tabular output.
func (l *StepList) ToMap() map[string]string {
	out := make(map[string]string, len(l.steps))
	for _, s := range l.steps {
		out[s.Key] = s.Value
	}
	return out
}

// Keys returns the ordered step keys.
func (l *StepList) Keys() []string {
	out := make([]string, len(l.steps))
	for i, s := range l.steps {
		out[i] = s.Key
	}
	return out
}

// MarshalJSON encodes the list as an ordered array of {key, value} objects.
func (l *StepList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.steps)
}

// UnmarshalJSON decodes the ordered array form.
func (l *StepList) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &l.steps)
}
