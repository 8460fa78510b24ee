package query

import (
	"sort"
	"strings"

	"datakit/internal/schema"
)

// matchCountCap bounds the match-count contribution to a relevance score so
// a single field repeating the term cannot drown out better-spread matches.
const matchCountCap = 5

// ScoredRecord pairs a record with its relevance score.
type ScoredRecord struct {
	Record schema.Record
	Score  float64
}

// RankSearch scores records against a free-text query and returns matches
// sorted by descending relevance. The score is the capped total match count
// plus a field-diversity bonus: the fraction of distinct searchable fields
// that matched. Ties keep encounter order.
func RankSearch(records []schema.Record, q string) []ScoredRecord {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}

	var out []ScoredRecord
	for _, rec := range records {
		def, ok := schema.Get(rec.Kind)
		if !ok {
			continue
		}
		score := scoreRecord(def, rec, q)
		if score > 0 {
			out = append(out, ScoredRecord{Record: rec, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func scoreRecord(def *schema.EntityDef, rec schema.Record, q string) float64 {
	fields := searchFieldValues(def, rec)
	if len(fields) == 0 {
		return 0
	}

	matches := 0
	matchedFields := 0
	for _, value := range fields {
		n := strings.Count(strings.ToLower(value), q)
		if n > 0 {
			matchedFields++
			matches += n
		}
	}
	if matches == 0 {
		return 0
	}
	if matches > matchCountCap {
		matches = matchCountCap
	}

	diversity := float64(matchedFields) / float64(len(fields))
	return float64(matches) + diversity
}

// searchFieldValues returns one concatenated value per searchable field.
// Steps count as a single additional field so a long chain of thought does
// not inflate the diversity denominator.
func searchFieldValues(def *schema.EntityDef, rec schema.Record) []string {
	var out []string
	for _, name := range def.SearchFields() {
		spec, _ := def.Spec(name)
		if spec.Type == schema.FieldList {
			out = append(out, schema.JoinList(rec.StringList(name)))
			continue
		}
		out = append(out, rec.String(name))
	}
	if def.HasSteps && rec.Steps != nil {
		out = append(out, strings.Join(rec.Steps.Values(), " "))
	}
	return out
}
