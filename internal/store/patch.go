package store

import (
	"strings"

	"datakit/internal/schema"
)

// ApplyPatch merges a patch into a record in place. Field entries with nil
// values delete the field; the "id" key is ignored because ids are immutable
// after creation. A non-nil Steps replaces the step list wholesale.
func ApplyPatch(rec *schema.Record, patch Patch) {
	if rec.Fields == nil && len(patch.Fields) > 0 {
		rec.Fields = make(map[string]any, len(patch.Fields))
	}
	for k, v := range patch.Fields {
		if strings.EqualFold(k, "id") {
			continue
		}
		if v == nil {
			delete(rec.Fields, k)
			continue
		}
		rec.Fields[k] = v
	}
	if patch.Steps != nil {
		rec.Steps = patch.Steps.Clone()
	}
}
