package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"datakit/internal/schema"
)

// NewID generates a record id of the form
// {kind}-{unix-millis}-{8-char random suffix}. The time component keeps ids
// roughly sortable by creation; the random suffix avoids collisions between
// backends generating ids without coordination.
func NewID(kind schema.Kind) string {
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), uuid.NewString()[:8])
}
