package objectstore

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator assigns identifiers to records saved without one.
type IDGenerator interface {
	Generate() string
}

// TimestampGenerator derives ids from the wall clock as decimal Unix
// milliseconds, the format remote clients expect for offline-created records.
//
// Two saves within the same millisecond get the same id, and the second
// overwrites the first. Callers that save in tight loops should supply their
// own ids or use UUIDv7Generator.
type TimestampGenerator struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generate returns the current time in Unix milliseconds.
func (g TimestampGenerator) Generate() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	return strconv.FormatInt(now().UnixMilli(), 10)
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, for tests.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics if all ids have been consumed.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// NewIDGenerator returns the generator for a scheme name:
// "timestamp" (default) or "uuidv7".
func NewIDGenerator(scheme string) (IDGenerator, bool) {
	switch scheme {
	case "", "timestamp":
		return TimestampGenerator{}, true
	case "uuidv7":
		return UUIDv7Generator{}, true
	default:
		return nil, false
	}
}
