package engine

import (
	"sync"

	"github.com/google/uuid"
)

// FlowTokenGenerator generates the token that tags every log line of one
// flush or notification check.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 flow tokens, so log lines of
// consecutive flushes sort in the order the flushes started.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined flow tokens for testing.
//
// Once the list is exhausted the last token repeats, since background
// follow-up flushes make the exact number of flows hard to predict.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("flow-1", "flow-2")
//	gen.Generate() // "flow-1"
//	gen.Generate() // "flow-2"
//	gen.Generate() // "flow-2"
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	if len(tokens) == 0 {
		tokens = []string{"flow-fixed"}
	}
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	token := g.tokens[g.idx]
	if g.idx < len(g.tokens)-1 {
		g.idx++
	}
	return token
}
