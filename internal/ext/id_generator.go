// ABOUTME: Identifier generation abstraction for alert IDs.
// ABOUTME: Provides a UUID-backed generator and a deterministic one for tests.

package ext

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator defines contract for generating universally unique identifiers.
type IDGenerator interface {
	GenerateID() string
}

// NewGoogleUUIDGenerator constructs an IDGenerator implemented with Google's UUID module.
func NewGoogleUUIDGenerator() IDGenerator {
	return &googleUUIDGenerator{}
}

type googleUUIDGenerator struct{}

func (g *googleUUIDGenerator) GenerateID() string {
	return uuid.New().String()
}

// NewSimpleIDGenerator constructs a sequential IDGenerator for tests.
func NewSimpleIDGenerator() IDGenerator {
	return &simpleIDGenerator{}
}

type simpleIDGenerator struct {
	leastSigBits uint64
}

func (g *simpleIDGenerator) GenerateID() string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", atomic.AddUint64(&g.leastSigBits, 1))
}
