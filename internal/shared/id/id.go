// Package id provides centralized ID generation for the service.
//
// IDs are ULIDs with type-specific prefixes (sess_*, plan_*, blk_*) so
// log lines stay readable and an identifier can never be used for the
// wrong kind of object.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionID identifies one terminal session.
type SessionID string

// PlanID identifies one mixed-script execution plan.
type PlanID string

// BlockID identifies one code block within a plan.
type BlockID string

// ID prefixes.
const (
	SessionPrefix = "sess"
	PlanPrefix    = "plan"
	BlockPrefix   = "blk"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source. Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewPlanID generates a new execution plan ID.
func NewPlanID() PlanID {
	return PlanID(Default().GenerateWithPrefix(PlanPrefix))
}

// NewBlockID generates a new block ID.
func NewBlockID() BlockID {
	return BlockID(Default().GenerateWithPrefix(BlockPrefix))
}

func (id SessionID) String() string { return string(id) }
func (id PlanID) String() string    { return string(id) }
func (id BlockID) String() string   { return string(id) }

// IsValid checks whether the part after the prefix is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(stripPrefix(id))
	return err == nil
}

// Timestamp extracts the creation time embedded in an ID.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(stripPrefix(id))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}

func stripPrefix(id string) string {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			return id[i+1:]
		}
	}
	return id
}
