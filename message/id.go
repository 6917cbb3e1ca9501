package message

import (
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Strategy names an identity generator implementation.
type Strategy string

const (
	StrategyUUID     Strategy = "uuid"
	StrategyFallback Strategy = "fallback"
)

// IDGenerator produces identifiers for messages and sessions.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator issues UUIDv7 identifiers from a cryptographically strong source.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FallbackGenerator combines the current time with a pseudo-random suffix.
//
// It is NOT collision resistant: two ids minted in the same millisecond only
// differ by an 8-character math/rand suffix. Use it when the strong source is
// unavailable and the process issues ids at low concurrency.
type FallbackGenerator struct {
	now func() time.Time
}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{now: time.Now}
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func (g *FallbackGenerator) NewID() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(g.now().UnixMilli(), 36))
	b.WriteByte('-')
	for range 8 {
		b.WriteByte(suffixAlphabet[rand.IntN(len(suffixAlphabet))])
	}
	return b.String()
}

// NewIDGenerator selects a generator once for the lifetime of the process.
// StrategyUUID checks the strong source and degrades to FallbackGenerator if
// it cannot produce an id.
func NewIDGenerator(strategy Strategy) IDGenerator {
	switch strategy {
	case StrategyFallback:
		slog.Warn("using best-effort id generator", "strategy", strategy)
		return NewFallbackGenerator()
	default:
		if _, err := uuid.NewV7(); err != nil {
			slog.Warn("uuid source unavailable, using best-effort id generator", "error", err)
			return NewFallbackGenerator()
		}
		return UUIDGenerator{}
	}
}
