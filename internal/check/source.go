package check

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"time"
)

// Source is the randomness provider for checks.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// NewSource returns a PCG-backed source seeded with seed.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewSeed returns a seed from crypto/rand, falling back to the clock if the
// system source is unavailable.
func NewSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}
