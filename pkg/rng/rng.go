// Package rng provides the deterministic random source used by every cycle phase.
//
// All randomness inside the kernel originates here. A stream is a 31-bit linear
// congruential generator seeded from a hash of the cycle seed, so the same seed
// always reproduces the same draws. Salted streams give each domain (weather,
// neighborhoods, severity) its own sequence so that adding a draw in one domain
// never shifts the draws of another.
package rng

import (
	"hash/fnv"
	"strconv"
)

const (
	multiplier = 1103515245
	increment  = 12345
	modMask    = 0x7fffffff
	// divisor is 2^31 so Float64 never returns 1.0.
	divisor = float64(1 << 31)
)

// Source is the interface every consumer of randomness depends on.
type Source interface {
	// Float64 returns the next draw in [0,1).
	Float64() float64
}

// LCG is a seeded linear congruential generator.
type LCG struct {
	state uint32
	draws int
}

// Seeded returns a generator whose initial state is hash32(seed).
func Seeded(seed int64) *LCG {
	return &LCG{state: hash32(strconv.FormatInt(seed, 10))}
}

// SeededFor returns an independent stream for the given salt.
func SeededFor(seed int64, salt string) *LCG {
	return Seeded(seed ^ int64(hash32(salt)))
}

// Next advances the generator and returns the raw 31-bit state.
func (g *LCG) Next() uint32 {
	g.state = (g.state*multiplier + increment) & modMask
	g.draws++
	return g.state
}

// Float64 returns the next draw in [0,1).
func (g *LCG) Float64() float64 {
	return float64(g.Next()) / divisor
}

// Draws reports how many values have been drawn from the stream.
func (g *LCG) Draws() int {
	return g.draws
}

// hash32 is 32-bit FNV-1a.
func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Intn returns a draw in [0,n). It returns 0 when n <= 0.
func Intn(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	v := int(src.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Chance reports whether a draw falls below p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Pick returns a uniformly drawn element of items, or the zero value when empty.
func Pick[T any](src Source, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[Intn(src, len(items))]
}

// WeightedIndex draws an index from weights, ignoring non-positive entries.
// It returns -1 when no weight is positive.
func WeightedIndex(src Source, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := src.Float64() * total
	running := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		running += w
		last = i
		if target < running {
			return i
		}
	}
	return last
}
