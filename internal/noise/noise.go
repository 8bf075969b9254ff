// Package noise provides the injectable randomness used by the simulated
// collectors and the fusion engine. Every random draw in the pipeline goes
// through a Source so tests can fix the seed and assert exact numbers.
package noise

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the subset of *rand.Rand the pipeline draws from.
type Source interface {
	Float64() float64
	IntN(n int) int
}

// Locked wraps a *rand.Rand with a mutex so one Source can be shared by
// concurrent requests.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeeded returns a Locked source with a fixed PCG seed. A zero seed
// derives one from the current time.
func NewSeeded(seed uint64) *Locked {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Locked{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.IntN(n)
}

// Constant always returns the same fraction in [0,1). IntN maps the
// fraction onto [0,n). Useful for pinning the midpoint or the edges of
// every range in tests.
type Constant float64

func (c Constant) Float64() float64 { return float64(c) }

func (c Constant) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(float64(c) * float64(n))
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// Uniform draws from [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}

// Between draws an integer from [lo, hi] inclusive.
func Between(src Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + src.IntN(hi-lo+1)
}

// Jitter draws from [-spread, spread).
func Jitter(src Source, spread float64) float64 {
	return Uniform(src, -spread, spread)
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Pick returns one element of items. It panics on an empty slice.
func Pick[T any](src Source, items []T) T {
	return items[src.IntN(len(items))]
}
