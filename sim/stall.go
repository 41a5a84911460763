package sim

import "math/rand"

// StallInjector observes every issued warp and may stall it. The simulated
// kernel model never stalls on its own, so injectors exist to exercise the
// policy-dependent orderings of the warp schedulers; the production executor
// installs none.
type StallInjector interface {
	// AfterIssue runs after warp w was issued at the given tick.
	AfterIssue(w *Warp, tick int64)
}

// PeriodicStallInjector stalls the issued warp for Cycles ticks on every
// tick where tick % Period == 0.
type PeriodicStallInjector struct {
	Period int64
	Cycles int
}

// AfterIssue implements StallInjector.
func (p *PeriodicStallInjector) AfterIssue(w *Warp, tick int64) {
	if p.Period > 0 && tick%p.Period == 0 {
		w.Stall(p.Cycles)
	}
}

// RandomStallInjector stalls each issued warp with probability Prob, drawing
// from a seeded source so runs stay reproducible.
type RandomStallInjector struct {
	Prob   float64
	Cycles int
	rng    *rand.Rand
}

// NewRandomStallInjector creates a seeded random injector.
func NewRandomStallInjector(seed int64, prob float64, cycles int) *RandomStallInjector {
	return &RandomStallInjector{
		Prob:   prob,
		Cycles: cycles,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// AfterIssue implements StallInjector.
func (r *RandomStallInjector) AfterIssue(w *Warp, tick int64) {
	if r.rng.Float64() < r.Prob {
		w.Stall(r.Cycles)
	}
}
