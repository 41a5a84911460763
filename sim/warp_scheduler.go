package sim

import "fmt"

// PolicyKind names a warp scheduling policy.
type PolicyKind string

const (
	// PolicyLRR is Loose Round-Robin: a rotating cursor per subpartition.
	PolicyLRR PolicyKind = "lrr"
	// PolicyGTO is Greedy-Then-Oldest: stick with the current warp while it
	// is ready, otherwise fall back to the oldest ready warp.
	PolicyGTO PolicyKind = "gto"
	// PolicyTwoLevel round-robins a fixed-size active set and promotes from
	// a pending pool when the whole active set is stalled.
	PolicyTwoLevel PolicyKind = "two-level"
)

// DefaultActiveSetSize is the Two-Level active set size when unspecified.
const DefaultActiveSetSize = 8

// SchedulingPolicy selects a warp scheduler. ActiveSetSize applies to the
// two-level policy only.
type SchedulingPolicy struct {
	Kind          PolicyKind
	ActiveSetSize int
}

// LRR returns the Loose Round-Robin policy.
func LRR() SchedulingPolicy { return SchedulingPolicy{Kind: PolicyLRR} }

// GTO returns the Greedy-Then-Oldest policy.
func GTO() SchedulingPolicy { return SchedulingPolicy{Kind: PolicyGTO} }

// TwoLevel returns the two-level policy with the given active set size;
// sizes < 1 fall back to DefaultActiveSetSize.
func TwoLevel(activeSetSize int) SchedulingPolicy {
	if activeSetSize < 1 {
		activeSetSize = DefaultActiveSetSize
	}
	return SchedulingPolicy{Kind: PolicyTwoLevel, ActiveSetSize: activeSetSize}
}

// ParsePolicy maps a CLI name to a policy. Valid names: "lrr", "gto",
// "two-level".
func ParsePolicy(name string) (SchedulingPolicy, error) {
	switch PolicyKind(name) {
	case PolicyLRR:
		return LRR(), nil
	case PolicyGTO:
		return GTO(), nil
	case PolicyTwoLevel:
		return TwoLevel(0), nil
	default:
		return SchedulingPolicy{}, fmt.Errorf("unknown scheduling policy %q", name)
	}
}

// Label returns the policy name reported in stats and metrics snapshots.
func (p SchedulingPolicy) Label() string {
	return string(p.Kind)
}

// Validate checks the policy kind and active set size.
func (p SchedulingPolicy) Validate() error {
	switch p.Kind {
	case PolicyLRR, PolicyGTO:
		return nil
	case PolicyTwoLevel:
		if p.ActiveSetSize < 1 {
			return fmt.Errorf("two-level policy: active set size must be >= 1, got %d", p.ActiveSetSize)
		}
		return nil
	default:
		return fmt.Errorf("unknown scheduling policy %q", p.Kind)
	}
}

// warpSelector picks at most one ready warp from a subpartition per tick.
// One selector instance is created per (SM, subpartition) pair so policy
// state never leaks across subpartitions.
type warpSelector interface {
	Select(sp *subpartition) *Warp
}

// newWarpSelector builds a selector for the policy. Panics on an unknown
// kind; callers validate the policy at the launch boundary.
func newWarpSelector(p SchedulingPolicy) warpSelector {
	switch p.Kind {
	case PolicyLRR:
		return &lrrSelector{}
	case PolicyGTO:
		return &gtoSelector{}
	case PolicyTwoLevel:
		size := p.ActiveSetSize
		if size < 1 {
			size = DefaultActiveSetSize
		}
		return &twoLevelSelector{size: size}
	default:
		panic(fmt.Sprintf("unhandled scheduling policy %q", p.Kind))
	}
}

// lrrSelector implements Loose Round-Robin: scan from a rotating cursor,
// take the first ready warp, and advance the cursor past it. Stalled and
// retired warps are skipped.
type lrrSelector struct {
	cursor int
}

func (s *lrrSelector) Select(sp *subpartition) *Warp {
	n := len(sp.warps)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		if w := sp.warps[idx]; w.Ready() {
			s.cursor = (idx + 1) % n
			return w
		}
	}
	return nil
}

// gtoSelector implements Greedy-Then-Oldest: keep selecting the current warp
// while it stays ready; otherwise switch to the ready warp with the smallest
// age, ties broken by warp ID.
type gtoSelector struct {
	current *Warp
}

func (s *gtoSelector) Select(sp *subpartition) *Warp {
	if s.current != nil && s.current.Ready() {
		return s.current
	}
	s.current = oldestReady(sp.warps)
	return s.current
}

// oldestReady returns the ready warp with the smallest (age, ID), or nil.
func oldestReady(warps []*Warp) *Warp {
	var best *Warp
	for _, w := range warps {
		if !w.Ready() {
			continue
		}
		if best == nil || w.Age < best.Age || (w.Age == best.Age && w.ID < best.ID) {
			best = w
		}
	}
	return best
}

// twoLevelSelector partitions the subpartition's warps into a fixed-size
// active set scheduled with LRR and a pending pool holding the rest. The
// initial active set is the first warps by admission order; retired warps
// free their slots. Only when every active warp is stalled does the selector
// evict the longest-stalled warp and promote the oldest ready pending warp
// into its slot.
type twoLevelSelector struct {
	size   int
	cursor int
	active []*Warp
}

func (s *twoLevelSelector) Select(sp *subpartition) *Warp {
	s.refill(sp)
	if len(s.active) == 0 {
		return nil
	}

	if w := s.selectLRR(); w != nil {
		return w
	}

	// Every active warp is stalled: evict the longest-stalled and promote
	// the oldest ready pending warp into its slot.
	victim := -1
	for i, w := range s.active {
		if victim < 0 || w.StallCycles > s.active[victim].StallCycles ||
			(w.StallCycles == s.active[victim].StallCycles && w.ID < s.active[victim].ID) {
			victim = i
		}
	}
	promoted := oldestReady(s.pending(sp))
	if promoted == nil {
		return nil
	}
	s.active[victim] = promoted
	return s.selectLRR()
}

func (s *twoLevelSelector) selectLRR() *Warp {
	n := len(s.active)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		if w := s.active[idx]; w.Ready() {
			s.cursor = (idx + 1) % n
			return w
		}
	}
	return nil
}

// refill drops retired warps from the active set and tops it up from the
// pending pool in admission order.
func (s *twoLevelSelector) refill(sp *subpartition) {
	kept := s.active[:0]
	for _, w := range s.active {
		if w.State != WarpRetired {
			kept = append(kept, w)
		}
	}
	s.active = kept
	if len(s.active) >= s.size {
		return
	}
	inActive := make(map[int]bool, len(s.active))
	for _, w := range s.active {
		inActive[w.ID] = true
	}
	for _, w := range sp.warps {
		if len(s.active) >= s.size {
			break
		}
		if w.State == WarpRetired || inActive[w.ID] {
			continue
		}
		s.active = append(s.active, w)
	}
}

// pending lists the subpartition's live warps outside the active set.
func (s *twoLevelSelector) pending(sp *subpartition) []*Warp {
	inActive := make(map[int]bool, len(s.active))
	for _, w := range s.active {
		inActive[w.ID] = true
	}
	var out []*Warp
	for _, w := range sp.warps {
		if w.State != WarpRetired && !inActive[w.ID] {
			out = append(out, w)
		}
	}
	return out
}
