package sim

import "fmt"

// NumSubpartitions is the number of warp scheduler subpartitions per SM.
// Warps are striped modulo NumSubpartitions in admission order.
const NumSubpartitions = 4

// blockDemand is the per-block footprint charged against SM counters,
// after allocation-granularity rounding.
type blockDemand struct {
	threads int
	warps   int
	regs    int
	smem    int
}

func demandFor(cfg SmConfig, res KernelResources) blockDemand {
	d := blockDemand{
		threads: res.ThreadsPerBlock,
		warps:   res.WarpsPerBlock(),
	}
	if res.RegsPerThread > 0 {
		d.regs = roundUp(res.RegsPerThread*res.ThreadsPerBlock, cfg.RegGranularity)
	}
	if res.SmemBytes > 0 {
		d.smem = roundUp(res.SmemBytes, cfg.SmemGranularity)
	}
	return d
}

// residentBlock holds the SM-side state of one admitted block: its warp
// roster, its private shared-memory region, and the demand to refund on
// release.
type residentBlock struct {
	block   *Block
	demand  blockDemand
	warps   []*Warp
	smem    *Memory
	retired int
}

// subpartition is one of the four warp scheduler slots of an SM. It holds
// its striped warps in admission order; selection policy state lives in the
// per-subpartition selector.
type subpartition struct {
	warps []*Warp
}

// SM models one streaming multiprocessor: live capacity counters initialized
// from SmConfig, the set of resident blocks, and four subpartitions of warp
// slots. The GPU exclusively owns its SM array; schedulers hold only indices.
type SM struct {
	Index  int
	Config SmConfig

	FreeThreads int
	FreeWarps   int
	FreeRegs    int
	FreeSmem    int

	resident      map[int]*residentBlock
	residentOrder []int
	subparts      [NumSubpartitions]*subpartition
	selectors     [NumSubpartitions]warpSelector
	warpSeq       int
}

// NewSM creates an SM with all counters at full capacity.
func NewSM(index int, cfg SmConfig) *SM {
	sm := &SM{
		Index:       index,
		Config:      cfg,
		FreeThreads: cfg.MaxThreads,
		FreeWarps:   cfg.MaxWarps,
		FreeRegs:    cfg.RegFileSize,
		FreeSmem:    cfg.SmemBytes,
		resident:    make(map[int]*residentBlock),
	}
	for i := range sm.subparts {
		sm.subparts[i] = &subpartition{}
	}
	return sm
}

// setPolicy installs fresh per-subpartition warp selectors for a launch.
func (sm *SM) setPolicy(policy SchedulingPolicy) {
	for i := range sm.selectors {
		sm.selectors[i] = newWarpSelector(policy)
	}
}

// canAdmit reports whether every counter can accommodate the demand and the
// resident block count is below the hardware cap.
func (sm *SM) canAdmit(d blockDemand) bool {
	return len(sm.resident) < sm.Config.MaxBlocks &&
		d.threads <= sm.FreeThreads &&
		d.warps <= sm.FreeWarps &&
		d.regs <= sm.FreeRegs &&
		d.smem <= sm.FreeSmem
}

// TryAdmit attempts to place a block on this SM. On success all counters are
// decremented, the block's warp roster is materialized and striped across the
// subpartitions, and the block records its resident SM.
//
// ages supplies monotonic admission stamps and launch-unique warp IDs.
func (sm *SM) TryAdmit(b *Block, res KernelResources, ages *warpAges) bool {
	d := demandFor(sm.Config, res)
	if !sm.canAdmit(d) {
		return false
	}

	sm.FreeThreads -= d.threads
	sm.FreeWarps -= d.warps
	sm.FreeRegs -= d.regs
	sm.FreeSmem -= d.smem
	if sm.FreeThreads < 0 || sm.FreeWarps < 0 || sm.FreeRegs < 0 || sm.FreeSmem < 0 {
		panic(fmt.Sprintf("SM %d: counter went negative admitting block %d", sm.Index, b.ID))
	}

	rb := &residentBlock{block: b, demand: d}
	if res.SmemBytes > 0 {
		rb.smem = NewMemory(int64(d.smem))
	} else {
		rb.smem = NewMemory(int64(sm.Config.SmemBytes))
	}
	for i := 0; i < d.warps; i++ {
		lanes := res.ThreadsPerBlock - i*WarpSize
		if lanes > WarpSize {
			lanes = WarpSize
		}
		w := &Warp{
			ID:          ages.nextWarpID(),
			BlockID:     b.ID,
			Age:         ages.nextAge(),
			State:       WarpReady,
			ActiveLanes: lanes,
			baseThread:  i * WarpSize,
		}
		rb.warps = append(rb.warps, w)
		sm.subparts[sm.warpSeq%NumSubpartitions].warps = append(sm.subparts[sm.warpSeq%NumSubpartitions].warps, w)
		sm.warpSeq++
	}

	sm.resident[b.ID] = rb
	sm.residentOrder = append(sm.residentOrder, b.ID)
	b.SM = sm.Index
	return true
}

// Release refunds the counters of a retired block and drops its warps from
// the subpartitions. Releasing an unknown block is a programmer error.
func (sm *SM) Release(blockID int) {
	rb, ok := sm.resident[blockID]
	if !ok {
		panic(fmt.Sprintf("SM %d: release of non-resident block %d", sm.Index, blockID))
	}
	sm.FreeThreads += rb.demand.threads
	sm.FreeWarps += rb.demand.warps
	sm.FreeRegs += rb.demand.regs
	sm.FreeSmem += rb.demand.smem
	if sm.FreeThreads > sm.Config.MaxThreads || sm.FreeWarps > sm.Config.MaxWarps ||
		sm.FreeRegs > sm.Config.RegFileSize || sm.FreeSmem > sm.Config.SmemBytes {
		panic(fmt.Sprintf("SM %d: counter overflow releasing block %d", sm.Index, blockID))
	}

	for _, sp := range sm.subparts {
		kept := sp.warps[:0]
		for _, w := range sp.warps {
			if w.BlockID != blockID {
				kept = append(kept, w)
			}
		}
		sp.warps = kept
	}
	delete(sm.resident, blockID)
	for i, id := range sm.residentOrder {
		if id == blockID {
			sm.residentOrder = append(sm.residentOrder[:i], sm.residentOrder[i+1:]...)
			break
		}
	}
}

// Headroom scores the SM's remaining capacity as the minimum remaining
// fraction across threads, warps, registers, and shared memory. The block
// scheduler admits to the SM with the highest headroom, ties broken by
// lowest SM index.
func (sm *SM) Headroom() float64 {
	score := float64(sm.FreeThreads) / float64(sm.Config.MaxThreads)
	if f := float64(sm.FreeWarps) / float64(sm.Config.MaxWarps); f < score {
		score = f
	}
	if f := float64(sm.FreeRegs) / float64(sm.Config.RegFileSize); f < score {
		score = f
	}
	if f := float64(sm.FreeSmem) / float64(sm.Config.SmemBytes); f < score {
		score = f
	}
	return score
}

// Idle reports whether no blocks are resident.
func (sm *SM) Idle() bool {
	return len(sm.resident) == 0
}

// activeCounts returns the resident non-retired warp and thread totals.
func (sm *SM) activeCounts() (warps, threads int) {
	for _, rb := range sm.resident {
		for _, w := range rb.warps {
			if w.State != WarpRetired {
				warps++
				threads += w.ActiveLanes
			}
		}
	}
	return warps, threads
}

// warpAges hands out launch-unique warp IDs and monotonic admission stamps.
type warpAges struct {
	nextID int
	age    int64
}

func (a *warpAges) nextWarpID() int {
	id := a.nextID
	a.nextID++
	return id
}

func (a *warpAges) nextAge() int64 {
	age := a.age
	a.age++
	return age
}
