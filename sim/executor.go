package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gpusim/gpusim/sim/trace"
)

// executor drives one kernel launch: it admits pending blocks onto SMs in
// grid order, ticks the warp schedulers across all SMs until blocks retire,
// releases retired blocks, and publishes a metrics snapshot after each
// completion. The whole loop is single-threaded and deterministic.
type executor struct {
	gpu      *GPU
	kernel   Kernel
	cfg      LaunchConfig
	res      KernelResources
	occ      Occupancy
	policy   SchedulingPolicy
	launchID string

	pending    []*Block
	total      int
	blocksDone int
	tick       int64
	ages       warpAges

	publisher *Publisher
	trace     *trace.ExecutionTrace
	injector  StallInjector

	blocksPerSM []int
}

func newExecutor(gpu *GPU, kernel Kernel, cfg LaunchConfig, occ Occupancy, policy SchedulingPolicy, launchID string) *executor {
	e := &executor{
		gpu:         gpu,
		kernel:      kernel,
		cfg:         cfg,
		res:         cfg.Resources(),
		occ:         occ,
		policy:      policy,
		launchID:    launchID,
		pending:     enumerateGrid(cfg.Grid),
		publisher:   NewPublisher(gpu.MetricsPath),
		trace:       trace.NewExecutionTrace(gpu.TraceConfig, policy.Label()),
		injector:    gpu.Injector,
		blocksPerSM: make([]int, len(gpu.SMs)),
	}
	e.total = len(e.pending)
	for _, sm := range gpu.SMs {
		sm.setPolicy(policy)
	}
	return e
}

// run executes the launch to completion. Kernel body errors abort the launch
// but leave the SMs fully drained, so a failed launch never strands resident
// blocks.
func (e *executor) run() error {
	logrus.Infof("launch %s: kernel %q grid=%s block=%s policy=%s occupancy=%.2f (%s)",
		e.launchID, e.kernel.Name, e.cfg.Grid, e.cfg.Block, e.policy.Label(), e.occ.Theoretical, e.occ.Limiter)

	err := e.loop()
	if err != nil {
		e.drain()
		return err
	}
	e.publish(StatusComplete)
	logrus.Infof("launch %s: complete after %d ticks, %d blocks", e.launchID, e.tick, e.blocksDone)
	return nil
}

func (e *executor) loop() error {
	for e.blocksDone < e.total {
		e.admitAll()
		if e.allIdle() {
			// Occupancy >= 1 guarantees the head block fits an empty SM.
			panic(fmt.Sprintf("launch %s: no block admitted with %d pending", e.launchID, len(e.pending)))
		}
		retired, err := e.runUntilRetire()
		if err != nil {
			return err
		}
		for _, b := range retired {
			e.gpu.SMs[b.SM].Release(b.ID)
			e.blocksDone++
			logrus.Debugf("launch %s: block %d (%s) retired on SM %d [%d/%d]",
				e.launchID, b.ID, b.Coord, b.SM, e.blocksDone, e.total)
			e.publish(StatusRunning)
		}
	}
	return nil
}

// admitAll pushes pending blocks onto SMs in strict grid order. Each step
// targets the SM with the highest headroom score (ties to the lowest index)
// among those that can hold the head block; when no SM can, control returns
// to let resident warps drain.
func (e *executor) admitAll() {
	for len(e.pending) > 0 {
		head := e.pending[0]
		target := e.pickSM()
		if target < 0 {
			return
		}
		if !e.gpu.SMs[target].TryAdmit(head, e.res, &e.ages) {
			panic(fmt.Sprintf("launch %s: SM %d rejected block %d after capacity check", e.launchID, target, head.ID))
		}
		e.blocksPerSM[target]++
		e.pending = e.pending[1:]
		logrus.Debugf("launch %s: block %d (%s) admitted to SM %d", e.launchID, head.ID, head.Coord, target)
	}
}

// pickSM returns the admitting SM index for the head block, or -1.
func (e *executor) pickSM() int {
	d := demandFor(e.gpu.Spec.SM, e.res)
	best := -1
	bestScore := -1.0
	for _, sm := range e.gpu.SMs {
		if !sm.canAdmit(d) {
			continue
		}
		if score := sm.Headroom(); score > bestScore {
			best = sm.Index
			bestScore = score
		}
	}
	return best
}

// runUntilRetire advances warp ticks until at least one resident block has
// every warp retired, and returns the retired blocks in SM-index order and,
// within one SM, in admission order.
func (e *executor) runUntilRetire() ([]*Block, error) {
	for {
		e.tick++
		issued := 0
		stalled := 0
		for _, sm := range e.gpu.SMs {
			for _, rb := range sm.resident {
				for _, w := range rb.warps {
					w.recoverStall()
				}
			}
		}
		for _, sm := range e.gpu.SMs {
			for spIdx, sp := range sm.subparts {
				w := sm.selectors[spIdx].Select(sp)
				if w == nil {
					continue
				}
				issued++
				if err := e.execWarp(sm, w); err != nil {
					return nil, fmt.Errorf("kernel %q: %w", e.kernel.Name, err)
				}
				w.IP++
				if w.IP >= 1 {
					w.State = WarpRetired
					sm.resident[w.BlockID].retired++
				}
				if e.trace.Enabled() {
					e.trace.RecordIssue(trace.IssueRecord{
						Tick:         e.tick,
						SM:           sm.Index,
						Subpartition: spIdx,
						Warp:         w.ID,
						Block:        w.BlockID,
					})
				}
				if e.injector != nil {
					e.injector.AfterIssue(w, e.tick)
				}
			}
			for _, rb := range sm.resident {
				for _, w := range rb.warps {
					if w.State == WarpStalled {
						stalled++
					}
				}
			}
		}

		if issued == 0 && stalled == 0 {
			panic(fmt.Sprintf("launch %s: no warp issued and none stalled at tick %d", e.launchID, e.tick))
		}

		var retired []*Block
		for _, sm := range e.gpu.SMs {
			for _, id := range sm.residentOrder {
				rb := sm.resident[id]
				if !rb.block.Done && rb.retired == len(rb.warps) {
					rb.block.Done = true
					retired = append(retired, rb.block)
				}
			}
		}
		if len(retired) > 0 {
			return retired, nil
		}
	}
}

// execWarp invokes the kernel body once per active lane of the warp, in lane
// order. Masked lanes of a partial warp do not execute.
func (e *executor) execWarp(sm *SM, w *Warp) error {
	rb := sm.resident[w.BlockID]
	block := rb.block
	bd := e.cfg.Block
	for lane := 0; lane < w.ActiveLanes; lane++ {
		t := w.baseThread + lane
		ctx := ThreadCtx{
			ThreadIdx: Dim3{
				X: t % bd.X,
				Y: (t / bd.X) % bd.Y,
				Z: t / (bd.X * bd.Y),
			},
			BlockIdx: block.Coord,
			BlockDim: bd,
			GridDim:  e.cfg.Grid,
			Gmem:     e.gpu.HBM,
			L2:       e.gpu.L2,
			Smem:     rb.smem,
		}
		if err := e.kernel.Body(&ctx); err != nil {
			return err
		}
	}
	return nil
}

// drain releases every resident block after a kernel fault so the GPU is
// reusable for the next launch.
func (e *executor) drain() {
	for _, sm := range e.gpu.SMs {
		for _, id := range append([]int(nil), sm.residentOrder...) {
			sm.Release(id)
		}
	}
}

func (e *executor) allIdle() bool {
	for _, sm := range e.gpu.SMs {
		if !sm.Idle() {
			return false
		}
	}
	return true
}

// publish assembles and writes one live-metrics snapshot. Publication
// failures are logged and ignored; they never stop the simulation.
func (e *executor) publish(status string) {
	if e.publisher == nil {
		return
	}
	snap := Snapshot{
		LaunchID:    e.launchID,
		Kernel:      e.kernel.Name,
		Policy:      e.policy.Label(),
		Status:      status,
		Grid:        e.cfg.Grid.array(),
		Block:       e.cfg.Block.array(),
		BlocksDone:  e.blocksDone,
		BlocksTotal: e.total,
		Occupancy:   e.occ.Theoretical,
		Limiter:     e.occ.Limiter,
		SMActive:    make([]bool, len(e.gpu.SMs)),
	}
	for i, sm := range e.gpu.SMs {
		snap.SMActive[i] = !sm.Idle()
		warps, threads := sm.activeCounts()
		snap.Warps += warps
		snap.Threads += threads
	}
	if err := e.publisher.Publish(snap); err != nil {
		logrus.Warnf("launch %s: metrics publish failed: %v", e.launchID, err)
	}
}
