package sim

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/gpusim/gpusim/sim/trace"
)

// GPU models one device: an SM array owned exclusively by the GPU, sparse
// HBM and L2 stores, and the live-metrics publication path. SMs are created
// with the GPU and persist for its lifetime; launches run one at a time on
// the caller's goroutine.
type GPU struct {
	Spec HardwareSpec
	SMs  []*SM
	HBM  *Memory
	L2   *Memory

	// MetricsPath is where launch snapshots are published; empty selects
	// DefaultMetricsPath.
	MetricsPath string
	// TraceConfig enables warp-issue tracing for subsequent launches.
	TraceConfig trace.TraceConfig
	// Injector, when set, may stall issued warps. Used to exercise the
	// policy-dependent orderings of the warp schedulers.
	Injector StallInjector

	lastTrace *trace.ExecutionTrace
}

// NewGPU builds a device from a hardware spec. Panics on an invalid spec;
// presets are always valid.
func NewGPU(spec HardwareSpec) *GPU {
	if err := spec.Validate(); err != nil {
		panic(err)
	}
	g := &GPU{
		Spec: spec,
		HBM:  NewMemory(spec.HBMBytes),
		L2:   NewMemory(spec.L2Bytes),
	}
	for i := 0; i < spec.NumSMs; i++ {
		g.SMs = append(g.SMs, NewSM(i, spec.SM))
	}
	return g
}

// NewH100 creates an H100 device.
func NewH100() *GPU { return NewGPU(H100Spec()) }

// NewA100 creates an A100 device.
func NewA100() *GPU { return NewGPU(A100Spec()) }

// KernelStats summarizes one completed launch.
type KernelStats struct {
	LaunchID string
	Kernel   string
	Policy   string

	Blocks  int
	Warps   int
	Threads int
	Ticks   int64

	TheoreticalOccupancy float64
	OccupancyLimiter     string

	// Block-balance across the SM array: mean and standard deviation of
	// blocks executed per SM.
	BlocksPerSMMean   float64
	BlocksPerSMStdDev float64
}

// ComputeOccupancy runs the five-limiter analysis for a launch config on
// this GPU's SM class without executing anything.
func (g *GPU) ComputeOccupancy(cfg LaunchConfig) (Occupancy, error) {
	if err := cfg.Validate(); err != nil {
		return Occupancy{}, err
	}
	return ComputeOccupancy(g.Spec.SM, cfg.Resources())
}

// LaunchKernel executes the kernel over the grid with the given scheduling
// policy and returns aggregate stats. The launch boundary is where all
// external errors surface: invalid geometry, invalid policy, un-launchable
// kernels (occupancy zero, reported with the limiter label), and kernel body
// faults.
func (g *GPU) LaunchKernel(kernel Kernel, cfg LaunchConfig, policy SchedulingPolicy) (KernelStats, error) {
	if err := kernel.Validate(); err != nil {
		return KernelStats{}, err
	}
	if err := cfg.Validate(); err != nil {
		return KernelStats{}, fmt.Errorf("launch %q: %w", kernel.Name, err)
	}
	if err := policy.Validate(); err != nil {
		return KernelStats{}, fmt.Errorf("launch %q: %w", kernel.Name, err)
	}
	occ, err := ComputeOccupancy(g.Spec.SM, cfg.Resources())
	if err != nil {
		return KernelStats{}, fmt.Errorf("launch %q on %s: %w", kernel.Name, g.Spec.Name, err)
	}

	launchID := uuid.NewString()
	exec := newExecutor(g, kernel, cfg, occ, policy, launchID)
	g.lastTrace = exec.trace
	if err := exec.run(); err != nil {
		return KernelStats{}, fmt.Errorf("launch %q on %s: %w", kernel.Name, g.Spec.Name, err)
	}

	perSM := make([]float64, len(exec.blocksPerSM))
	for i, n := range exec.blocksPerSM {
		perSM[i] = float64(n)
	}
	stats := KernelStats{
		LaunchID:             launchID,
		Kernel:               kernel.Name,
		Policy:               policy.Label(),
		Blocks:               exec.total,
		Warps:                exec.total * occ.WarpsPerBlock,
		Threads:              exec.total * cfg.Block.Size(),
		Ticks:                exec.tick,
		TheoreticalOccupancy: occ.Theoretical,
		OccupancyLimiter:     occ.Limiter,
		BlocksPerSMMean:      stat.Mean(perSM, nil),
	}
	if len(perSM) > 1 {
		stats.BlocksPerSMStdDev = stat.StdDev(perSM, nil)
	}
	return stats, nil
}

// LastTrace returns the warp-issue trace of the most recent launch, or nil
// when tracing was disabled.
func (g *GPU) LastTrace() *trace.ExecutionTrace {
	if g.lastTrace == nil || !g.lastTrace.Enabled() {
		return nil
	}
	return g.lastTrace
}

// String identifies the device for logs.
func (g *GPU) String() string {
	return fmt.Sprintf("%s (%d SMs)", g.Spec.Name, g.Spec.NumSMs)
}
