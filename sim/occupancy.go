package sim

import "fmt"

// Limiter labels name the resource whose exhaustion bounds blocks per SM.
const (
	LimiterThreads   = "threads"
	LimiterWarps     = "warps"
	LimiterRegisters = "register file"
	LimiterSmem      = "shared memory"
	LimiterBlocks    = "blocks"
)

// Occupancy is the result of the five-limiter analysis for one kernel on one
// SM class.
type Occupancy struct {
	// MaxBlocksPerSM is the minimum of the five upper bounds.
	MaxBlocksPerSM int
	// Limiter names the binding constraint.
	Limiter string
	// Theoretical is resident warps over warp slots, in [0, 1].
	Theoretical float64
	// WarpsPerBlock is the warp footprint of one block.
	WarpsPerBlock int
}

// roundUp rounds v up to the next multiple of the allocation granularity g.
func roundUp(v, g int) int {
	if g <= 0 {
		return v
	}
	return (v + g - 1) / g * g
}

// ComputeOccupancy evaluates the five upper bounds on resident blocks per SM
// and identifies the binding one:
//
//  1. threads:       MaxThreads / ThreadsPerBlock
//  2. warps:         MaxWarps / WarpsPerBlock
//  3. register file: RegFileSize / roundUp(RegsPerThread*ThreadsPerBlock, RegGranularity)
//  4. shared memory: SmemBytes / roundUp(SmemBytes, SmemGranularity)
//  5. blocks:        MaxBlocks (hardware cap)
//
// Register and shared-memory bounds are unconstrained when the kernel demands
// none of the resource. Among tied bounds the label resolves to the most
// specific resource, evaluated in the order above with later winners on
// equality (so threads, warps, and registers all tied at 16 report "register
// file").
//
// A zero result means the kernel cannot launch on this SM class; the returned
// error carries the limiter name.
func ComputeOccupancy(cfg SmConfig, res KernelResources) (Occupancy, error) {
	if res.ThreadsPerBlock < 1 {
		return Occupancy{}, fmt.Errorf("invalid geometry: block must have at least 1 thread")
	}
	if res.ThreadsPerBlock > MaxThreadsPerBlock {
		return Occupancy{}, fmt.Errorf("invalid geometry: %d threads per block, max is %d",
			res.ThreadsPerBlock, MaxThreadsPerBlock)
	}

	warpsPerBlock := res.WarpsPerBlock()

	type bound struct {
		label  string
		blocks int
	}
	bounds := []bound{
		{LimiterThreads, cfg.MaxThreads / res.ThreadsPerBlock},
		{LimiterWarps, cfg.MaxWarps / warpsPerBlock},
	}
	if res.RegsPerThread > 0 {
		perBlockRegs := roundUp(res.RegsPerThread*res.ThreadsPerBlock, cfg.RegGranularity)
		bounds = append(bounds, bound{LimiterRegisters, cfg.RegFileSize / perBlockRegs})
	}
	if res.SmemBytes > 0 {
		perBlockSmem := roundUp(res.SmemBytes, cfg.SmemGranularity)
		bounds = append(bounds, bound{LimiterSmem, cfg.SmemBytes / perBlockSmem})
	}
	bounds = append(bounds, bound{LimiterBlocks, cfg.MaxBlocks})

	best := bounds[0]
	for _, b := range bounds[1:] {
		if b.blocks <= best.blocks {
			best = b
		}
	}

	occ := Occupancy{
		MaxBlocksPerSM: best.blocks,
		Limiter:        best.label,
		WarpsPerBlock:  warpsPerBlock,
	}
	occ.Theoretical = float64(best.blocks*warpsPerBlock) / float64(cfg.MaxWarps)
	if occ.Theoretical > 1 {
		occ.Theoretical = 1
	}
	if best.blocks == 0 {
		return occ, fmt.Errorf("kernel is un-launchable: %s limit allows zero blocks per SM", best.label)
	}
	return occ, nil
}
