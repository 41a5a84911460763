package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeOccupancy_RegisterLimited: a 128-thread block at 32
// regs/thread bounds threads, warps, and registers at 16 each, and the
// label resolves to the register file.
func TestComputeOccupancy_RegisterLimited(t *testing.T) {
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 128,
		RegsPerThread:   32,
	})
	require.NoError(t, err)
	assert.Equal(t, 16, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterRegisters, occ.Limiter)
	assert.Equal(t, 4, occ.WarpsPerBlock)
	assert.InDelta(t, 1.0, occ.Theoretical, 1e-9)
}

// TestComputeOccupancy_SmemLimited: a 1024-thread block asking for
// 200 KB of shared memory fits once against the H100's 228 KiB carveout.
func TestComputeOccupancy_SmemLimited(t *testing.T) {
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 1024,
		SmemBytes:       200_000,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterSmem, occ.Limiter)
	assert.InDelta(t, 0.5, occ.Theoretical, 1e-9)
}

// TestComputeOccupancy_FullRegisterFile: a full 1024-thread block whose
// register demand exactly fills the file still launches with one resident
// block.
func TestComputeOccupancy_FullRegisterFile(t *testing.T) {
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 1024,
		RegsPerThread:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterRegisters, occ.Limiter)
	assert.GreaterOrEqual(t, occ.MaxBlocksPerSM, 1)
}

func TestComputeOccupancy_Unlaunchable_RegisterOverflow(t *testing.T) {
	// 1024 threads x 128 regs = 131072 regs per block, twice the file.
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 1024,
		RegsPerThread:   128,
	})
	require.Error(t, err)
	assert.Equal(t, 0, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterRegisters, occ.Limiter)
	assert.Contains(t, err.Error(), LimiterRegisters)
}

func TestComputeOccupancy_Unlaunchable_SmemOverflow(t *testing.T) {
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 128,
		SmemBytes:       300_000,
	})
	require.Error(t, err)
	assert.Equal(t, 0, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterSmem, occ.Limiter)
}

func TestComputeOccupancy_HardwareCap(t *testing.T) {
	// Tiny blocks: threads bound 2048/32=64, warps 64/1=64, hardware 32.
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{ThreadsPerBlock: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterBlocks, occ.Limiter)
	assert.InDelta(t, 0.5, occ.Theoretical, 1e-9)
}

func TestComputeOccupancy_ZeroResourcesAreUnconstrained(t *testing.T) {
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{ThreadsPerBlock: 256})
	require.NoError(t, err)
	// threads 8, warps 8; registers and smem unconstrained.
	assert.Equal(t, 8, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterWarps, occ.Limiter)
}

func TestComputeOccupancy_GranularityRounding(t *testing.T) {
	// 65 regs x 32 threads = 2080, rounded up to 2304 by the 256 granularity:
	// 65536 / 2304 = 28 blocks, where the unrounded demand would allow 31.
	occ, err := ComputeOccupancy(H100SmConfig(), KernelResources{
		ThreadsPerBlock: 32,
		RegsPerThread:   65,
	})
	require.NoError(t, err)
	assert.Equal(t, 28, occ.MaxBlocksPerSM)
	assert.Equal(t, LimiterRegisters, occ.Limiter)
}

// TestComputeOccupancy_Bounds sweeps the input space: every valid input
// yields a non-negative block count and an occupancy fraction in [0, 1].
func TestComputeOccupancy_Bounds(t *testing.T) {
	configs := []SmConfig{H100SmConfig(), A100SmConfig()}
	for _, cfg := range configs {
		for _, threads := range []int{1, 31, 32, 33, 128, 256, 512, 1024} {
			for _, regs := range []int{0, 16, 32, 64, 128, 255} {
				for _, smem := range []int{0, 1, 1024, 48 * 1024, 160 * 1024} {
					occ, _ := ComputeOccupancy(cfg, KernelResources{
						ThreadsPerBlock: threads,
						RegsPerThread:   regs,
						SmemBytes:       smem,
					})
					assert.GreaterOrEqual(t, occ.MaxBlocksPerSM, 0)
					assert.GreaterOrEqual(t, occ.Theoretical, 0.0)
					assert.LessOrEqual(t, occ.Theoretical, 1.0)
				}
			}
		}
	}
}

func TestComputeOccupancy_A100SmallerSmem(t *testing.T) {
	// 100 KB per block: two blocks fit the H100's 228 KiB but only one fits
	// the A100's 164 KiB.
	res := KernelResources{ThreadsPerBlock: 256, SmemBytes: 100_000}
	h, err := ComputeOccupancy(H100SmConfig(), res)
	require.NoError(t, err)
	a, err := ComputeOccupancy(A100SmConfig(), res)
	require.NoError(t, err)
	assert.Equal(t, 2, h.MaxBlocksPerSM)
	assert.Equal(t, 1, a.MaxBlocksPerSM)
	assert.Equal(t, LimiterSmem, a.Limiter)
}

func TestRoundUp(t *testing.T) {
	assert.Equal(t, 0, roundUp(0, 256))
	assert.Equal(t, 256, roundUp(1, 256))
	assert.Equal(t, 256, roundUp(256, 256))
	assert.Equal(t, 512, roundUp(257, 256))
	assert.Equal(t, 200_064, roundUp(200_000, 128))
}
