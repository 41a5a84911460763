// cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpusim/gpusim/sim"
	"github.com/gpusim/gpusim/sim/trace"
)

var (
	gpuPreset    string
	hardwareFile string
	gridX        int
	gridY        int
	gridZ        int
	blockX       int
	blockY       int
	blockZ       int
	regsPerThr   int
	smemBytes    int
	policyName   string
	metricsPath  string
	traceLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the vec_add demo kernel on a simulated GPU",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		gpu, err := buildGPU()
		if err != nil {
			return err
		}
		gpu.MetricsPath = metricsPath
		if !trace.IsValidTraceLevel(traceLevel) {
			return fmt.Errorf("unknown trace level %q", traceLevel)
		}
		gpu.TraceConfig = trace.TraceConfig{Level: trace.TraceLevel(traceLevel)}

		policy, err := sim.ParsePolicy(policyName)
		if err != nil {
			return err
		}
		cfg := sim.LaunchConfig{
			Grid:          sim.Dim3{X: gridX, Y: gridY, Z: gridZ},
			Block:         sim.Dim3{X: blockX, Y: blockY, Z: blockZ},
			RegsPerThread: regsPerThr,
			SmemBytes:     smemBytes,
		}

		n := cfg.Grid.Size() * cfg.Block.Size()
		aOff, bOff, outOff := demoOffsets(n)
		for i := 0; i < n; i++ {
			if err := gpu.HBM.WriteFloat32(aOff+int64(i)*4, float32(i)); err != nil {
				return err
			}
			if err := gpu.HBM.WriteFloat32(bOff+int64(i)*4, float32(2*i)); err != nil {
				return err
			}
		}

		stats, err := gpu.LaunchKernel(sim.VecAdd(n, aOff, bOff, outOff), cfg, policy)
		if err != nil {
			return err
		}
		printStats(stats)
		if t := gpu.LastTrace(); t != nil {
			s := t.Summarize()
			fmt.Printf("Issues               : %d over %d ticks\n", s.TotalIssues, s.LastTick)
		}
		return nil
	},
}

func buildGPU() (*sim.GPU, error) {
	if hardwareFile != "" {
		spec, err := sim.LoadHardwareSpec(hardwareFile)
		if err != nil {
			return nil, err
		}
		return sim.NewGPU(spec), nil
	}
	switch gpuPreset {
	case "h100":
		return sim.NewH100(), nil
	case "a100":
		return sim.NewA100(), nil
	default:
		return nil, fmt.Errorf("unknown GPU preset %q (want h100 or a100)", gpuPreset)
	}
}

// demoOffsets lays the demo's three float32 arrays out back to back in HBM.
func demoOffsets(n int) (a, b, out int64) {
	size := int64(n) * 4
	return 0, size, 2 * size
}

func printStats(stats sim.KernelStats) {
	fmt.Println("=== Kernel Launch Stats ===")
	fmt.Printf("Launch               : %s\n", stats.LaunchID)
	fmt.Printf("Kernel               : %s (%s)\n", stats.Kernel, stats.Policy)
	fmt.Printf("Blocks/Warps/Threads : %d / %d / %d\n", stats.Blocks, stats.Warps, stats.Threads)
	fmt.Printf("Ticks                : %d\n", stats.Ticks)
	fmt.Printf("Occupancy            : %.2f (limited by %s)\n", stats.TheoreticalOccupancy, stats.OccupancyLimiter)
	fmt.Printf("Blocks per SM        : %.2f +/- %.2f\n", stats.BlocksPerSMMean, stats.BlocksPerSMStdDev)
}

func init() {
	runCmd.Flags().StringVar(&gpuPreset, "gpu", "h100", "GPU preset (h100, a100)")
	runCmd.Flags().StringVar(&hardwareFile, "hardware", "", "YAML hardware spec overriding the preset")
	runCmd.Flags().IntVar(&gridX, "grid-x", 8, "Grid X dimension")
	runCmd.Flags().IntVar(&gridY, "grid-y", 1, "Grid Y dimension")
	runCmd.Flags().IntVar(&gridZ, "grid-z", 1, "Grid Z dimension")
	runCmd.Flags().IntVar(&blockX, "block-x", 128, "Block X dimension")
	runCmd.Flags().IntVar(&blockY, "block-y", 1, "Block Y dimension")
	runCmd.Flags().IntVar(&blockZ, "block-z", 1, "Block Z dimension")
	runCmd.Flags().IntVar(&regsPerThr, "regs", 32, "Registers per thread")
	runCmd.Flags().IntVar(&smemBytes, "smem", 0, "Shared memory bytes per block")
	runCmd.Flags().StringVar(&policyName, "policy", "lrr", "Warp scheduling policy (lrr, gto, two-level)")
	runCmd.Flags().StringVar(&metricsPath, "metrics", sim.DefaultMetricsPath, "Live metrics snapshot path")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Warp issue trace level (none, issues)")

	rootCmd.AddCommand(runCmd)
}
