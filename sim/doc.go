// Package sim models the execution of data-parallel kernels on an
// NVIDIA-class GPU: resource-aware occupancy analysis, block-to-SM
// assignment, and warp scheduling. It reproduces the resource accounting
// that governs real-world occupancy and throughput without attempting
// cycle-accurate instruction simulation.
//
// # Reading Guide
//
// Start with these files to understand the simulation core:
//   - occupancy.go: the five-limiter blocks-per-SM calculation
//   - sm.go: per-SM capacity counters and block admission
//   - warp_scheduler.go: the LRR, GTO, and two-level selection policies
//   - executor.go: the block-and-warp loop driving a launch
//
// # Architecture
//
// A GPU owns its SM array, sparse HBM and L2 stores, and the live-metrics
// publication path. LaunchKernel computes occupancy, admits grid blocks onto
// SMs in row-major order, ticks the warp schedulers until every block
// retires, and publishes an atomic snapshot after each completion. The whole
// core is single-threaded and deterministic: given the same inputs, a launch
// produces the same admission order, the same issue trace, and the same
// stats.
//
// Sub-packages extend the core:
//   - sim/cluster: multi-GPU topologies and the interconnect cost model
//   - sim/trace: warp-issue decision trace recording
//
// # Key Interfaces
//
// The extension points are small interfaces and value types:
//   - Kernel: a named per-thread body invoked once per thread via ThreadCtx
//   - SchedulingPolicy: selects and parameterizes the warp scheduler
//   - StallInjector: stalls issued warps to exercise scheduler orderings
//   - Publisher/Poller: the atomic-rename live metrics bus
package sim
