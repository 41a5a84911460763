// Package cluster extends the single-GPU simulator to multi-GPU topologies
// connected by two interconnect classes, and scores transfers and collective
// operations with an analytic cost model. Collective-timing functions are
// pure: same inputs, same outputs.
package cluster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gpusim/gpusim/sim"
)

// Topology describes a cluster: nodes times GPUs per node, with the
// intra-node and inter-node link parameters.
type Topology struct {
	Nodes       int  `yaml:"nodes"`
	GPUsPerNode int  `yaml:"gpus_per_node"`
	NVLink      Link `yaml:"nvlink"`
	InfiniBand  Link `yaml:"infiniband"`
}

// Validate checks the topology's geometry and link parameters.
func (t Topology) Validate() error {
	if t.Nodes < 1 || t.GPUsPerNode < 1 {
		return fmt.Errorf("topology: need at least 1 node and 1 GPU per node, got %dx%d", t.Nodes, t.GPUsPerNode)
	}
	if t.NVLink.BandwidthGBps <= 0 || t.NVLink.LatencyUs < 0 {
		return fmt.Errorf("topology: invalid NVLink parameters %+v", t.NVLink)
	}
	if t.Nodes > 1 && (t.InfiniBand.BandwidthGBps <= 0 || t.InfiniBand.LatencyUs < 0) {
		return fmt.Errorf("topology: invalid InfiniBand parameters %+v", t.InfiniBand)
	}
	return nil
}

// LoadTopology reads a Topology from a YAML file. Omitted fields default to
// the DGX H100 values.
func LoadTopology(path string) (Topology, error) {
	topo := DGXH100Topology(2)
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read topology: %w", err)
	}
	if err := yaml.Unmarshal(data, &topo); err != nil {
		return Topology{}, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if err := topo.Validate(); err != nil {
		return Topology{}, err
	}
	return topo, nil
}

// DGXH100Topology returns the DGX H100 topology for the given node count:
// 8 GPUs per node, NVLink 4 at 900 GB/s, and a 50 GB/s per-GPU InfiniBand
// fabric share.
func DGXH100Topology(nodes int) Topology {
	return Topology{
		Nodes:       nodes,
		GPUsPerNode: 8,
		NVLink:      Link{BandwidthGBps: 900, LatencyUs: 1},
		InfiniBand:  Link{BandwidthGBps: 50, LatencyUs: 3},
	}
}

// Cluster is a pool of simulated GPUs joined by the topology's links. GPUs
// are materialized lazily per device on first launch; transfer and
// collective scoring never touches them.
type Cluster struct {
	Topology
	hw   sim.HardwareSpec
	gpus map[DeviceID]*sim.GPU
}

// New builds a cluster from a topology and the per-device hardware spec.
func New(topo Topology, hw sim.HardwareSpec) (*Cluster, error) {
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	if err := hw.Validate(); err != nil {
		return nil, err
	}
	return &Cluster{
		Topology: topo,
		hw:       hw,
		gpus:     make(map[DeviceID]*sim.GPU),
	}, nil
}

// NewH100DGX creates the DGX H100 preset cluster with the given node count.
func NewH100DGX(nodes int) *Cluster {
	c, err := New(DGXH100Topology(nodes), sim.H100Spec())
	if err != nil {
		panic(err)
	}
	return c
}

// NumDevices returns the total GPU count.
func (c *Cluster) NumDevices() int {
	return c.Nodes * c.GPUsPerNode
}

// Devices lists every DeviceID in (node, gpu) order.
func (c *Cluster) Devices() []DeviceID {
	out := make([]DeviceID, 0, c.NumDevices())
	for n := 0; n < c.Nodes; n++ {
		for g := 0; g < c.GPUsPerNode; g++ {
			out = append(out, DeviceID{Node: n, GPU: g})
		}
	}
	return out
}

func (c *Cluster) validateDevice(d DeviceID) error {
	if d.Node < 0 || d.Node >= c.Nodes || d.GPU < 0 || d.GPU >= c.GPUsPerNode {
		return fmt.Errorf("invalid device %s: cluster is %d nodes x %d GPUs", d, c.Nodes, c.GPUsPerNode)
	}
	return nil
}

func errNegativeBytes(bytes int64) error {
	return fmt.Errorf("transfer size must be >= 0, got %d", bytes)
}

// Device returns the simulated GPU behind a DeviceID, creating it on first
// use.
func (c *Cluster) Device(d DeviceID) (*sim.GPU, error) {
	if err := c.validateDevice(d); err != nil {
		return nil, err
	}
	gpu, ok := c.gpus[d]
	if !ok {
		gpu = sim.NewGPU(c.hw)
		c.gpus[d] = gpu
	}
	return gpu, nil
}

// LaunchKernelOn executes a kernel on the addressed device. Cross-device
// work is scored by the interconnect model only; kernel bodies never span
// devices.
func (c *Cluster) LaunchKernelOn(d DeviceID, kernel sim.Kernel, cfg sim.LaunchConfig, policy sim.SchedulingPolicy) (sim.KernelStats, error) {
	gpu, err := c.Device(d)
	if err != nil {
		return sim.KernelStats{}, err
	}
	return gpu.LaunchKernel(kernel, cfg, policy)
}
