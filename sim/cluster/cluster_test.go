package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpusim/gpusim/sim"
)

func TestNewH100DGX_Preset(t *testing.T) {
	c := NewH100DGX(2)
	assert.Equal(t, 2, c.Nodes)
	assert.Equal(t, 8, c.GPUsPerNode)
	assert.Equal(t, 16, c.NumDevices())
	assert.InDelta(t, 900.0, c.NVLink.BandwidthGBps, 1e-9)
	assert.InDelta(t, 50.0, c.InfiniBand.BandwidthGBps, 1e-9)
}

func TestCluster_DevicesEnumeration(t *testing.T) {
	c := NewH100DGX(2)
	devices := c.Devices()
	require.Len(t, devices, 16)
	assert.Equal(t, DeviceID{0, 0}, devices[0])
	assert.Equal(t, DeviceID{0, 7}, devices[7])
	assert.Equal(t, DeviceID{1, 0}, devices[8])
	assert.Equal(t, DeviceID{1, 7}, devices[15])
}

func TestCluster_DeviceLazilyCreatedAndCached(t *testing.T) {
	c := NewH100DGX(1)
	first, err := c.Device(DeviceID{0, 3})
	require.NoError(t, err)
	second, err := c.Device(DeviceID{0, 3})
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = c.Device(DeviceID{1, 0})
	assert.Error(t, err)
}

func TestCluster_LaunchKernelOn(t *testing.T) {
	c := NewH100DGX(1)
	dev := DeviceID{0, 2}
	gpu, err := c.Device(dev)
	require.NoError(t, err)
	gpu.MetricsPath = filepath.Join(t.TempDir(), "live.json")

	seen := map[int]int{}
	k := sim.Kernel{
		Name: "mark",
		Body: func(ctx *sim.ThreadCtx) error {
			seen[ctx.GlobalID()]++
			return nil
		},
	}
	cfg := sim.LaunchConfig{Grid: sim.Dim1(4), Block: sim.Dim1(64), RegsPerThread: 32}
	stats, err := c.LaunchKernelOn(dev, k, cfg, sim.GTO())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Blocks)
	assert.Len(t, seen, 256)

	_, err = c.LaunchKernelOn(DeviceID{5, 0}, k, cfg, sim.GTO())
	assert.Error(t, err)
}

func TestTopology_Validate(t *testing.T) {
	require.NoError(t, DGXH100Topology(2).Validate())

	bad := DGXH100Topology(2)
	bad.Nodes = 0
	assert.Error(t, bad.Validate())

	bad = DGXH100Topology(2)
	bad.NVLink.BandwidthGBps = 0
	assert.Error(t, bad.Validate())

	bad = DGXH100Topology(2)
	bad.InfiniBand.BandwidthGBps = -1
	assert.Error(t, bad.Validate())

	// Single-node clusters never touch the fabric; its parameters may be zero.
	single := DGXH100Topology(1)
	single.InfiniBand = Link{}
	assert.NoError(t, single.Validate())
}

func TestLoadTopology_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes: 4
gpus_per_node: 4
nvlink:
  bandwidth_gbps: 600
  latency_us: 1.5
`), 0o644))

	topo, err := LoadTopology(path)
	require.NoError(t, err)
	assert.Equal(t, 4, topo.Nodes)
	assert.Equal(t, 4, topo.GPUsPerNode)
	assert.InDelta(t, 600.0, topo.NVLink.BandwidthGBps, 1e-9)
	// The fabric keeps the DGX defaults.
	assert.InDelta(t, 50.0, topo.InfiniBand.BandwidthGBps, 1e-9)
}

func TestLoadTopology_Errors(t *testing.T) {
	_, err := LoadTopology(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: -2"), 0o644))
	_, err = LoadTopology(path)
	assert.Error(t, err)
}
