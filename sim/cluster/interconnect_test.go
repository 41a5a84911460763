package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransfer_IntraNode: 1 GiB between two GPUs of the
// same DGX node rides NVLink at ~899 GB/s effective.
func TestTransfer_IntraNode(t *testing.T) {
	c := NewH100DGX(2)
	stats, err := c.Transfer(DeviceID{0, 0}, DeviceID{0, 1}, 1<<30)
	require.NoError(t, err)

	assert.InDelta(t, 1193, stats.TimeUs, 2)
	assert.InDelta(t, 899, stats.EffectiveBandwidthGBps, 1)
	assert.Greater(t, stats.Efficiency, 0.99)
}

// TestTransfer_InterNode: 1 GiB across nodes is bound by
// the 50 GB/s fabric share with both NVLink hops' latencies added.
func TestTransfer_InterNode(t *testing.T) {
	c := NewH100DGX(2)
	stats, err := c.Transfer(DeviceID{0, 0}, DeviceID{1, 0}, 1<<30)
	require.NoError(t, err)

	assert.InDelta(t, 21480, stats.TimeUs, 2)
	assert.InDelta(t, 50, stats.EffectiveBandwidthGBps, 0.1)
}

// TestTransfer_TimeMonotonicInSize checks that transfer time never
// decreases with message size and never undercuts link latency.
func TestTransfer_TimeMonotonicInSize(t *testing.T) {
	c := NewH100DGX(2)
	pairs := [][2]DeviceID{
		{{0, 0}, {0, 7}},
		{{0, 3}, {1, 5}},
	}
	for _, pair := range pairs {
		prev := -1.0
		for _, bytes := range []int64{0, 1, 1 << 10, 1 << 20, 1 << 30, 1 << 34} {
			stats, err := c.Transfer(pair[0], pair[1], bytes)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, stats.TimeUs, prev, "%s->%s at %d bytes", pair[0], pair[1], bytes)
			assert.GreaterOrEqual(t, stats.TimeUs, c.NVLink.LatencyUs)
			prev = stats.TimeUs
		}
	}
}

func TestTransfer_RoutesByNode(t *testing.T) {
	c := NewH100DGX(2)
	intra, err := c.Transfer(DeviceID{1, 2}, DeviceID{1, 6}, 1<<26)
	require.NoError(t, err)
	inter, err := c.Transfer(DeviceID{0, 2}, DeviceID{1, 2}, 1<<26)
	require.NoError(t, err)
	assert.Less(t, intra.TimeUs, inter.TimeUs)
}

func TestTransfer_InvalidDevice(t *testing.T) {
	c := NewH100DGX(2)
	cases := []DeviceID{
		{Node: -1, GPU: 0},
		{Node: 2, GPU: 0},
		{Node: 0, GPU: 8},
		{Node: 0, GPU: -1},
	}
	for _, d := range cases {
		_, err := c.Transfer(d, DeviceID{0, 0}, 1024)
		assert.Error(t, err, "src %s", d)
		_, err = c.Transfer(DeviceID{0, 0}, d, 1024)
		assert.Error(t, err, "dst %s", d)
	}
}

func TestTransfer_NegativeBytes(t *testing.T) {
	c := NewH100DGX(2)
	_, err := c.Transfer(DeviceID{0, 0}, DeviceID{0, 1}, -1)
	assert.Error(t, err)
}

func TestLink_TransferTimeUs(t *testing.T) {
	l := Link{BandwidthGBps: 100, LatencyUs: 2}
	// 1e9 bytes at 100 GB/s = 10 ms.
	assert.InDelta(t, 10002, l.TransferTimeUs(1_000_000_000), 1e-6)
	// Zero bytes costs exactly the latency.
	assert.InDelta(t, 2, l.TransferTimeUs(0), 1e-12)
}
