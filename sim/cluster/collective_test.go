package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAllReduce_Ring_DGX2: a 1 GiB ring all-reduce over
// the 16 GPUs of a two-node DGX runs at fabric speed with >0.99 efficiency.
func TestAllReduce_Ring_DGX2(t *testing.T) {
	c := NewH100DGX(2)
	stats, err := c.AllReduce(1<<30, AlgorithmRing)
	require.NoError(t, err)

	assert.Equal(t, 16, stats.Participants)
	assert.InEpsilon(t, 40330, stats.TimeUs, 0.005)
	assert.Greater(t, stats.Efficiency, 0.99)
}

func TestAllReduce_NonDecreasingInBytesAndN(t *testing.T) {
	for _, algo := range []Algorithm{AlgorithmRing, AlgorithmTree, AlgorithmDirect} {
		prev := -1.0
		for _, bytes := range []int64{1 << 10, 1 << 20, 1 << 30} {
			stats, err := NewH100DGX(2).AllReduce(bytes, algo)
			require.NoError(t, err)
			assert.Greater(t, stats.TimeUs, prev, "%s at %d bytes", algo, bytes)
			prev = stats.TimeUs
		}

		prev = -1.0
		for _, nodes := range []int{1, 2, 4} {
			stats, err := NewH100DGX(nodes).AllReduce(1<<30, algo)
			require.NoError(t, err)
			assert.Greater(t, stats.TimeUs, prev, "%s with %d nodes", algo, nodes)
			prev = stats.TimeUs
		}
	}
}

func TestAllReduce_SingleNodeUsesNVLink(t *testing.T) {
	c := NewH100DGX(1)
	stats, err := c.AllReduce(1<<30, AlgorithmRing)
	require.NoError(t, err)

	// 2*(N-1)/N * 1 GiB at 900 GB/s plus 14 hops of latency.
	assert.Equal(t, 8, stats.Participants)
	assert.InEpsilon(t, 2101, stats.TimeUs, 0.01)
	assert.Greater(t, stats.Efficiency, 0.99)
}

func TestAllReduce_TreeFasterThanDirectForSmallMessages(t *testing.T) {
	c := NewH100DGX(2)
	tree, err := c.AllReduce(1<<10, AlgorithmTree)
	require.NoError(t, err)
	direct, err := c.AllReduce(1<<10, AlgorithmDirect)
	require.NoError(t, err)
	// log2(16)=4 rounds beat 15 serial exchanges.
	assert.Less(t, tree.TimeUs, direct.TimeUs)
}

func TestAllReduce_UnknownAlgorithm(t *testing.T) {
	_, err := NewH100DGX(1).AllReduce(1024, Algorithm("butterfly"))
	assert.Error(t, err)
}

func TestAllGather_RingCost(t *testing.T) {
	c := NewH100DGX(2)
	stats, err := c.AllGather(1 << 30)
	require.NoError(t, err)

	// 15 steps of a full message over the 50 GB/s fabric path.
	link := c.bottleneck()
	want := 15 * (link.dataTimeUs(float64(1<<30)) + link.LatencyUs)
	assert.InDelta(t, want, stats.TimeUs, 1e-6)
	assert.Equal(t, 16, stats.Participants)
	assert.Greater(t, stats.Efficiency, 0.99)
}

func TestBroadcast_TreeCost(t *testing.T) {
	single := NewH100DGX(1)
	stats, err := single.Broadcast(1 << 30)
	require.NoError(t, err)
	// ceil(log2(8)) = 3 rounds over NVLink.
	want := 3 * (single.NVLink.LatencyUs + single.NVLink.dataTimeUs(float64(1<<30)))
	assert.InDelta(t, want, stats.TimeUs, 1e-6)

	multi := NewH100DGX(2)
	mstats, err := multi.Broadcast(1 << 30)
	require.NoError(t, err)
	// The inter-node tier is added on top of the intra-node tier.
	assert.Greater(t, mstats.TimeUs, stats.TimeUs)
}

func TestCollectives_PureFunctions(t *testing.T) {
	c := NewH100DGX(2)
	first, err := c.AllReduce(1<<28, AlgorithmTree)
	require.NoError(t, err)
	second, err := c.AllReduce(1<<28, AlgorithmTree)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCeilLog2(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4}
	for n, want := range cases {
		assert.Equal(t, want, ceilLog2(n), "ceilLog2(%d)", n)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, name := range []string{"ring", "tree", "direct"} {
		algo, err := ParseAlgorithm(name)
		require.NoError(t, err)
		assert.EqualValues(t, name, algo)
	}
	_, err := ParseAlgorithm("hypercube")
	assert.Error(t, err)
}
