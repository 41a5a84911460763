package cluster

import (
	"fmt"
	"math/bits"
)

// CollectiveStats scores one collective operation over every device in the
// cluster.
type CollectiveStats struct {
	Operation              string
	Algorithm              Algorithm
	Participants           int
	TimeUs                 float64
	EffectiveBandwidthGBps float64
	// Efficiency compares the achieved time against the serialization lower
	// bound on the bottleneck tier: 2*(N-1)/N * bytes/bandwidth for
	// all-reduce, (N-1) * bytes/bandwidth for all-gather, and
	// bytes/bandwidth for broadcast.
	Efficiency float64
}

// ceilLog2 returns ceil(log2(n)) for n >= 1.
func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// bottleneck returns the link that bounds a communicator spanning the whole
// cluster: the cross-node path when there is more than one node, NVLink
// otherwise.
func (c *Cluster) bottleneck() Link {
	if c.Nodes > 1 {
		return c.route(DeviceID{Node: 0}, DeviceID{Node: 1})
	}
	return c.NVLink
}

func (c *Cluster) collective(op string, algo Algorithm, bytes int64, timeUs, boundUs float64) CollectiveStats {
	s := CollectiveStats{
		Operation:    op,
		Algorithm:    algo,
		Participants: c.NumDevices(),
		TimeUs:       timeUs,
	}
	if timeUs > 0 {
		s.EffectiveBandwidthGBps = effectiveGBps(bytes, timeUs)
		s.Efficiency = boundUs / timeUs
	} else {
		s.Efficiency = 1
	}
	return s
}

// AllReduce scores an all-reduce of bytes across every device.
//
// Tier formulae: the ring schedule is costed as a single flat ring over all
// N participants at the bottleneck tier, the way a node-spanning NCCL ring
// behaves. The tree schedule is costed per tier, intra-node over NVLink plus
// inter-node over the fabric path, summed. The direct all-to-all exchange is
// costed flat at the bottleneck tier.
func (c *Cluster) AllReduce(bytes int64, algo Algorithm) (CollectiveStats, error) {
	if bytes < 0 {
		return CollectiveStats{}, errNegativeBytes(bytes)
	}
	n := c.NumDevices()
	link := c.bottleneck()
	boundUs := 2 * float64(n-1) / float64(n) * link.dataTimeUs(float64(bytes))

	var timeUs float64
	switch algo {
	case AlgorithmRing:
		steps := float64(2 * (n - 1))
		timeUs = steps*link.dataTimeUs(float64(bytes)/float64(n)) + steps*link.LatencyUs
	case AlgorithmTree:
		if c.Nodes > 1 {
			timeUs = treeAllReduceUs(c.GPUsPerNode, c.NVLink, bytes) +
				treeAllReduceUs(c.Nodes, c.route(DeviceID{Node: 0}, DeviceID{Node: 1}), bytes)
		} else {
			timeUs = treeAllReduceUs(n, c.NVLink, bytes)
		}
	case AlgorithmDirect:
		timeUs = float64(n-1) * (link.LatencyUs + link.dataTimeUs(float64(bytes)))
	default:
		return CollectiveStats{}, fmt.Errorf("unknown collective algorithm %q", algo)
	}
	return c.collective("all_reduce", algo, bytes, timeUs, boundUs), nil
}

// treeAllReduceUs is the binary-tree all-reduce cost over n ranks on one
// link: 2 * ceil(log2(n)) * (latency + bytes/bandwidth).
func treeAllReduceUs(n int, l Link, bytes int64) float64 {
	return 2 * float64(ceilLog2(n)) * (l.LatencyUs + l.dataTimeUs(float64(bytes)))
}

// AllGather scores a ring all-gather of bytes per rank across every device,
// costed as a flat ring at the bottleneck tier:
// (N-1) * (bytes/bandwidth + latency).
func (c *Cluster) AllGather(bytes int64) (CollectiveStats, error) {
	if bytes < 0 {
		return CollectiveStats{}, errNegativeBytes(bytes)
	}
	n := c.NumDevices()
	link := c.bottleneck()
	timeUs := float64(n-1) * (link.dataTimeUs(float64(bytes)) + link.LatencyUs)
	boundUs := float64(n-1) * link.dataTimeUs(float64(bytes))
	return c.collective("all_gather", AlgorithmRing, bytes, timeUs, boundUs), nil
}

// Broadcast scores a binary-tree broadcast of bytes from one root to every
// device: ceil(log2(N)) * (latency + bytes/bandwidth), costed per tier for
// multi-node clusters (intra-node over NVLink plus inter-node over the
// fabric path, summed).
func (c *Cluster) Broadcast(bytes int64) (CollectiveStats, error) {
	if bytes < 0 {
		return CollectiveStats{}, errNegativeBytes(bytes)
	}
	n := c.NumDevices()
	link := c.bottleneck()
	var timeUs float64
	if c.Nodes > 1 {
		cross := c.route(DeviceID{Node: 0}, DeviceID{Node: 1})
		timeUs = float64(ceilLog2(c.GPUsPerNode))*(c.NVLink.LatencyUs+c.NVLink.dataTimeUs(float64(bytes))) +
			float64(ceilLog2(c.Nodes))*(cross.LatencyUs+cross.dataTimeUs(float64(bytes)))
	} else {
		timeUs = float64(ceilLog2(n)) * (c.NVLink.LatencyUs + c.NVLink.dataTimeUs(float64(bytes)))
	}
	boundUs := link.dataTimeUs(float64(bytes))
	return c.collective("broadcast", AlgorithmTree, bytes, timeUs, boundUs), nil
}
