package cluster

// Link is one interconnect class modelled analytically as bandwidth plus a
// fixed per-message latency.
type Link struct {
	BandwidthGBps float64 `yaml:"bandwidth_gbps"`
	LatencyUs     float64 `yaml:"latency_us"`
}

// TransferTimeUs returns the point-to-point time in microseconds for a
// message of the given size over this link:
//
//	time = latency_us + (bytes / (bandwidth_GBps * 1e9)) * 1e6
func (l Link) TransferTimeUs(bytes int64) float64 {
	return l.LatencyUs + float64(bytes)/(l.BandwidthGBps*1e9)*1e6
}

// dataTimeUs is the serialization time alone, without the latency term.
func (l Link) dataTimeUs(bytes float64) float64 {
	return bytes / (l.BandwidthGBps * 1e9) * 1e6
}

// TransferStats scores one point-to-point transfer.
type TransferStats struct {
	TimeUs                 float64
	EffectiveBandwidthGBps float64
	// Efficiency is effective over peak bandwidth of the routed path.
	Efficiency float64
}

// effectiveGBps converts a message size and a time in µs to GB/s.
func effectiveGBps(bytes int64, timeUs float64) float64 {
	if timeUs <= 0 {
		return 0
	}
	return float64(bytes) / (timeUs * 1e-6) / 1e9
}

// route selects the path between two devices. Same-node pairs ride NVLink;
// cross-node pairs traverse NVLink egress, the InfiniBand fabric, and NVLink
// ingress: the three stage latencies add and the slowest stage bounds the
// bandwidth (the fabric, in practice).
func (c *Cluster) route(src, dst DeviceID) Link {
	if src.Node == dst.Node {
		return c.NVLink
	}
	bw := c.NVLink.BandwidthGBps
	if c.InfiniBand.BandwidthGBps < bw {
		bw = c.InfiniBand.BandwidthGBps
	}
	return Link{
		BandwidthGBps: bw,
		LatencyUs:     c.NVLink.LatencyUs + c.InfiniBand.LatencyUs + c.NVLink.LatencyUs,
	}
}

// Transfer scores a point-to-point copy of bytes from src to dst.
func (c *Cluster) Transfer(src, dst DeviceID, bytes int64) (TransferStats, error) {
	if err := c.validateDevice(src); err != nil {
		return TransferStats{}, err
	}
	if err := c.validateDevice(dst); err != nil {
		return TransferStats{}, err
	}
	if bytes < 0 {
		return TransferStats{}, errNegativeBytes(bytes)
	}
	link := c.route(src, dst)
	timeUs := link.TransferTimeUs(bytes)
	eff := effectiveGBps(bytes, timeUs)
	return TransferStats{
		TimeUs:                 timeUs,
		EffectiveBandwidthGBps: eff,
		Efficiency:             eff / link.BandwidthGBps,
	}, nil
}
