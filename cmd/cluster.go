// cmd/cluster.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpusim/gpusim/sim"
	"github.com/gpusim/gpusim/sim/cluster"
)

var (
	clusterNodes  int
	topologyFile  string
	transferBytes int64
	srcNode       int
	srcGPU        int
	dstNode       int
	dstGPU        int
	algoName      string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Score transfers and collectives on a multi-GPU cluster",
}

func buildCluster() (*cluster.Cluster, error) {
	if topologyFile != "" {
		topo, err := cluster.LoadTopology(topologyFile)
		if err != nil {
			return nil, err
		}
		return cluster.New(topo, sim.H100Spec())
	}
	return cluster.NewH100DGX(clusterNodes), nil
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Score a point-to-point transfer between two devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := buildCluster()
		if err != nil {
			return err
		}
		src := cluster.DeviceID{Node: srcNode, GPU: srcGPU}
		dst := cluster.DeviceID{Node: dstNode, GPU: dstGPU}
		stats, err := c.Transfer(src, dst, transferBytes)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s %d bytes: %.1f us, %.1f GB/s effective (%.1f%% of peak)\n",
			src, dst, transferBytes, stats.TimeUs, stats.EffectiveBandwidthGBps, 100*stats.Efficiency)
		return nil
	},
}

var allReduceCmd = &cobra.Command{
	Use:   "all-reduce",
	Short: "Score an all-reduce across every device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := buildCluster()
		if err != nil {
			return err
		}
		algo, err := cluster.ParseAlgorithm(algoName)
		if err != nil {
			return err
		}
		stats, err := c.AllReduce(transferBytes, algo)
		if err != nil {
			return err
		}
		printCollective(stats)
		return nil
	},
}

var allGatherCmd = &cobra.Command{
	Use:   "all-gather",
	Short: "Score a ring all-gather across every device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := buildCluster()
		if err != nil {
			return err
		}
		stats, err := c.AllGather(transferBytes)
		if err != nil {
			return err
		}
		printCollective(stats)
		return nil
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Score a tree broadcast across every device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := buildCluster()
		if err != nil {
			return err
		}
		stats, err := c.Broadcast(transferBytes)
		if err != nil {
			return err
		}
		printCollective(stats)
		return nil
	},
}

func printCollective(s cluster.CollectiveStats) {
	fmt.Printf("%s (%s) over %d devices: %.1f us, %.1f GB/s effective, efficiency %.3f\n",
		s.Operation, s.Algorithm, s.Participants, s.TimeUs, s.EffectiveBandwidthGBps, s.Efficiency)
}

func init() {
	clusterCmd.PersistentFlags().IntVar(&clusterNodes, "nodes", 2, "Node count for the DGX preset")
	clusterCmd.PersistentFlags().StringVar(&topologyFile, "topology", "", "YAML topology overriding the preset")
	clusterCmd.PersistentFlags().Int64Var(&transferBytes, "bytes", 1<<30, "Message size in bytes")

	transferCmd.Flags().IntVar(&srcNode, "src-node", 0, "Source node")
	transferCmd.Flags().IntVar(&srcGPU, "src-gpu", 0, "Source GPU")
	transferCmd.Flags().IntVar(&dstNode, "dst-node", 0, "Destination node")
	transferCmd.Flags().IntVar(&dstGPU, "dst-gpu", 1, "Destination GPU")

	allReduceCmd.Flags().StringVar(&algoName, "algo", "ring", "Collective algorithm (ring, tree, direct)")

	clusterCmd.AddCommand(transferCmd)
	clusterCmd.AddCommand(allReduceCmd)
	clusterCmd.AddCommand(allGatherCmd)
	clusterCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(clusterCmd)
}
