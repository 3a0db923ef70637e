/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/simulation"
)

// PartitionCmd represents the partition command
var PartitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Partition a mesh and report the decomposition",
	Long: `
Builds the mesh, partitions it and prints the partition analysis: load
balance, cut edges, halo sizes and the communication schedule of each process.

gohalo partition --numProcs 8 --strategy metis --nx 40 --ny 20`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rp *InputParameters.RunParameters
		if rp, err = loadParameters(cmd); err != nil {
			return
		}
		// Only the mesh and partition parameters apply
		rp.Transport = "group"
		if err = rp.Validate(); err != nil {
			return
		}
		var pt *partition.Partition
		if pt, err = Partition(rp); err != nil {
			return
		}
		for p, s := range pt.Schedules {
			fmt.Printf("Process %d: %d owned, %d halo, peers %v\n", p, len(pt.Owned[p]), len(pt.Halo[p]), s.Peers())
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(PartitionCmd)
	addMeshFlags(PartitionCmd)
}

// Partition builds the mesh of rp and partitions it, checking the schedules
func Partition(rp *InputParameters.RunParameters) (pt *partition.Partition, err error) {
	m, err := simulation.BuildMesh(rp)
	if err != nil {
		return
	}
	if pt, err = partition.Build(m, simulation.PartitionConfig(rp)); err != nil {
		return
	}
	if err = partition.CheckSymmetry(pt.Schedules); err != nil {
		return nil, err
	}
	return
}
