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
	"context"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/simulation"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
)

// RunCmd represents the run command
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Partition, distribute, evolve and merge",
	Long: `
Runs the whole pipeline. With the group transport every process is simulated
inside this one, with tcp this is one process of a group started once per rank:

gohalo run --transport tcp --numProcs 2 --rank 0 --addresses :7000,:7001`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rp *InputParameters.RunParameters
		if rp, err = loadParameters(cmd); err != nil {
			return
		}
		if err = rp.Validate(); err != nil {
			return
		}
		if rp.Transport != "tcp" || rp.Rank == 0 {
			rp.Print()
		}
		var res *simulation.Result
		if res, err = Run(context.Background(), rp); err != nil {
			return
		}
		if res != nil {
			fmt.Printf("Completed %d steps to time %8.5f, %d yields\n", res.Steps, res.Time, res.Yields)
			if res.MergedPath != "" {
				fmt.Printf("Merged result: %s\n", res.MergedPath)
			}
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(RunCmd)
	addMeshFlags(RunCmd)
	fs := RunCmd.Flags()
	fs.StringP("transport", "t", "local", "transport: local, group or tcp")
	fs.StringSlice("addresses", nil, "tcp listen address of every rank, in rank order")
	fs.Int("rank", 0, "rank of this process (tcp only)")
	fs.Float64("finalTime", 1, "FinalTime - the target end time for the sim")
	fs.Float64("yieldStep", 0, "time between recorded yields, defaults to finalTime")
	fs.Int("maxSteps", 0, "stop after this many steps, 0 for no limit")
	fs.Float64("CFL", 0.9, "CFL - increase for speedup, decrease for stability")
	fs.Float64("velocityX", 1, "advection velocity, x component")
	fs.Float64("velocityY", 0, "advection velocity, y component")
	fs.String("initType", "Gaussian", "initial stage: Gaussian, Constant or Step")
	fs.Float64("initialStage", 1, "amplitude of the initial stage")
	fs.StringP("outputDir", "o", "", "directory for the partial and merged result files, none when empty")
	fs.String("name", "domain", "base name of the result files")
	fs.Bool("deletePartials", false, "delete the partial files after a successful merge")
	fs.Float64("distributeTimeout", 60, "seconds a worker waits for its sub mesh")
	fs.Float64("connectTimeout", 30, "seconds to establish the tcp group")
	fs.Bool("parallelMesh", false, "every process builds the mesh and keeps its part, no distribution")
	fs.Bool("verifyHalo", false, "check the halo against its owners at every yield")
}

// Run executes rp on the configured transport. The result is the root's,
// or this process's with tcp.
func Run(ctx context.Context, rp *InputParameters.RunParameters) (res *simulation.Result, err error) {
	switch rp.Transport {
	case "group":
		var results []*simulation.Result
		if results, err = simulation.RunGroup(ctx, rp, log.StandardLogger()); err != nil {
			return
		}
		return results[0], nil
	case "tcp":
		var n *transport.Network
		if n, err = transport.Connect(ctx, transport.NetworkConfig{
			Rank:           rp.Rank,
			Addresses:      rp.Addresses,
			ConnectTimeout: rp.ConnectWait(),
		}); err != nil {
			return
		}
		defer n.Close()
		return simulation.Run(ctx, transport.NewProcessContext(n, log.StandardLogger()), rp)
	default:
		return simulation.Run(ctx, transport.NewProcessContext(transport.NewLocal(), log.StandardLogger()), rp)
	}
}

func addMeshFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringP("inputFile", "I", "", "YAML file of run parameters, overridden by flags")
	fs.IntP("numProcs", "n", 1, "number of processes")
	fs.String("meshType", "rectangular_cross", "mesh: rectangular_cross, rectangular or su2")
	fs.StringP("meshFile", "F", "", "mesh file in SU2 format, for meshType su2")
	fs.Int("nx", 10, "cells in x")
	fs.Int("ny", 10, "cells in y")
	fs.Float64("length", 1, "domain length in x")
	fs.Float64("width", 1, "domain width in y")
	fs.Float64("originX", 0, "x of the lower left corner")
	fs.Float64("originY", 0, "y of the lower left corner")
	fs.Int("haloWidth", 1, "halo width in edge hops")
	fs.StringP("strategy", "s", "rcb", "partitioning: rcb, block or metis")
	fs.Float64("imbalanceTolerance", 1.05, "largest acceptable max/average owned triangle ratio")
}

// loadParameters layers the run parameters: defaults, then the input file,
// then the config file, environment and flags
func loadParameters(cmd *cobra.Command) (rp *InputParameters.RunParameters, err error) {
	rp = InputParameters.NewRunParameters()
	if file, _ := cmd.Flags().GetString("inputFile"); file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return nil, types.ConfigErrorf("reading input file: %v", err)
		}
		if err = rp.Parse(data); err != nil {
			return nil, types.ConfigErrorf("parsing %s: %v", file, err)
		}
	}
	var (
		data []byte
		base map[string]interface{}
	)
	if data, err = yaml.Marshal(rp); err != nil {
		return
	}
	if err = yaml.Unmarshal(data, &base); err != nil {
		return
	}
	for key, value := range base {
		viper.SetDefault(key, value)
	}
	if err = viper.BindPFlags(cmd.Flags()); err != nil {
		return
	}
	if err = viper.Unmarshal(rp); err != nil {
		return nil, types.ConfigErrorf("run parameters: %v", err)
	}
	fs := cmd.Flags()
	if fs.Changed("velocityX") {
		rp.Velocity[0], _ = fs.GetFloat64("velocityX")
	}
	if fs.Changed("velocityY") {
		rp.Velocity[1], _ = fs.GetFloat64("velocityY")
	}
	return
}
