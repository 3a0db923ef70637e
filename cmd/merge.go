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

	"github.com/notargets/gohalo/merge"
)

// MergeCmd represents the merge command
var MergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the partial result files of a run",
	Long: `
Combines the files <name>_P<rank>_<numProcs>.sww written by each process into
<name>.sww, in global triangle order:

gohalo merge -o results --name domain -n 4`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var opts merge.Options
		fs := cmd.Flags()
		opts.Dir, _ = fs.GetString("outputDir")
		opts.Name, _ = fs.GetString("name")
		opts.NumProcs, _ = fs.GetInt("numProcs")
		opts.DeletePartials, _ = fs.GetBool("deletePartials")
		var out string
		if out, err = merge.Run(opts); err != nil {
			return
		}
		fmt.Printf("Merged result: %s\n", out)
		return
	},
}

func init() {
	rootCmd.AddCommand(MergeCmd)
	MergeCmd.Flags().StringP("outputDir", "o", ".", "directory holding the partial files")
	MergeCmd.Flags().String("name", "domain", "base name of the result files")
	MergeCmd.Flags().IntP("numProcs", "n", 1, "number of partial files")
	MergeCmd.Flags().Bool("deletePartials", false, "delete the partial files after a successful merge")
}
