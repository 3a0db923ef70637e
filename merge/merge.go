// Package merge combines the partial result files of a run into one file
// in global triangle order.
package merge

import (
	"fmt"
	"os"
	"slices"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/gohalo/sww"
	"github.com/notargets/gohalo/types"
)

type Options struct {
	Dir, Name      string
	NumProcs       int
	DeletePartials bool
}

// Run merges the partial files named by opts and returns the merged path
func Run(opts Options) (out string, err error) {
	if opts.NumProcs < 1 {
		return "", types.ConfigErrorf("merge needs at least one partial file, have %d", opts.NumProcs)
	}
	paths := make([]string, opts.NumProcs)
	for p := range paths {
		paths[p] = sww.PartialName(opts.Dir, opts.Name, p, opts.NumProcs)
	}
	out = sww.MergedName(opts.Dir, opts.Name)
	if err = Files(paths, out, opts.DeletePartials); err != nil {
		return "", err
	}
	return
}

// Files merges the partial files at paths into out. The merged file is
// written next to out and renamed into place; the partials are deleted, if
// asked, only after that succeeded.
func Files(paths []string, out string, deletePartials bool) (err error) {
	parts := make([]*sww.File, len(paths))
	for i, p := range paths {
		if parts[i], err = sww.ReadFile(p); err != nil {
			return types.ConfigErrorf("%v", err)
		}
	}
	var merged *sww.File
	if merged, err = Merge(parts); err != nil {
		return
	}
	tmp := out + ".tmp"
	if err = sww.WriteFile(tmp, merged); err != nil {
		return
	}
	if err = os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return
	}
	log.Infof("Merged %d partial files into %s: %d triangles, %d time records",
		len(paths), out, merged.NumVolumes(), merged.NumTimes())
	if deletePartials {
		for _, p := range paths {
			if err = os.Remove(p); err != nil {
				return fmt.Errorf("merge succeeded, removing partial: %w", err)
			}
		}
	}
	return
}

// Merge keeps the owned records of every partial, in global id order.
// Halo records are dropped.
func Merge(parts []*sww.File) (merged *sww.File, err error) {
	if len(parts) == 0 {
		return nil, types.ConfigErrorf("no partial files to merge")
	}
	var (
		first = parts[0]
		np    = len(parts)
		seen  = make([]bool, np)
	)
	for _, f := range parts {
		switch {
		case f.NumProcs != np:
			return nil, types.ConfigErrorf("partial of process %d was written by a run of %d processes, merging %d",
				f.Processor, f.NumProcs, np)
		case f.Processor < 0 || f.Processor >= np:
			return nil, types.ConfigErrorf("partial has process id %d, expected 0 to %d", f.Processor, np-1)
		case seen[f.Processor]:
			return nil, types.ConfigErrorf("two partials of process %d", f.Processor)
		case f.NumGlobalTriangles != first.NumGlobalTriangles:
			return nil, types.ConfigErrorf("partial of process %d has %d global triangles, process %d has %d",
				f.Processor, f.NumGlobalTriangles, first.Processor, first.NumGlobalTriangles)
		case !floats.Equal(f.Times, first.Times):
			return nil, types.ConsistencyErrorf("partial of process %d has a different time axis from process %d",
				f.Processor, first.Processor)
		case !slices.Equal(f.Quantities, first.Quantities):
			return nil, types.ConfigErrorf("partial of process %d has quantities %v, process %d has %v",
				f.Processor, f.Quantities, first.Processor, first.Quantities)
		}
		seen[f.Processor] = true
	}
	var (
		ng    = first.NumGlobalTriangles
		nt    = first.NumTimes()
		owner = make([]int, ng)
		local = make([]int, ng)
	)
	for g := range owner {
		owner[g] = -1
	}
	for n, f := range parts {
		for v, gid := range f.GlobalID {
			g := int(gid)
			if g < 0 || g >= ng {
				return nil, types.ConsistencyErrorf("partial of process %d has global id %d of %d triangles",
					f.Processor, g, ng)
			}
			if f.FullFlag[v] == 0 {
				continue
			}
			if owner[g] >= 0 {
				return nil, types.ConsistencyErrorf("triangle %d is owned by processes %d and %d",
					g, parts[owner[g]].Processor, f.Processor)
			}
			owner[g], local[g] = n, v
		}
	}
	for g, o := range owner {
		if o < 0 {
			return nil, types.ConsistencyErrorf("triangle %d has no owning record", g)
		}
	}
	merged = &sww.File{
		Title:              first.Title,
		Processor:          -1,
		NumProcs:           np,
		NumGlobalTriangles: ng,
		GlobalID:           make([]int32, ng),
		FullFlag:           make([]int32, ng),
		X:                  make([]float64, 3*ng),
		Y:                  make([]float64, 3*ng),
		Times:              append([]float64(nil), first.Times...),
		Quantities:         append([]string(nil), first.Quantities...),
		Values:             make(map[string][]float64, len(first.Quantities)),
	}
	for g := 0; g < ng; g++ {
		f, v := parts[owner[g]], local[g]
		merged.GlobalID[g] = int32(g)
		merged.FullFlag[g] = 1
		copy(merged.X[3*g:3*g+3], f.X[3*v:3*v+3])
		copy(merged.Y[3*g:3*g+3], f.Y[3*v:3*v+3])
	}
	for _, q := range merged.Quantities {
		vals := make([]float64, nt*ng)
		for n := 0; n < nt; n++ {
			for g := 0; g < ng; g++ {
				vals[n*ng+g] = parts[owner[g]].Value(q, n, local[g])
			}
		}
		merged.Values[q] = vals
	}
	return
}
