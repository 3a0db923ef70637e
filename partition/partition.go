// Package partition splits a global mesh into owned triangle sets, builds the
// halo of each set and the static communication schedule between them.
// Building a Partition is a pure function of the mesh and the configuration.
package partition

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/types"
)

const (
	DefaultHaloWidth          = 1
	DefaultImbalanceTolerance = 1.05
)

// Assigner maps every triangle of a mesh to one of numProcs owners
type Assigner interface {
	Name() string
	Assign(m *mesh.Mesh, numProcs int) (owner []int, err error)
}

// Config holds the partitioning parameters
type Config struct {
	NumProcs           int
	HaloWidth          int     // Edge hops from the owned set, at least 1
	ImbalanceTolerance float64 // max/avg owned count above which a warning is logged
	Assigner           Assigner
	Verbose            bool // Log the partition analysis
}

// DefaultConfig returns recursive coordinate bisection with a one ring halo
func DefaultConfig(numProcs int) *Config {
	return &Config{
		NumProcs:           numProcs,
		HaloWidth:          DefaultHaloWidth,
		ImbalanceTolerance: DefaultImbalanceTolerance,
		Assigner:           RCB{},
	}
}

func (cfg *Config) Validate(numTriangles int) error {
	switch {
	case cfg.NumProcs < 1:
		return types.ConfigErrorf("process count must be at least 1, have %d", cfg.NumProcs)
	case cfg.NumProcs > numTriangles:
		return types.ConfigErrorf("process count %d exceeds the %d triangles of the mesh",
			cfg.NumProcs, numTriangles)
	case cfg.HaloWidth < 1:
		return types.ConfigErrorf("unsupported halo width %d, must be at least 1", cfg.HaloWidth)
	case cfg.ImbalanceTolerance < 1:
		return types.ConfigErrorf("imbalance tolerance %g must be at least 1", cfg.ImbalanceTolerance)
	case cfg.Assigner == nil:
		return types.ConfigErrorf("no partitioning strategy")
	}
	return nil
}

// Partition is the decomposition of a mesh across NumProcs processes. Owned
// and Halo lists hold global triangle ids in ascending order.
type Partition struct {
	NumProcs     int
	HaloWidth    int
	NumTriangles int
	Strategy     string
	Components   int   // Connected components of the mesh
	Owner        []int // Owning process of each global triangle
	Owned        [][]int
	Halo         [][]int
	Schedules    []*Schedule
	Stats        *Stats
}

// Build partitions the mesh. It has no side effects beyond logging.
func Build(m *mesh.Mesh, cfg *Config) (pt *Partition, err error) {
	if err = m.Validate(); err != nil {
		return nil, types.ConfigErrorf("invalid mesh: %v", err)
	}
	if err = cfg.Validate(m.NumTriangles()); err != nil {
		return
	}
	var owner []int
	if owner, err = cfg.Assigner.Assign(m, cfg.NumProcs); err != nil {
		return nil, types.ConfigErrorf("%s partitioning failed: %v", cfg.Assigner.Name(), err)
	}
	if pt, err = FromOwners(m, owner, cfg.NumProcs, cfg.HaloWidth); err != nil {
		return
	}
	pt.Strategy = cfg.Assigner.Name()
	if pt.Stats.Imbalance > cfg.ImbalanceTolerance {
		log.Warnf("Partition imbalance %.3f exceeds tolerance %.3f", pt.Stats.Imbalance, cfg.ImbalanceTolerance)
	}
	if cfg.Verbose {
		pt.Stats.Log()
	}
	return
}

// FromOwners builds the halos and schedules for a given owner assignment
func FromOwners(m *mesh.Mesh, owner []int, numProcs, haloWidth int) (pt *Partition, err error) {
	K := m.NumTriangles()
	if len(owner) != K {
		return nil, types.ConfigErrorf("owner assignment has %d entries for %d triangles", len(owner), K)
	}
	pt = &Partition{
		NumProcs:     numProcs,
		HaloWidth:    haloWidth,
		NumTriangles: K,
		Owner:        owner,
		Owned:        make([][]int, numProcs),
	}
	for k, p := range owner {
		if p < 0 || p >= numProcs {
			return nil, types.ConfigErrorf("triangle %d assigned to process %d, have %d processes", k, p, numProcs)
		}
		pt.Owned[p] = append(pt.Owned[p], k)
	}
	for p, owned := range pt.Owned {
		if len(owned) == 0 {
			return nil, types.ConfigErrorf("process %d owns no triangles", p)
		}
	}
	hb := newHaloBuilder(m)
	pt.Components = hb.components()
	pt.Halo = make([][]int, numProcs)
	for p := 0; p < numProcs; p++ {
		pt.Halo[p] = hb.halo(pt.Owned[p], owner, p, haloWidth)
	}
	pt.Schedules = buildSchedules(pt)
	pt.Stats = newStats(m, pt)
	return
}

// LocalTriangles returns the owned then halo global ids of process p, which
// is the local numbering of its domain.
func (pt *Partition) LocalTriangles(p int) (gids []int) {
	gids = make([]int, 0, len(pt.Owned[p])+len(pt.Halo[p]))
	gids = append(gids, pt.Owned[p]...)
	gids = append(gids, pt.Halo[p]...)
	return
}

func sortedKeys(set map[int]struct{}) (keys []int) {
	keys = make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return
}
