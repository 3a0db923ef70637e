// Package metis partitions the triangle adjacency graph with METIS k-way
// partitioning. It is kept apart from package partition so that only
// programs selecting it link against the METIS library.
package metis

import (
	"fmt"

	gometis "github.com/notargets/go-metis"
	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
)

// Strategy holds configuration for METIS partitioning
type Strategy struct {
	ImbalanceFactor float32 // e.g., 1.05 for 5% imbalance
	Objective       string  // "cut" or "vol"
}

func New(imbalance float64) *Strategy {
	return &Strategy{
		ImbalanceFactor: float32(imbalance),
		Objective:       "cut",
	}
}

var _ partition.Assigner = (*Strategy)(nil)

func (s *Strategy) Name() string { return "metis" }

func (s *Strategy) Assign(m *mesh.Mesh, numProcs int) (owner []int, err error) {
	K := m.NumTriangles()
	if numProcs < 1 || numProcs > K {
		return nil, fmt.Errorf("can not split %d triangles into %d parts", K, numProcs)
	}
	owner = make([]int, K)
	if numProcs == 1 {
		return
	}
	log.Debugf("Partitioning mesh with %d triangles into %d parts", K, numProcs)

	xadj, adjncy := BuildGraph(m)

	opts := make([]int32, gometis.NoOptions)
	if err = gometis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if s.Objective == "vol" {
		opts[gometis.OptionObjType] = gometis.ObjTypeVol
	} else {
		opts[gometis.OptionObjType] = gometis.ObjTypeCut
	}
	ubvec := []float32{s.ImbalanceFactor}

	part, objval, err := gometis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		int32(numProcs), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	log.Debugf("METIS objective value: %d", objval)
	for k := 0; k < K; k++ {
		owner[k] = int(part[k])
	}
	return
}

// BuildGraph converts the mesh connectivity to METIS CSR format
func BuildGraph(m *mesh.Mesh) (xadj, adjncy []int32) {
	K := m.NumTriangles()
	xadj = make([]int32, K+1)
	adjncy = make([]int32, 0, 3*K)
	for k := 0; k < K; k++ {
		for _, nbr := range m.Neighbors[k] {
			if nbr >= 0 && nbr != k {
				adjncy = append(adjncy, int32(nbr))
			}
		}
		xadj[k+1] = int32(len(adjncy))
	}
	return
}
