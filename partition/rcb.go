package partition

import (
	"fmt"
	"sort"

	"github.com/notargets/gohalo/mesh"
)

// RCB is recursive coordinate bisection of triangle centroids. Each cut is
// across the longer extent of the current set and splits the triangle count
// in proportion to the number of processes on either side.
type RCB struct{}

func (RCB) Name() string { return "rcb" }

func (RCB) Assign(m *mesh.Mesh, numProcs int) (owner []int, err error) {
	K := m.NumTriangles()
	if numProcs < 1 || numProcs > K {
		return nil, fmt.Errorf("can not split %d triangles into %d parts", K, numProcs)
	}
	var (
		cx, cy = make([]float64, K), make([]float64, K)
		ids    = make([]int, K)
	)
	for k := 0; k < K; k++ {
		cx[k], cy[k] = m.Centroid(k)
		ids[k] = k
	}
	owner = make([]int, K)
	bisect(ids, cx, cy, 0, numProcs, owner)
	return
}

func bisect(ids []int, cx, cy []float64, firstPart, nParts int, owner []int) {
	if nParts == 1 {
		for _, k := range ids {
			owner[k] = firstPart
		}
		return
	}
	var (
		xmin, xmax = cx[ids[0]], cx[ids[0]]
		ymin, ymax = cy[ids[0]], cy[ids[0]]
	)
	for _, k := range ids[1:] {
		xmin, xmax = min(xmin, cx[k]), max(xmax, cx[k])
		ymin, ymax = min(ymin, cy[k]), max(ymax, cy[k])
	}
	primary, secondary := cx, cy
	if ymax-ymin > xmax-xmin {
		primary, secondary = cy, cx
	}
	// Total order, so equal coordinates never depend on input order
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if primary[a] != primary[b] {
			return primary[a] < primary[b]
		}
		if secondary[a] != secondary[b] {
			return secondary[a] < secondary[b]
		}
		return a < b
	})
	var (
		leftParts = nParts / 2
		nLeft     = len(ids) * leftParts / nParts
	)
	// Every part gets at least one triangle
	nLeft = max(nLeft, leftParts)
	nLeft = min(nLeft, len(ids)-(nParts-leftParts))
	bisect(ids[:nLeft], cx, cy, firstPart, leftParts, owner)
	bisect(ids[nLeft:], cx, cy, firstPart+leftParts, nParts-leftParts, owner)
}
