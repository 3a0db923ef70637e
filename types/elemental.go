package types

import (
	"fmt"
	"math"
)

/*
EdgeKey is an always positive number that stores an edge's vertices as indices in a way that can be compared
An edge between vertices [4] and [0] will always be stored as [0,4], in the ascending order of the index values
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) (packed EdgeKey) {
	// This packs two index coordinates into two 32 bit unsigned integers to act as a hash and an indirect access method
	var (
		limit = math.MaxUint32
	)
	for _, vert := range verts {
		if vert < 0 || vert > limit {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	var i1, i2 int
	if verts[0] <= verts[1] {
		i1, i2 = verts[0], verts[1]
	} else {
		i1, i2 = verts[1], verts[0]
	}
	packed = EdgeKey(i1 + i2<<32)
	return
}

func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	var (
		enTmp EdgeKey
	)
	enTmp = ek >> 32
	verts[1] = int(enTmp)
	verts[0] = int(ek - enTmp*(1<<32))
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

// TriEdge addresses one edge of one triangle. Edge e of a triangle is the
// edge opposite vertex e, i.e. it joins vertices (e+1)%3 and (e+2)%3.
type TriEdge struct {
	Tri  int
	Edge int
}

// EdgeVertices returns the two local vertex positions spanning edge e.
func EdgeVertices(e int) (v1, v2 int) {
	return (e + 1) % 3, (e + 2) % 3
}

// Special neighbor markers used in triangle adjacency arrays
const (
	NeighborBoundary = -1 // physical boundary, the edge carries a boundary tag
	NeighborOutside  = -2 // neighbor exists globally but is not present in a local domain
)

// GhostTag is the boundary tag assigned to the outer edges of a halo ring
const GhostTag = "ghost"
