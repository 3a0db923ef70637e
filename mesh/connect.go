package mesh

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/gohalo/types"
)

// Connect2D builds the triangle to triangle connectivity. Face f = 3*k+e is
// edge e of triangle k. Two faces sharing both vertices have a value of 2 in
// FToF = FToV * FToV^T.
func (m *Mesh) Connect2D() (err error) {
	var (
		NFaces     = 3
		K          = m.NumTriangles()
		Nv         = m.NumVertices()
		TotalFaces = NFaces * K
	)
	m.Neighbors = make([][3]int, K)
	m.NeighborEdges = make([][3]int, K)
	for k := 0; k < K; k++ {
		m.Neighbors[k] = [3]int{types.NeighborBoundary, types.NeighborBoundary, types.NeighborBoundary}
		m.NeighborEdges[k] = [3]int{-1, -1, -1}
	}
	if K == 0 {
		return
	}
	SpFToV_Tmp := sparse.NewDOK(TotalFaces, Nv)
	for k := 0; k < K; k++ {
		for face := 0; face < NFaces; face++ {
			v1, v2 := types.EdgeVertices(face)
			SpFToV_Tmp.Set(NFaces*k+face, m.Triangles[k][v1], 1)
			SpFToV_Tmp.Set(NFaces*k+face, m.Triangles[k][v2], 1)
		}
	}
	SpFToF := sparse.NewCSR(TotalFaces, TotalFaces, nil, nil, nil)
	SpFToV := SpFToV_Tmp.ToCSR()
	SpFToF.Mul(SpFToV, SpFToV.T())
	SpFToF.DoNonZero(func(i, j int, v float64) {
		if err != nil || i == j || v != 2 {
			return
		}
		var (
			k1, face1 = i / NFaces, i % NFaces
			k2, face2 = j / NFaces, j % NFaces
		)
		if k1 == k2 {
			err = fmt.Errorf("triangle %d is degenerate, edges %d and %d coincide", k1, face1, face2)
			return
		}
		if prev := m.Neighbors[k1][face1]; prev != types.NeighborBoundary && prev != k2 {
			err = fmt.Errorf("edge %d of triangle %d is shared by more than two triangles (%d, %d)",
				face1, k1, prev, k2)
			return
		}
		m.Neighbors[k1][face1] = k2
		m.NeighborEdges[k1][face1] = face2
	})
	return
}

// EdgeMap returns the lookup from a vertex pair to the triangle edge holding it.
// Interior edges map to the lower numbered triangle.
func (m *Mesh) EdgeMap() (em map[types.EdgeKey]types.TriEdge) {
	em = make(map[types.EdgeKey]types.TriEdge, 3*m.NumTriangles()/2)
	for k, tri := range m.Triangles {
		for e := 0; e < 3; e++ {
			v1, v2 := types.EdgeVertices(e)
			key := types.NewEdgeKey([2]int{tri[v1], tri[v2]})
			if _, ok := em[key]; !ok {
				em[key] = types.TriEdge{Tri: k, Edge: e}
			}
		}
	}
	return
}
