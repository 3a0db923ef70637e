package mesh

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/types"
)

func countBoundary(m *Mesh) (histo map[string]int) {
	histo = make(map[string]int)
	for _, tag := range m.Boundary {
		histo[tag]++
	}
	return
}

func TestRectangularCross(t *testing.T) {
	{ // Test 4x4 cross mesh structure
		m, err := RectangularCross(4, 4, 4, 4, [2]float64{})
		require.NoError(t, err)
		assert.Equal(t, 64, m.NumTriangles())
		assert.Equal(t, 25+16, m.NumVertices())
		require.NoError(t, m.Validate())
		assert.Equal(t, map[string]int{"left": 4, "right": 4, "bottom": 4, "top": 4}, countBoundary(m))
		assert.Equal(t, []string{"bottom", "left", "right", "top"}, m.BoundaryTags())
		var total float64
		for k := 0; k < m.NumTriangles(); k++ {
			assert.InDelta(t, 0.25, m.Area(k), 1.e-12)
			total += m.Area(k)
		}
		assert.InDelta(t, 16., total, 1.e-12)
	}
	{ // Test the four triangles of the first cell
		m, err := RectangularCross(2, 3, 2, 3, [2]float64{-1, 0})
		require.NoError(t, err)
		x, y := m.Centroid(0) // Left triangle of cell (0,0)
		assert.InDelta(t, -1+1./6, x, 1.e-12)
		assert.InDelta(t, 0.5, y, 1.e-12)
		assert.Equal(t, "left", m.Boundary[types.TriEdge{Tri: 0, Edge: 1}])
		assert.Equal(t, "bottom", m.Boundary[types.TriEdge{Tri: 2, Edge: 1}])
		// The left triangle touches the bottom and top triangles of its own cell
		assert.ElementsMatch(t, []int{types.NeighborBoundary, 2, 3}, m.Neighbors[0][:])
		// The right triangle of cell (0,0) touches the left triangle of cell (1,0)
		assert.Contains(t, m.Neighbors[1][:], 4*3)
	}
	{ // Bad dimensions
		_, err := RectangularCross(0, 4, 1, 1, [2]float64{})
		assert.Error(t, err)
	}
}

func TestRectangular(t *testing.T) {
	m, err := Rectangular(3, 2, 3, 2, [2]float64{})
	require.NoError(t, err)
	assert.Equal(t, 12, m.NumTriangles())
	require.NoError(t, m.Validate())
	assert.Equal(t, map[string]int{"left": 2, "right": 2, "bottom": 3, "top": 3}, countBoundary(m))
	for k := 0; k < m.NumTriangles(); k++ {
		assert.InDelta(t, 0.5, m.Area(k), 1.e-12)
	}
}

func TestNewMesh(t *testing.T) {
	{ // Clockwise triangles are flipped, untagged boundaries get the default tag
		VX := []float64{0, 1, 1, 0}
		VY := []float64{0, 0, 1, 1}
		tris := [][3]int{{0, 2, 1}, {0, 2, 3}}
		m, err := NewMesh(VX, VY, tris, map[types.TriEdge]string{{Tri: 0, Edge: 0}: "wall"})
		require.NoError(t, err)
		require.NoError(t, m.Validate())
		for k := 0; k < 2; k++ {
			assert.True(t, m.Area(k) > 0)
		}
		hist := countBoundary(m)
		assert.Equal(t, 4, hist["wall"]+hist[DefaultBoundaryTag])
		// Both triangles share exactly one edge
		var shared int
		for e := 0; e < 3; e++ {
			if m.Neighbors[0][e] == 1 {
				shared++
				assert.Equal(t, 0, m.Neighbors[1][m.NeighborEdges[0][e]])
			}
		}
		assert.Equal(t, 1, shared)
		assert.InDelta(t, 1., m.EdgeLength(0, 0), 1.e-12)
	}
	{ // Interior edges can not be tagged
		VX := []float64{0, 1, 1, 0}
		VY := []float64{0, 0, 1, 1}
		tris := [][3]int{{0, 1, 2}, {0, 2, 3}}
		// Edge 1 of triangle 0 is opposite vertex 1, which is the diagonal 2-0
		_, err := NewMesh(VX, VY, tris, map[types.TriEdge]string{{Tri: 0, Edge: 1}: "wall"})
		assert.Error(t, err)
	}
	{ // Non manifold edges are rejected
		VX := []float64{0, 1, 0.5, 0.5, 0.5}
		VY := []float64{0, 0, 1, -1, 2}
		tris := [][3]int{{0, 1, 2}, {1, 0, 3}, {0, 1, 4}}
		_, err := NewMesh(VX, VY, tris, nil)
		assert.Error(t, err)
	}
	{ // Degenerate input
		_, err := NewMesh([]float64{0, 1, 2}, []float64{0, 0, 0}, [][3]int{{0, 1, 2}}, nil)
		assert.Error(t, err)
		_, err = NewMesh([]float64{0, 1}, []float64{0, 0, 1}, nil, nil)
		assert.Error(t, err)
		_, err = NewMesh([]float64{0, 1, 0}, []float64{0, 0, 1}, [][3]int{{0, 1, 3}}, nil)
		assert.Error(t, err)
	}
}

func TestQuantities(t *testing.T) {
	m, err := Rectangular(2, 2, 2, 2, [2]float64{})
	require.NoError(t, err)
	m.SetQuantity("stage", func(x, y float64) float64 { return x + 10*y })
	m.SetConstant("elevation", -1)
	assert.Equal(t, []string{"elevation", "stage"}, m.QuantityNames())
	for k := 0; k < m.NumTriangles(); k++ {
		x, y := m.Centroid(k)
		assert.InDelta(t, x+10*y, m.Quantities["stage"][k], 1.e-12)
		assert.Equal(t, -1., m.Quantities["elevation"][k])
	}
	require.NoError(t, m.Validate())
	m.Quantities["broken"] = []float64{1}
	assert.Error(t, m.Validate())
}

func TestReadSU2(t *testing.T) {
	m, err := ReadSU2(bytes.NewReader(inputFile))
	require.NoError(t, err)
	assert.Equal(t, 22, m.NumTriangles())
	assert.Equal(t, 18, m.NumVertices())
	assert.Equal(t, -7.100939331382065, m.VX[17])
	assert.Equal(t, 2.889910324036197, m.VY[17])
	require.NoError(t, m.Validate())
	assert.Equal(t, map[string]int{"periodic-left": 2, "periodic-right": 2, "top": 4, "bottom": 4},
		countBoundary(m))

	_, err = ReadSU2(bytes.NewReader(inputFile[:400]))
	assert.Error(t, err)
}

var (
	inputFile = []byte(` %This is an example input file in SU2 format, output from gmsh
% Comments can appear outside of data areas
NDIME= 2
% Comments can appear outside of data areas
NELEM= 22
5 5 6 13 0
5 9 10 12 1
5 12 5 13 2
5 9 12 13 3
5 13 6 14 4
5 12 10 15 5
5 8 9 13 6
5 4 5 12 7
5 1 7 14 8
5 6 1 14 9
5 3 11 15 10
5 10 3 15 11
5 8 13 16 12
5 4 12 17 13
5 13 14 16 14
5 12 15 17 15
5 7 2 16 16
5 11 0 17 17
5 2 8 16 18
5 0 4 17 19
5 14 7 16 20
5 15 11 17 21
% Comments can appear outside of data areas
NPOIN= 18
-10 0 0
10 0 1
10 10 2
-10 10 3
-5.000000000004944 0 4
-1.231725832440134e-11 0 5
4.99999999999384 0 6
10 4.999999999992398 7
5.000000000004944 10 8
1.231725832440134e-11 10 9
-4.99999999999384 10 10
-10 5 11
-2.500000000008632 4.330127018915808 12
2.50000000000863 5.669872981084192 13
6.712741669205853 3.668411415814691 14
-6.712741669205681 6.331588584184096 15
7.100939331384343 7.110089675963254 16
-7.100939331382065 2.889910324036197 17
NMARK= 4
% Comments can appear outside of data areas
MARKER_TAG= periodic-left
% Comments can appear outside of data areas
MARKER_ELEMS= 2
3 3 11
3 11 0
% Comments can appear outside of data areas
MARKER_TAG= periodic-right
MARKER_ELEMS= 2
3 1 7
3 7 2
% Comments can appear outside of data areas
MARKER_TAG= top
MARKER_ELEMS= 4
3 2 8
3 8 9
3 9 10
3 10 3
MARKER_TAG= bottom
% Comments can appear outside of data areas
MARKER_ELEMS= 4
3 0 4
3 4 5
3 5 6
3 6 1
% Comments can appear outside of data areas
`)
)
