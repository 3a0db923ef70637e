package mesh

import (
	"fmt"

	"github.com/notargets/gohalo/types"
)

// RectangularCross builds an m by n grid of cells over [origin, origin +
// (len1, len2)], each cell split into four triangles about its center. The
// outer edges are tagged left, right, bottom and top.
func RectangularCross(m, n int, len1, len2 float64, origin [2]float64) (*Mesh, error) {
	if m < 1 || n < 1 || len1 <= 0 || len2 <= 0 {
		return nil, fmt.Errorf("invalid rectangular cross grid %dx%d of size %gx%g", m, n, len1, len2)
	}
	var (
		NGrid   = (m + 1) * (n + 1)
		VX      = make([]float64, NGrid+m*n)
		VY      = make([]float64, NGrid+m*n)
		tris    = make([][3]int, 0, 4*m*n)
		tags    = make(map[types.TriEdge]string)
		dx, dy  = len1 / float64(m), len2 / float64(n)
		gridVtx = func(i, j int) int { return i*(n+1) + j }
	)
	for i := 0; i <= m; i++ {
		for j := 0; j <= n; j++ {
			VX[gridVtx(i, j)] = origin[0] + float64(i)*dx
			VY[gridVtx(i, j)] = origin[1] + float64(j)*dy
		}
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var (
				tl = gridVtx(i, j+1)
				bl = gridVtx(i, j)
				tr = gridVtx(i+1, j+1)
				br = gridVtx(i+1, j)
				c  = NGrid + i*n + j
			)
			VX[c] = origin[0] + (float64(i)+0.5)*dx
			VY[c] = origin[1] + (float64(j)+0.5)*dy
			// Edge 1 is opposite the center vertex, on the cell side
			if i == 0 {
				tags[types.TriEdge{Tri: len(tris), Edge: 1}] = "left"
			}
			tris = append(tris, [3]int{bl, c, tl})
			if i == m-1 {
				tags[types.TriEdge{Tri: len(tris), Edge: 1}] = "right"
			}
			tris = append(tris, [3]int{tr, c, br})
			if j == 0 {
				tags[types.TriEdge{Tri: len(tris), Edge: 1}] = "bottom"
			}
			tris = append(tris, [3]int{br, c, bl})
			if j == n-1 {
				tags[types.TriEdge{Tri: len(tris), Edge: 1}] = "top"
			}
			tris = append(tris, [3]int{tl, c, tr})
		}
	}
	return NewMesh(VX, VY, tris, tags)
}

// Rectangular builds an m by n grid of cells each split into two triangles
// along the diagonal from the lower left to the upper right corner.
func Rectangular(m, n int, len1, len2 float64, origin [2]float64) (*Mesh, error) {
	if m < 1 || n < 1 || len1 <= 0 || len2 <= 0 {
		return nil, fmt.Errorf("invalid rectangular grid %dx%d of size %gx%g", m, n, len1, len2)
	}
	var (
		VX      = make([]float64, (m+1)*(n+1))
		VY      = make([]float64, (m+1)*(n+1))
		tris    = make([][3]int, 0, 2*m*n)
		tags    = make(map[types.TriEdge]string)
		dx, dy  = len1 / float64(m), len2 / float64(n)
		gridVtx = func(i, j int) int { return i*(n+1) + j }
	)
	for i := 0; i <= m; i++ {
		for j := 0; j <= n; j++ {
			VX[gridVtx(i, j)] = origin[0] + float64(i)*dx
			VY[gridVtx(i, j)] = origin[1] + float64(j)*dy
		}
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var (
				tl = gridVtx(i, j+1)
				bl = gridVtx(i, j)
				tr = gridVtx(i+1, j+1)
				br = gridVtx(i+1, j)
			)
			// Lower right triangle
			if j == 0 {
				tags[types.TriEdge{Tri: len(tris), Edge: 2}] = "bottom"
			}
			if i == m-1 {
				tags[types.TriEdge{Tri: len(tris), Edge: 0}] = "right"
			}
			tris = append(tris, [3]int{bl, br, tr})
			// Upper left triangle
			if j == n-1 {
				tags[types.TriEdge{Tri: len(tris), Edge: 0}] = "top"
			}
			if i == 0 {
				tags[types.TriEdge{Tri: len(tris), Edge: 1}] = "left"
			}
			tris = append(tris, [3]int{bl, tr, tl})
		}
	}
	return NewMesh(VX, VY, tris, tags)
}
