// Package mesh holds the global triangular mesh that is partitioned and
// distributed across processes. A Mesh only ever exists on the root process
// and is treated as read-only once partitioning starts.
package mesh

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gohalo/types"
)

// DefaultBoundaryTag is given to boundary edges that were not tagged
const DefaultBoundaryTag = "exterior"

// Mesh represents a global 2D triangular mesh with its connectivity and
// per-triangle (centroid) quantities. Triangle ids are the indices into
// Triangles and are the global ids used across the whole run.
type Mesh struct {
	// Geometry
	VX, VY    []float64 // Vertex coordinates
	Triangles [][3]int  // Triangle to vertex connectivity, counter-clockwise

	// Connectivity (built by Connect2D)
	Neighbors     [][3]int // Neighbor across edge e (opposite vertex e), NeighborBoundary if none
	NeighborEdges [][3]int // Edge index of this triangle within the neighbor, -1 if none

	// Boundary condition tags, one per boundary edge
	Boundary map[types.TriEdge]string

	// Quantities stored at triangle centroids, keyed by name
	Quantities map[string][]float64
}

// NewMesh builds the connectivity for the given geometry. Boundary edges
// missing from tags get DefaultBoundaryTag.
func NewMesh(VX, VY []float64, tris [][3]int, tags map[types.TriEdge]string) (m *Mesh, err error) {
	if len(VX) != len(VY) {
		err = fmt.Errorf("vertex coordinate length mismatch: %d x values, %d y values", len(VX), len(VY))
		return
	}
	m = &Mesh{
		VX:         VX,
		VY:         VY,
		Triangles:  tris,
		Boundary:   make(map[types.TriEdge]string),
		Quantities: make(map[string][]float64),
	}
	for k, tri := range tris {
		for _, v := range tri {
			if v < 0 || v >= len(VX) {
				err = fmt.Errorf("triangle %d references vertex %d, mesh has %d vertices", k, v, len(VX))
				return
			}
		}
		area := m.Area(k)
		if area == 0 {
			err = fmt.Errorf("triangle %d has zero area", k)
			return
		}
		if area < 0 {
			// Flip to counter-clockwise so edge normals point outward
			m.Triangles[k][1], m.Triangles[k][2] = tri[2], tri[1]
		}
	}
	if err = m.Connect2D(); err != nil {
		return
	}
	for te, tag := range tags {
		if te.Tri < 0 || te.Tri >= len(tris) || te.Edge < 0 || te.Edge > 2 {
			err = fmt.Errorf("boundary tag %q on invalid edge %v", tag, te)
			return
		}
		if m.Neighbors[te.Tri][te.Edge] != types.NeighborBoundary {
			err = fmt.Errorf("boundary tag %q on interior edge %d of triangle %d", tag, te.Edge, te.Tri)
			return
		}
		m.Boundary[te] = tag
	}
	for k := range m.Triangles {
		for e := 0; e < 3; e++ {
			if m.Neighbors[k][e] == types.NeighborBoundary {
				te := types.TriEdge{Tri: k, Edge: e}
				if _, ok := m.Boundary[te]; !ok {
					m.Boundary[te] = DefaultBoundaryTag
				}
			}
		}
	}
	return
}

func (m *Mesh) NumTriangles() int { return len(m.Triangles) }

func (m *Mesh) NumVertices() int { return len(m.VX) }

// Centroid returns the centroid of triangle k
func (m *Mesh) Centroid(k int) (x, y float64) {
	tri := m.Triangles[k]
	for _, v := range tri {
		x += m.VX[v]
		y += m.VY[v]
	}
	x /= 3
	y /= 3
	return
}

// Area returns the signed area of triangle k, positive when counter-clockwise
func (m *Mesh) Area(k int) float64 {
	return TriangleArea(m.VX, m.VY, m.Triangles[k])
}

func TriangleArea(VX, VY []float64, tri [3]int) float64 {
	var (
		x0, y0 = VX[tri[0]], VY[tri[0]]
		x1, y1 = VX[tri[1]], VY[tri[1]]
		x2, y2 = VX[tri[2]], VY[tri[2]]
	)
	return 0.5 * ((x1-x0)*(y2-y0) - (x2-x0)*(y1-y0))
}

// EdgeLength returns the length of edge e of triangle k
func (m *Mesh) EdgeLength(k, e int) float64 {
	v1, v2 := types.EdgeVertices(e)
	a, b := m.Triangles[k][v1], m.Triangles[k][v2]
	return math.Hypot(m.VX[b]-m.VX[a], m.VY[b]-m.VY[a])
}

// SetQuantity evaluates f at every triangle centroid
func (m *Mesh) SetQuantity(name string, f func(x, y float64) float64) {
	vals := make([]float64, m.NumTriangles())
	for k := range vals {
		vals[k] = f(m.Centroid(k))
	}
	m.Quantities[name] = vals
}

func (m *Mesh) SetConstant(name string, value float64) {
	m.SetQuantity(name, func(x, y float64) float64 { return value })
}

// QuantityNames returns the quantity names in sorted order, which is the
// order used on the wire and in output files.
func (m *Mesh) QuantityNames() []string {
	return SortedNames(m.Quantities)
}

func SortedNames(q map[string][]float64) (names []string) {
	names = make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// BoundaryTags returns the distinct boundary tags in sorted order
func (m *Mesh) BoundaryTags() (tags []string) {
	seen := make(map[string]bool)
	for _, tag := range m.Boundary {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return
}

// Validate checks the mesh invariants relied upon by the partitioner
func (m *Mesh) Validate() error {
	if m.NumTriangles() == 0 {
		return fmt.Errorf("mesh has no triangles")
	}
	if len(m.Neighbors) != m.NumTriangles() || len(m.NeighborEdges) != m.NumTriangles() {
		return fmt.Errorf("mesh connectivity has not been built")
	}
	for k := range m.Triangles {
		for e := 0; e < 3; e++ {
			nbr := m.Neighbors[k][e]
			if nbr == types.NeighborBoundary {
				if _, ok := m.Boundary[types.TriEdge{Tri: k, Edge: e}]; !ok {
					return fmt.Errorf("boundary edge %d of triangle %d has no tag", e, k)
				}
				continue
			}
			ne := m.NeighborEdges[k][e]
			if nbr < 0 || nbr >= m.NumTriangles() || ne < 0 || ne > 2 {
				return fmt.Errorf("triangle %d edge %d has invalid neighbor %d/%d", k, e, nbr, ne)
			}
			if m.Neighbors[nbr][ne] != k {
				return fmt.Errorf("neighbor relation %d->%d is not symmetric", k, nbr)
			}
		}
	}
	for name, vals := range m.Quantities {
		if len(vals) != m.NumTriangles() {
			return fmt.Errorf("quantity %q has %d values, mesh has %d triangles",
				name, len(vals), m.NumTriangles())
		}
	}
	return nil
}
