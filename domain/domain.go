// Package domain is the part of the mesh held by one process: its owned
// triangles followed by its halo, in a dense local numbering.
//
// Halo slots are written only by the halo exchange. Owned slots are written
// only by the solver, which calls Commit once the owned values of a step are
// final. A Commit makes the halo stale until the next exchange.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/types"
)

// BoundaryCondition produces the value outside a physical boundary edge
type BoundaryCondition interface {
	ExteriorValue(quantity string, interior, x, y, t float64) float64
}

// Link is one peer's part of the communication schedule, in local ids.
// Send and Recv are in the peer's order of the matching global ids.
type Link struct {
	Peer       int
	Send, Recv []int // Local ids, owned and halo respectively
	SendGlobal []int
	RecvGlobal []int
}

type BoundaryEdge struct {
	Tri, Edge int // Local triangle id and edge
	Tag       string
}

type Domain struct {
	Rank, NumProcs     int
	NumGlobalTriangles int
	HaloWidth          int

	Index     *IndexMap // Triangles
	VertexMap *IndexMap // Vertices, all entries are "owned"

	VX, VY        []float64 // Local vertices
	Triangles     [][3]int  // Local vertex ids
	Neighbors     [][3]int  // Local triangle ids, NeighborBoundary or NeighborOutside
	NeighborEdges [][3]int
	Tags          map[types.TriEdge]string

	QuantityNames []string
	Quantities    map[string][]float64 // Per local triangle

	Links []Link

	boundary map[types.TriEdge]BoundaryCondition

	epoch     int // Commits so far
	syncEpoch int // Epoch of the last halo exchange, -1 before the first
	snapshot  map[string][]float64
}

// New builds the domain of a sub mesh
func New(sm *SubMesh) (d *Domain, err error) {
	if err = sm.Validate(); err != nil {
		return nil, types.ConfigErrorf("invalid sub mesh: %v", err)
	}
	d = &Domain{
		Rank:               sm.Rank,
		NumProcs:           sm.NumProcs,
		NumGlobalTriangles: sm.NumGlobalTriangles,
		HaloWidth:          sm.HaloWidth,
		VX:                 sm.VX,
		VY:                 sm.VY,
		Tags:               make(map[types.TriEdge]string),
		QuantityNames:      sm.QuantityNames,
		Quantities:         make(map[string][]float64, len(sm.QuantityNames)),
		syncEpoch:          -1,
	}
	if d.Index, err = NewIndexMap(sm.Owned, sm.Halo); err != nil {
		return nil, types.ConfigErrorf("triangle index: %v", err)
	}
	if d.VertexMap, err = NewIndexMap(sm.Vertices, nil); err != nil {
		return nil, types.ConfigErrorf("vertex index: %v", err)
	}
	nLocal := d.Index.Len()
	d.Triangles = make([][3]int, nLocal)
	d.Neighbors = make([][3]int, nLocal)
	d.NeighborEdges = make([][3]int, nLocal)
	for i := 0; i < nLocal; i++ {
		for j := 0; j < 3; j++ {
			lv, ok := d.VertexMap.LocalID(sm.Triangles[i][j])
			if !ok {
				return nil, types.ConfigErrorf("triangle %d uses vertex %d, which was not sent",
					d.Index.GlobalID(i), sm.Triangles[i][j])
			}
			d.Triangles[i][j] = lv
			d.NeighborEdges[i][j] = sm.NeighborEdges[i][j]
			switch gn := sm.Neighbors[i][j]; {
			case gn == types.NeighborBoundary:
				d.Neighbors[i][j] = types.NeighborBoundary
			default:
				if ln, ok := d.Index.LocalID(gn); ok {
					d.Neighbors[i][j] = ln
				} else {
					d.Neighbors[i][j] = types.NeighborOutside
					d.NeighborEdges[i][j] = -1
					d.Tags[types.TriEdge{Tri: i, Edge: j}] = types.GhostTag
					if d.Index.IsOwned(i) {
						return nil, types.ConfigErrorf("owned triangle %d has neighbor %d outside the halo",
							d.Index.GlobalID(i), gn)
					}
				}
			}
		}
	}
	for _, te := range sm.Tags {
		li, ok := d.Index.LocalID(te.Tri)
		if !ok || te.Edge < 0 || te.Edge > 2 {
			return nil, types.ConfigErrorf("boundary tag %s on triangle %d edge %d outside the domain",
				te.Tag, te.Tri, te.Edge)
		}
		if d.Neighbors[li][te.Edge] != types.NeighborBoundary {
			return nil, types.ConfigErrorf("boundary tag %s on interior edge %d of triangle %d",
				te.Tag, te.Edge, te.Tri)
		}
		d.Tags[types.TriEdge{Tri: li, Edge: te.Edge}] = te.Tag
	}
	for n, name := range sm.QuantityNames {
		d.Quantities[name] = append([]float64(nil), sm.Quantities[n]...)
	}
	for _, l := range sm.Links {
		var ll = Link{Peer: l.Peer, SendGlobal: l.Send, RecvGlobal: l.Recv}
		if ll.Send, err = d.Index.LocalIDs(l.Send); err != nil {
			return nil, types.ConfigErrorf("send list to process %d: %v", l.Peer, err)
		}
		if ll.Recv, err = d.Index.LocalIDs(l.Recv); err != nil {
			return nil, types.ConfigErrorf("receive list from process %d: %v", l.Peer, err)
		}
		for _, i := range ll.Send {
			if !d.Index.IsOwned(i) {
				return nil, types.ConfigErrorf("send list to process %d holds halo triangle %d",
					l.Peer, d.Index.GlobalID(i))
			}
		}
		for _, i := range ll.Recv {
			if !d.Index.IsHalo(i) {
				return nil, types.ConfigErrorf("receive list from process %d holds owned triangle %d",
					l.Peer, d.Index.GlobalID(i))
			}
		}
		d.Links = append(d.Links, ll)
	}
	return
}

// FromPartition builds the domain of process p directly from the global
// mesh, the path the root takes for its own domain.
func FromPartition(m *mesh.Mesh, pt *partition.Partition, p int) (*Domain, error) {
	sm, err := Extract(m, pt, p)
	if err != nil {
		return nil, types.ConfigErrorf("%v", err)
	}
	return New(sm)
}

func (d *Domain) NumOwned() int { return d.Index.NumOwned() }

func (d *Domain) NumHalo() int { return d.Index.NumHalo() }

func (d *Domain) NumLocal() int { return d.Index.Len() }

// Owned returns the writable owned part of a quantity
func (d *Domain) Owned(name string) []float64 {
	return d.Quantities[name][:d.NumOwned()]
}

// HaloValues returns the halo part of a quantity, which only the halo
// exchange may write
func (d *Domain) HaloValues(name string) []float64 {
	return d.Quantities[name][d.NumOwned():]
}

// OwnedGlobalIDs returns the global ids of the owned triangles
func (d *Domain) OwnedGlobalIDs() []int {
	return d.Index.Globals()[:d.NumOwned()]
}

// FullFlags marks owned triangles with 1 and halo triangles with 0
func (d *Domain) FullFlags() (flags []int32) {
	flags = make([]int32, d.NumLocal())
	for i := 0; i < d.NumOwned(); i++ {
		flags[i] = 1
	}
	return
}

func (d *Domain) Centroid(i int) (x, y float64) {
	for _, v := range d.Triangles[i] {
		x += d.VX[v]
		y += d.VY[v]
	}
	return x / 3, y / 3
}

func (d *Domain) Area(i int) float64 {
	return mesh.TriangleArea(d.VX, d.VY, d.Triangles[i])
}

// EdgeNormal returns the outward unit normal and length of edge e of
// triangle i
func (d *Domain) EdgeNormal(i, e int) (nx, ny, length float64) {
	v1, v2 := types.EdgeVertices(e)
	a, b := d.Triangles[i][v1], d.Triangles[i][v2]
	dx, dy := d.VX[b]-d.VX[a], d.VY[b]-d.VY[a]
	length = math.Hypot(dx, dy)
	// Counter-clockwise triangles have the outward normal on the right
	nx, ny = dy/length, -dx/length
	return
}

// EdgeMidpoint returns the midpoint of edge e of triangle i
func (d *Domain) EdgeMidpoint(i, e int) (x, y float64) {
	v1, v2 := types.EdgeVertices(e)
	a, b := d.Triangles[i][v1], d.Triangles[i][v2]
	return 0.5 * (d.VX[a] + d.VX[b]), 0.5 * (d.VY[a] + d.VY[b])
}

// SetBoundary routes boundary conditions to local edges by tag. Every
// physical tag present in the domain needs a condition; the ghost tag of
// the halo rim needs none.
func (d *Domain) SetBoundary(conditions map[string]BoundaryCondition) error {
	bnd := make(map[types.TriEdge]BoundaryCondition)
	var missing []string
	seen := make(map[string]bool)
	for te, tag := range d.Tags {
		if tag == types.GhostTag {
			if bc, ok := conditions[tag]; ok {
				bnd[te] = bc
			}
			continue
		}
		bc, ok := conditions[tag]
		if !ok {
			if !seen[tag] {
				seen[tag] = true
				missing = append(missing, tag)
			}
			continue
		}
		bnd[te] = bc
	}
	if len(missing) != 0 {
		sort.Strings(missing)
		return types.ConfigErrorf("no boundary condition for tags %s", strings.Join(missing, ", "))
	}
	d.boundary = bnd
	return nil
}

// Boundary returns the condition of a physical boundary edge
func (d *Domain) Boundary(i, e int) (bc BoundaryCondition, ok bool) {
	bc, ok = d.boundary[types.TriEdge{Tri: i, Edge: e}]
	return
}

// BoundaryEdges returns the tagged edges in local triangle order
func (d *Domain) BoundaryEdges() (edges []BoundaryEdge) {
	for te, tag := range d.Tags {
		edges = append(edges, BoundaryEdge{Tri: te.Tri, Edge: te.Edge, Tag: tag})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Tri != edges[j].Tri {
			return edges[i].Tri < edges[j].Tri
		}
		return edges[i].Edge < edges[j].Edge
	})
	return
}

// Epoch is the number of Commits, the step boundary the owned values are at
func (d *Domain) Epoch() int { return d.epoch }

// Commit marks the owned values of the current step as final
func (d *Domain) Commit() {
	d.epoch++
}

// MarkSynchronized records that the halo holds the owners' values at the
// current epoch. Called by the halo exchange only.
func (d *Domain) MarkSynchronized() {
	d.syncEpoch = d.epoch
	if d.snapshot == nil {
		d.snapshot = make(map[string][]float64, len(d.QuantityNames))
	}
	for _, name := range d.QuantityNames {
		d.snapshot[name] = append(d.snapshot[name][:0], d.HaloValues(name)...)
	}
}

// Synchronized reports whether the halo matches the current epoch
func (d *Domain) Synchronized() bool { return d.syncEpoch == d.epoch }

// RequireSynchronized fails when the halo is read before the exchange of
// the current step
func (d *Domain) RequireSynchronized() error {
	if d.syncEpoch != d.epoch {
		if d.syncEpoch < 0 {
			return types.ConsistencyErrorf("halo read before the first synchronization")
		}
		return types.ConsistencyErrorf("halo read at epoch %d, last synchronized at epoch %d",
			d.epoch, d.syncEpoch)
	}
	return nil
}

// VerifyHalo fails when a halo slot changed since the last exchange
func (d *Domain) VerifyHalo() error {
	if d.snapshot == nil {
		return nil
	}
	for _, name := range d.QuantityNames {
		halo, snap := d.HaloValues(name), d.snapshot[name]
		for i := range halo {
			if halo[i] != snap[i] && !(math.IsNaN(halo[i]) && math.IsNaN(snap[i])) {
				return types.ConsistencyErrorf("halo triangle %d of %s written outside synchronization",
					d.Index.GlobalID(d.NumOwned()+i), name)
			}
		}
	}
	return nil
}

// Statistics describes the domain in a few lines
func (d *Domain) Statistics() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Process %d of %d: %d owned and %d halo triangles of %d, %d vertices\n",
		d.Rank, d.NumProcs, d.NumOwned(), d.NumHalo(), d.NumGlobalTriangles, d.VertexMap.Len())
	for _, l := range d.Links {
		fmt.Fprintf(&sb, "  Peer %d: send %d, receive %d\n", l.Peer, len(l.Send), len(l.Recv))
	}
	return sb.String()
}
