package domain

import (
	"fmt"
	"sort"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/types"
)

// SubMesh is everything one process needs to build its domain, expressed in
// global ids. It is what the root sends to each process.
type SubMesh struct {
	Rank, NumProcs     int
	NumGlobalTriangles int
	HaloWidth          int
	Owned, Halo        []int // Global triangle ids, ascending

	// Per local triangle, owned then halo
	Triangles     [][3]int // Global vertex ids
	Neighbors     [][3]int // Global triangle ids, NeighborBoundary on the physical boundary
	NeighborEdges [][3]int

	Vertices []int // Global vertex ids, ascending
	VX, VY   []float64

	Tags []TagEntry // Physical boundary tags of local triangles

	QuantityNames []string    // Ascending
	Quantities    [][]float64 // Per name, per local triangle

	Links []partition.Link // Communication schedule, global ids
}

type TagEntry struct {
	Tri  int // Global triangle id
	Edge int
	Tag  string
}

// Extract cuts the sub mesh of process p out of the global mesh
func Extract(m *mesh.Mesh, pt *partition.Partition, p int) (sm *SubMesh, err error) {
	if p < 0 || p >= pt.NumProcs {
		return nil, fmt.Errorf("process %d out of range for %d processes", p, pt.NumProcs)
	}
	var (
		locals = pt.LocalTriangles(p)
		nLocal = len(locals)
		verts  = make(map[int]struct{})
	)
	sm = &SubMesh{
		Rank:               p,
		NumProcs:           pt.NumProcs,
		NumGlobalTriangles: pt.NumTriangles,
		HaloWidth:          pt.HaloWidth,
		Owned:              append([]int(nil), pt.Owned[p]...),
		Halo:               append([]int(nil), pt.Halo[p]...),
		Triangles:          make([][3]int, nLocal),
		Neighbors:          make([][3]int, nLocal),
		NeighborEdges:      make([][3]int, nLocal),
		QuantityNames:      m.QuantityNames(),
	}
	for _, l := range pt.Schedules[p].Links {
		sm.Links = append(sm.Links, partition.Link{
			Peer: l.Peer,
			Send: append([]int(nil), l.Send...),
			Recv: append([]int(nil), l.Recv...),
		})
	}
	for i, k := range locals {
		sm.Triangles[i] = m.Triangles[k]
		sm.Neighbors[i] = m.Neighbors[k]
		sm.NeighborEdges[i] = m.NeighborEdges[k]
		for _, v := range m.Triangles[k] {
			verts[v] = struct{}{}
		}
		for e := 0; e < 3; e++ {
			if tag, ok := m.Boundary[types.TriEdge{Tri: k, Edge: e}]; ok {
				sm.Tags = append(sm.Tags, TagEntry{Tri: k, Edge: e, Tag: tag})
			}
		}
	}
	sm.Vertices = make([]int, 0, len(verts))
	for v := range verts {
		sm.Vertices = append(sm.Vertices, v)
	}
	sort.Ints(sm.Vertices)
	sm.VX, sm.VY = make([]float64, len(sm.Vertices)), make([]float64, len(sm.Vertices))
	for i, v := range sm.Vertices {
		sm.VX[i], sm.VY[i] = m.VX[v], m.VY[v]
	}
	sm.Quantities = make([][]float64, len(sm.QuantityNames))
	for n, name := range sm.QuantityNames {
		vals := make([]float64, nLocal)
		for i, k := range locals {
			vals[i] = m.Quantities[name][k]
		}
		sm.Quantities[n] = vals
	}
	return
}

// Validate checks the internal consistency of a received sub mesh
func (sm *SubMesh) Validate() error {
	nLocal := len(sm.Owned) + len(sm.Halo)
	switch {
	case len(sm.Owned) == 0:
		return fmt.Errorf("process %d owns no triangles", sm.Rank)
	case len(sm.Triangles) != nLocal || len(sm.Neighbors) != nLocal || len(sm.NeighborEdges) != nLocal:
		return fmt.Errorf("connectivity covers %d triangles, domain has %d", len(sm.Triangles), nLocal)
	case len(sm.VX) != len(sm.Vertices) || len(sm.VY) != len(sm.Vertices):
		return fmt.Errorf("vertex coordinates do not match %d vertices", len(sm.Vertices))
	case len(sm.Quantities) != len(sm.QuantityNames):
		return fmt.Errorf("%d quantity arrays for %d names", len(sm.Quantities), len(sm.QuantityNames))
	}
	for n, vals := range sm.Quantities {
		if len(vals) != nLocal {
			return fmt.Errorf("quantity %s has %d values, domain has %d triangles",
				sm.QuantityNames[n], len(vals), nLocal)
		}
	}
	return nil
}
