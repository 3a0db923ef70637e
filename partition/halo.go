package partition

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/notargets/gohalo/mesh"
)

// haloBuilder holds the triangle adjacency graph. Node k is triangle k.
type haloBuilder struct {
	g      *simple.UndirectedGraph
	source int64 // Node id reserved for the multi-source search
}

func newHaloBuilder(m *mesh.Mesh) (hb *haloBuilder) {
	hb = &haloBuilder{
		g:      simple.NewUndirectedGraph(),
		source: int64(m.NumTriangles()),
	}
	for k := 0; k < m.NumTriangles(); k++ {
		hb.g.AddNode(simple.Node(k))
	}
	for k, nbrs := range m.Neighbors {
		for _, nbr := range nbrs {
			if nbr > k {
				hb.g.SetEdge(simple.Edge{F: simple.Node(k), T: simple.Node(nbr)})
			}
		}
	}
	return
}

func (hb *haloBuilder) components() int {
	return len(topo.ConnectedComponents(hb.g))
}

// halo returns the triangles within width edge hops of the owned set that
// process p does not own. A source node joined to every owned triangle puts
// the owned set at depth 1 and halo ring j at depth j+1.
func (hb *haloBuilder) halo(owned, owner []int, p, width int) (halo []int) {
	src := simple.Node(hb.source)
	hb.g.AddNode(src)
	defer hb.g.RemoveNode(hb.source)
	for _, k := range owned {
		hb.g.SetEdge(simple.Edge{F: src, T: simple.Node(k)})
	}
	found := make(map[int]struct{})
	var bf traverse.BreadthFirst
	bf.Walk(hb.g, src, func(n graph.Node, d int) bool {
		if d > width+1 {
			return true
		}
		if k := int(n.ID()); d > 1 && owner[k] != p {
			found[k] = struct{}{}
		}
		return false
	})
	return sortedKeys(found)
}
