package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/types"
)

type constantBC float64

func (c constantBC) ExteriorValue(quantity string, interior, x, y, t float64) float64 {
	return float64(c)
}

func buildDomains(t *testing.T, nx, ny, np, width int) (m *mesh.Mesh, pt *partition.Partition, ds []*Domain) {
	var err error
	m, err = mesh.RectangularCross(nx, ny, float64(nx), float64(ny), [2]float64{})
	require.NoError(t, err)
	m.SetQuantity("stage", func(x, y float64) float64 { return x + 100*y })
	m.SetConstant("elevation", 0)
	cfg := partition.DefaultConfig(np)
	cfg.HaloWidth = width
	pt, err = partition.Build(m, cfg)
	require.NoError(t, err)
	for p := 0; p < np; p++ {
		d, err := FromPartition(m, pt, p)
		require.NoError(t, err)
		ds = append(ds, d)
	}
	return
}

func TestIndexMap(t *testing.T) {
	im, err := NewIndexMap([]int{10, 3, 7}, []int{4, 20})
	require.NoError(t, err)
	assert.Equal(t, 3, im.NumOwned())
	assert.Equal(t, 2, im.NumHalo())
	assert.Equal(t, 5, im.Len())
	for i := 0; i < im.Len(); i++ {
		l, ok := im.LocalID(im.GlobalID(i))
		assert.True(t, ok)
		assert.Equal(t, i, l)
	}
	assert.True(t, im.IsOwned(2))
	assert.False(t, im.IsOwned(3))
	assert.True(t, im.IsHalo(3))
	assert.False(t, im.IsHalo(5))
	_, ok := im.LocalID(5)
	assert.False(t, ok)
	_, err = im.LocalIDs([]int{3, 5})
	assert.Error(t, err)
	assert.Panics(t, func() { im.GlobalID(5) })

	_, err = NewIndexMap([]int{1, 2}, []int{2})
	assert.Error(t, err)
	_, err = NewIndexMap([]int{-1}, nil)
	assert.Error(t, err)
}

func TestDomainFromPartition(t *testing.T) {
	m, pt, ds := buildDomains(t, 4, 4, 2, 1)
	for p, d := range ds {
		assert.Equal(t, len(pt.Owned[p]), d.NumOwned())
		assert.Equal(t, len(pt.Halo[p]), d.NumHalo())
		{ // Index bijection both ways
			for i := 0; i < d.NumLocal(); i++ {
				l, ok := d.Index.LocalID(d.Index.GlobalID(i))
				require.True(t, ok)
				assert.Equal(t, i, l)
			}
			for _, g := range pt.Owned[p] {
				l, ok := d.Index.LocalID(g)
				require.True(t, ok)
				assert.True(t, d.Index.IsOwned(l))
				assert.Equal(t, g, d.Index.GlobalID(l))
			}
			assert.Equal(t, pt.Owned[p], d.OwnedGlobalIDs())
		}
		{ // Geometry and quantities are the global ones
			for i := 0; i < d.NumLocal(); i++ {
				g := d.Index.GlobalID(i)
				x, y := d.Centroid(i)
				gx, gy := m.Centroid(g)
				assert.InDelta(t, gx, x, 1.e-12)
				assert.InDelta(t, gy, y, 1.e-12)
				assert.InDelta(t, m.Area(g), d.Area(i), 1.e-12)
				assert.Equal(t, m.Quantities["stage"][g], d.Quantities["stage"][i])
			}
		}
		{ // Local neighbors
			for i := 0; i < d.NumLocal(); i++ {
				g := d.Index.GlobalID(i)
				for e := 0; e < 3; e++ {
					switch ln := d.Neighbors[i][e]; ln {
					case types.NeighborBoundary:
						assert.Equal(t, types.NeighborBoundary, m.Neighbors[g][e])
						assert.Equal(t, m.Boundary[types.TriEdge{Tri: g, Edge: e}], d.Tags[types.TriEdge{Tri: i, Edge: e}])
					case types.NeighborOutside:
						assert.True(t, d.Index.IsHalo(i))
						assert.Equal(t, types.GhostTag, d.Tags[types.TriEdge{Tri: i, Edge: e}])
					default:
						assert.Equal(t, m.Neighbors[g][e], d.Index.GlobalID(ln))
						assert.Equal(t, i, d.Neighbors[ln][d.NeighborEdges[i][e]])
					}
				}
			}
		}
		{ // Schedule in local ids
			require.Len(t, d.Links, 1)
			l := d.Links[0]
			assert.Equal(t, 1-p, l.Peer)
			for n, i := range l.Send {
				assert.Equal(t, l.SendGlobal[n], d.Index.GlobalID(i))
				assert.True(t, d.Index.IsOwned(i))
			}
			for n, i := range l.Recv {
				assert.Equal(t, l.RecvGlobal[n], d.Index.GlobalID(i))
				assert.True(t, d.Index.IsHalo(i))
			}
		}
		assert.Contains(t, d.Statistics(), "32 owned and 4 halo triangles of 64")
		flags := d.FullFlags()
		assert.Equal(t, int32(1), flags[0])
		assert.Equal(t, int32(0), flags[d.NumLocal()-1])
	}
}

func TestEdgeGeometry(t *testing.T) {
	_, _, ds := buildDomains(t, 2, 2, 1, 1)
	d := ds[0]
	for i := 0; i < d.NumLocal(); i++ {
		cx, cy := d.Centroid(i)
		var perimeter, sumX, sumY float64
		for e := 0; e < 3; e++ {
			nx, ny, length := d.EdgeNormal(i, e)
			mx, my := d.EdgeMidpoint(i, e)
			// Outward: from the centroid towards the edge
			assert.True(t, nx*(mx-cx)+ny*(my-cy) > 0)
			assert.InDelta(t, 1., nx*nx+ny*ny, 1.e-12)
			perimeter += length
			sumX += nx * length
			sumY += ny * length
		}
		assert.True(t, perimeter > 0)
		// Closed contour
		assert.InDelta(t, 0., sumX, 1.e-12)
		assert.InDelta(t, 0., sumY, 1.e-12)
	}
}

func TestSetBoundary(t *testing.T) {
	_, _, ds := buildDomains(t, 4, 4, 2, 1)
	d := ds[0] // Left half, no right boundary
	err := d.SetBoundary(map[string]BoundaryCondition{"left": constantBC(1)})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.ConfigurationError))
	assert.Contains(t, err.Error(), "bottom, top")

	require.NoError(t, d.SetBoundary(map[string]BoundaryCondition{
		"left": constantBC(1), "bottom": constantBC(2), "top": constantBC(3),
	}))
	var physical, ghost int
	for _, be := range d.BoundaryEdges() {
		if be.Tag == types.GhostTag {
			ghost++
			_, ok := d.Boundary(be.Tri, be.Edge)
			assert.False(t, ok)
			continue
		}
		physical++
		bc, ok := d.Boundary(be.Tri, be.Edge)
		require.True(t, ok)
		assert.NotNil(t, bc)
	}
	// Owned boundary edges plus those of halo triangles
	assert.Equal(t, 4+2+2, physical)
	assert.Equal(t, 2*4, ghost)
}

func TestEpochs(t *testing.T) {
	_, _, ds := buildDomains(t, 4, 4, 2, 1)
	d := ds[1]
	err := d.RequireSynchronized()
	assert.True(t, types.IsKind(err, types.ConsistencyError))
	assert.False(t, d.Synchronized())

	d.MarkSynchronized()
	assert.NoError(t, d.RequireSynchronized())
	assert.NoError(t, d.VerifyHalo())

	d.Owned("stage")[0] = -1
	d.Commit()
	assert.Equal(t, 1, d.Epoch())
	err = d.RequireSynchronized()
	assert.True(t, types.IsKind(err, types.ConsistencyError))
	assert.Contains(t, err.Error(), "epoch 1")

	d.MarkSynchronized()
	assert.NoError(t, d.RequireSynchronized())
	d.HaloValues("stage")[2] += 1
	err = d.VerifyHalo()
	assert.True(t, types.IsKind(err, types.ConsistencyError))
}

func TestSubMeshValidation(t *testing.T) {
	m, pt, _ := buildDomains(t, 2, 2, 2, 1)
	sm, err := Extract(m, pt, 0)
	require.NoError(t, err)
	require.NoError(t, sm.Validate())
	assert.Equal(t, []string{"elevation", "stage"}, sm.QuantityNames)

	sm.Quantities[1] = sm.Quantities[1][:1]
	_, err = New(sm)
	assert.True(t, types.IsKind(err, types.ConfigurationError))

	sm, _ = Extract(m, pt, 0)
	sm.Links[0].Send = append([]int{}, sm.Halo[0])
	_, err = New(sm)
	assert.Error(t, err)

	_, err = Extract(m, pt, 2)
	assert.Error(t, err)
}
