package metis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
)

func TestBuildGraph(t *testing.T) {
	m, err := mesh.RectangularCross(2, 2, 2, 2, [2]float64{})
	require.NoError(t, err)
	xadj, adjncy := BuildGraph(m)
	assert.Len(t, xadj, m.NumTriangles()+1)
	// Every interior edge appears twice
	var interior int
	for k := range m.Neighbors {
		for _, nbr := range m.Neighbors[k] {
			if nbr >= 0 {
				interior++
			}
		}
	}
	assert.Equal(t, interior, len(adjncy))
	assert.Equal(t, int32(len(adjncy)), xadj[len(xadj)-1])
}

func TestMetisPartition(t *testing.T) {
	m, err := mesh.RectangularCross(8, 8, 8, 8, [2]float64{})
	require.NoError(t, err)
	{ // Single partition never calls into METIS
		owner, err := New(1.05).Assign(m, 1)
		require.NoError(t, err)
		for _, p := range owner {
			assert.Equal(t, 0, p)
		}
	}
	{
		cfg := partition.DefaultConfig(4)
		cfg.Assigner = New(cfg.ImbalanceTolerance)
		pt, err := partition.Build(m, cfg)
		require.NoError(t, err)
		assert.Equal(t, "metis", pt.Strategy)
		var total int
		for _, owned := range pt.Owned {
			assert.NotEmpty(t, owned)
			total += len(owned)
		}
		assert.Equal(t, m.NumTriangles(), total)
		require.NoError(t, partition.CheckSymmetry(pt.Schedules))
	}
	{
		_, err := New(1.05).Assign(m, m.NumTriangles()+1)
		assert.Error(t, err)
	}
}
