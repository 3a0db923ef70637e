package sww

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
)

func TestRecorder(t *testing.T) {
	m, err := mesh.RectangularCross(2, 2, 1, 1, [2]float64{})
	require.NoError(t, err)
	m.SetQuantity("stage", func(x, y float64) float64 { return x + y })
	m.SetConstant("elevation", -2)
	pt, err := partition.Build(m, partition.DefaultConfig(2))
	require.NoError(t, err)
	d, err := domain.FromPartition(m, pt, 1)
	require.NoError(t, err)

	dir := t.TempDir()
	path := PartialName(dir, "run", 1, 2)
	assert.Equal(t, filepath.Join(dir, "run_P1_2.sww"), path)
	r, err := NewRecorder(path, "test run", d)
	require.NoError(t, err)
	require.NoError(t, r.Record(0, d))
	for i := range d.Owned("stage") {
		d.Owned("stage")[i] += 1
	}
	require.NoError(t, r.Record(0.5, d))
	require.NoError(t, r.Close())

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test run", f.Title)
	assert.Equal(t, 1, f.Processor)
	assert.Equal(t, 2, f.NumProcs)
	assert.Equal(t, 16, f.NumGlobalTriangles)
	assert.Equal(t, []string{"elevation", "stage"}, f.Quantities)
	assert.Equal(t, []float64{0, 0.5}, f.Times)
	require.Equal(t, d.NumLocal(), f.NumVolumes())
	for i := 0; i < d.NumLocal(); i++ {
		g := d.Index.GlobalID(i)
		assert.Equal(t, int32(g), f.GlobalID[i])
		assert.Equal(t, d.FullFlags()[i], f.FullFlag[i])
		assert.Equal(t, m.VX[m.Triangles[g][0]], f.X[3*i])
		assert.Equal(t, m.VY[m.Triangles[g][2]], f.Y[3*i+2])
		assert.Equal(t, -2., f.Value("elevation", 1, i))
		assert.Equal(t, m.Quantities["stage"][g], f.Value("stage", 0, i))
		if i < d.NumOwned() {
			assert.Equal(t, m.Quantities["stage"][g]+1, f.Value("stage", 1, i))
		}
	}
}

func TestRecorderLimits(t *testing.T) {
	m, err := mesh.Rectangular(1, 1, 1, 1, [2]float64{})
	require.NoError(t, err)
	m.SetConstant("stage", 0)
	pt, err := partition.Build(m, partition.DefaultConfig(1))
	require.NoError(t, err)
	d, err := domain.FromPartition(m, pt, 0)
	require.NoError(t, err)
	d.NumGlobalTriangles = MaxTriangles + 1
	_, err = NewRecorder(filepath.Join(t.TempDir(), "big.sww"), "", d)
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	f := &File{
		Processor:          -1,
		NumProcs:           1,
		NumGlobalTriangles: 1,
		GlobalID:           []int32{0},
		FullFlag:           []int32{1},
		X:                  []float64{0, 1, 0},
		Y:                  []float64{0, 0, 1},
		Times:              []float64{0},
		Quantities:         []string{"stage"},
		Values:             map[string][]float64{"stage": {1}},
	}
	require.NoError(t, f.Check())
	{ // Test ids and counts that do not fit the file
		f.NumGlobalTriangles = MaxTriangles + 1
		assert.Error(t, f.Check())
		f.NumGlobalTriangles = 1
		f.GlobalID[0] = 1
		assert.Error(t, f.Check())
		f.GlobalID[0] = -1
		assert.Error(t, f.Check())
		f.GlobalID[0] = 0
		f.Processor = 1
		assert.Error(t, f.Check())
		f.Processor = -1
		require.NoError(t, f.Check())
	}
	{ // Test reserved quantity names
		f.Quantities = []string{"time"}
		f.Values = map[string][]float64{"time": {1}}
		assert.Error(t, f.Check())
	}
	{ // Test value count
		f.Quantities = []string{"stage"}
		f.Values = map[string][]float64{"stage": {1, 2}}
		assert.Error(t, f.Check())
	}
	{ // Test no records leaves no file
		f.Values = map[string][]float64{"stage": {}}
		f.Times = nil
		path := filepath.Join(t.TempDir(), "empty.sww")
		assert.Error(t, WriteFile(path, f))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	}
}
