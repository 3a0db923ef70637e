package evolve

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/halo"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
)

// counter adds dt to every owned value
type counter struct {
	dt     float64
	failAt int
	steps  int
}

func (c *counter) Timestep(d *domain.Domain) float64 { return c.dt }

func (c *counter) Step(d *domain.Domain, t, dt float64) error {
	c.steps++
	if c.steps == c.failAt {
		return errors.New("solver blew up")
	}
	if err := d.RequireSynchronized(); err != nil {
		return err
	}
	for i := range d.Owned("stage") {
		d.Owned("stage")[i] += dt
	}
	return nil
}

type poison struct{}

func (poison) Timestep(d *domain.Domain) float64 { return 0.1 }

func (poison) Step(d *domain.Domain, t, dt float64) error {
	d.Owned("stage")[0] = math.NaN()
	return nil
}

type times []float64

func (ts *times) Record(t float64, d *domain.Domain) error {
	*ts = append(*ts, t)
	return nil
}

func newLoop(t *testing.T, solver Solver, cfg Config) (*Loop, *domain.Domain) {
	m, err := mesh.Rectangular(2, 2, 1, 1, [2]float64{})
	require.NoError(t, err)
	m.SetConstant("stage", 0)
	pt, err := partition.Build(m, partition.DefaultConfig(1))
	require.NoError(t, err)
	d, err := domain.FromPartition(m, pt, 0)
	require.NoError(t, err)
	sync := collective.New(transport.NewProcessContext(transport.NewLocal(), nil))
	x, err := halo.New(sync, d)
	require.NoError(t, err)
	l, err := New(sync, x, d, solver, cfg)
	require.NoError(t, err)
	return l, d
}

func TestYields(t *testing.T) {
	var rec times
	l, d := newLoop(t, &counter{dt: 0.3}, Config{YieldStep: 0.5, FinalTime: 1.2})
	l.Recorder = &rec
	var callbacks int
	l.OnYield = func(t float64, step int) { callbacks++ }
	require.NoError(t, l.Run(context.Background()))
	// 0.3 0.5 | 0.8 1.0 | 1.2
	assert.Equal(t, 5, l.Steps)
	assert.Equal(t, []float64{0, 0.5, 1.0, 1.2}, []float64(rec))
	assert.Equal(t, 4, callbacks)
	assert.Equal(t, 5, d.Epoch())
	assert.True(t, d.Synchronized())
	assert.InDelta(t, 1.2, d.Owned("stage")[0], 1.e-12)
}

func TestMaxSteps(t *testing.T) {
	var rec times
	l, _ := newLoop(t, &counter{dt: 0.1}, Config{FinalTime: 10, MaxSteps: 3})
	l.Recorder = &rec
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 3, l.Steps)
	require.Len(t, rec, 2)
	assert.InDelta(t, 0.3, rec[1], 1.e-12)
}

func TestUnlimitedTimestep(t *testing.T) {
	l, _ := newLoop(t, &counter{dt: math.Inf(1)}, Config{FinalTime: 2, YieldStep: 1})
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 2, l.Steps)
	assert.Equal(t, 2., l.Time)
}

func TestFailures(t *testing.T) {
	{ // Test solver failure carries the step
		l, _ := newLoop(t, &counter{dt: 0.1, failAt: 3}, Config{FinalTime: 1})
		err := l.Run(context.Background())
		var re *types.RunError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 0, re.Rank)
		assert.Equal(t, 2, re.Step)
		assert.Equal(t, types.ConsistencyError, re.Kind)
		assert.Contains(t, err.Error(), "process 0, step 2")
	}
	{ // Test invalid timestep
		l, _ := newLoop(t, &counter{dt: math.NaN()}, Config{FinalTime: 1})
		err := l.Run(context.Background())
		assert.True(t, types.IsKind(err, types.ConsistencyError))
	}
	{ // Test NaN left in owned values
		l, _ := newLoop(t, poison{}, Config{FinalTime: 1})
		err := l.Run(context.Background())
		assert.True(t, types.IsKind(err, types.ConsistencyError))
		assert.Contains(t, err.Error(), "NaN in stage")
	}
	{ // Test configuration
		sync := collective.New(transport.NewProcessContext(transport.NewLocal(), nil))
		_, err := New(sync, nil, nil, &counter{}, Config{FinalTime: 0})
		assert.True(t, types.IsKind(err, types.ConfigurationError))
		_, err = New(sync, nil, nil, &counter{}, Config{FinalTime: 1, MaxSteps: -1})
		assert.True(t, types.IsKind(err, types.ConfigurationError))
	}
}

func TestVerifiedYields(t *testing.T) {
	l, _ := newLoop(t, &counter{dt: 0.5}, Config{FinalTime: 1, Verify: true})
	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 2, l.Yields)
	// One exchange per step plus the initial one, and one more per yield
	assert.Equal(t, 1+2+2, l.x.Exchanges)
}
