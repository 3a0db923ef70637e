package halo

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
)

type process struct {
	sync *collective.Synchronizer
	dom  *domain.Domain
	x    *Exchanger
}

func setup(t *testing.T, np, width int) (procs []*process, g *transport.Group) {
	m, err := mesh.RectangularCross(6, 6, 1, 1, [2]float64{})
	require.NoError(t, err)
	m.SetConstant("stage", -1)
	m.SetConstant("xmomentum", -1)
	cfg := partition.DefaultConfig(np)
	cfg.HaloWidth = width
	pt, err := partition.Build(m, cfg)
	require.NoError(t, err)
	g, err = transport.NewGroup(np)
	require.NoError(t, err)
	for p := 0; p < np; p++ {
		d, err := domain.FromPartition(m, pt, p)
		require.NoError(t, err)
		s := collective.New(transport.NewProcessContext(g.Endpoints[p], log.StandardLogger()))
		x, err := New(s, d)
		require.NoError(t, err)
		procs = append(procs, &process{sync: s, dom: d, x: x})
	}
	return
}

func runAll(procs []*process, fn func(ctx context.Context, p *process) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var eg errgroup.Group
	for _, p := range procs {
		p := p
		eg.Go(func() error { return fn(ctx, p) })
	}
	return eg.Wait()
}

func value(g, step int) float64 { return float64(1000*step + g) }

func TestSynchronize(t *testing.T) {
	for _, width := range []int{1, 2} {
		procs, _ := setup(t, 4, width)
		err := runAll(procs, func(ctx context.Context, p *process) (err error) {
			d := p.dom
			for step := 0; step < 3; step++ {
				for i := 0; i < d.NumOwned(); i++ {
					g := d.Index.GlobalID(i)
					d.Owned("stage")[i] = value(g, step)
					d.Owned("xmomentum")[i] = -value(g, step)
				}
				if step > 0 {
					d.Commit()
				}
				if err = p.x.Synchronize(ctx); err != nil {
					return
				}
				assert.NoError(t, d.RequireSynchronized())
				for h := 0; h < d.NumHalo(); h++ {
					g := d.Index.GlobalID(d.NumOwned() + h)
					assert.Equal(t, value(g, step), d.HaloValues("stage")[h])
					assert.Equal(t, -value(g, step), d.HaloValues("xmomentum")[h])
				}
			}
			return p.x.Verify(ctx)
		})
		require.NoError(t, err)
		for _, p := range procs {
			assert.Equal(t, 4, p.x.Exchanges)
			assert.True(t, p.sync.CommunicationTime > 0)
		}
	}
}

func TestSingleProcess(t *testing.T) {
	procs, _ := setup(t, 1, 1)
	p := procs[0]
	assert.Equal(t, 0, p.dom.NumHalo())
	require.NoError(t, p.x.Synchronize(context.Background()))
	assert.True(t, p.dom.Synchronized())
	assert.Equal(t, 0, p.x.BytesSent)
}

func TestEpochMismatch(t *testing.T) {
	procs, _ := setup(t, 2, 1)
	// Process 1 runs a step ahead
	procs[1].dom.Commit()
	err := runAll(procs, func(ctx context.Context, p *process) error {
		err := p.x.Synchronize(ctx)
		assert.True(t, types.IsKind(err, types.ConsistencyError))
		var re *types.RunError
		if assert.ErrorAs(t, err, &re) {
			assert.Equal(t, p.dom.Rank, re.Rank)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestHaloWrittenOutsideSynchronize(t *testing.T) {
	procs, _ := setup(t, 2, 1)
	require.NoError(t, runAll(procs, func(ctx context.Context, p *process) error {
		return p.x.Synchronize(ctx)
	}))
	d := procs[0].dom
	d.HaloValues("stage")[0] = 42
	err := procs[0].x.Synchronize(context.Background())
	assert.True(t, types.IsKind(err, types.ConsistencyError))
	assert.Contains(t, err.Error(), "written outside synchronization")
}

func TestMismatchedDomain(t *testing.T) {
	procs, g := setup(t, 2, 1)
	s := collective.New(transport.NewProcessContext(g.Endpoints[1], nil))
	_, err := New(s, procs[0].dom)
	assert.True(t, types.IsKind(err, types.ConfigurationError))
}
