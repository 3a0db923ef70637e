package collective

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohalo/transport"
)

func TestSynchronizer(t *testing.T) {
	for _, size := range []int{1, 2, 4} {
		g, err := transport.NewGroup(size)
		require.NoError(t, err)
		eg, ctx := errgroup.WithContext(context.Background())
		for _, e := range g.Endpoints {
			e := e
			eg.Go(func() (err error) {
				s := New(transport.NewProcessContext(e, nil))
				r := e.Rank()
				if err = s.Barrier(ctx); err != nil {
					return
				}
				var (
					n  int
					x  float64
					dt float64
				)
				if n, err = s.BroadcastInt(ctx, 0, 100+r); err != nil {
					return
				}
				assert.Equal(t, 100, n)
				if x, err = s.BroadcastFloat(ctx, size-1, float64(r)/3); err != nil {
					return
				}
				assert.Equal(t, float64(size-1)/3, x)
				if dt, err = s.GlobalMin(ctx, 0.1*float64(r+1)); err != nil {
					return
				}
				assert.Equal(t, 0.1, dt)
				s.AddCommunicationTime(time.Duration(r+1) * time.Millisecond)
				var d *Diagnostics
				if d, err = s.Gather(ctx, 10*(r+1), r); err != nil {
					return
				}
				assert.Equal(t, 10*size*(size+1)/2, d.GlobalTriangles)
				assert.Equal(t, size*(size-1)/2, d.HaloTriangles)
				assert.InDelta(t, float64(size)*1.e-3, d.MaxCommunication.Seconds(), 1.e-9)
				assert.InDelta(t, float64(size*(size+1)/2)*1.e-3, d.TotalCommunication.Seconds(), 1.e-9)
				d.Log(s.Context())
				tm := s.Timing()
				assert.Equal(t, r, tm.Rank)
				assert.NotEmpty(t, tm.Name)
				assert.Equal(t, time.Duration(r+1)*time.Millisecond, tm.Communication)
				if err = s.Report(ctx); err != nil {
					return
				}
				// The report's barriers are not part of what it reports
				assert.True(t, s.BarrierTime > tm.Barrier)
				return
			})
		}
		require.NoError(t, eg.Wait())
	}
}
