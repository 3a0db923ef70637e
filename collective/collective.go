// Package collective wraps the transport collectives of one process with
// timers, and gathers run-wide diagnostics through reductions.
package collective

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/notargets/gohalo/transport"
)

// Synchronizer keeps the processes of a run in lockstep. Every method is a
// collective: all processes must call it, in the same order.
type Synchronizer struct {
	pc *transport.ProcessContext

	// Accumulated wall time
	CommunicationTime time.Duration // Halo exchange
	ReduceTime        time.Duration
	BroadcastTime     time.Duration
	BarrierTime       time.Duration
}

func New(pc *transport.ProcessContext) *Synchronizer {
	return &Synchronizer{pc: pc}
}

func (s *Synchronizer) Context() *transport.ProcessContext { return s.pc }

func (s *Synchronizer) Barrier(ctx context.Context) (err error) {
	t0 := time.Now()
	defer func() { s.BarrierTime += time.Since(t0) }()
	if err = s.pc.Transport.Barrier(ctx); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	return
}

func (s *Synchronizer) BroadcastBytes(ctx context.Context, root int, payload []byte) (out []byte, err error) {
	t0 := time.Now()
	defer func() { s.BroadcastTime += time.Since(t0) }()
	if out, err = s.pc.Transport.Broadcast(ctx, root, payload); err != nil {
		return nil, fmt.Errorf("broadcast from process %d: %w", root, err)
	}
	return
}

func (s *Synchronizer) BroadcastFloat(ctx context.Context, root int, value float64) (float64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(value))
	out, err := s.BroadcastBytes(ctx, root, buf)
	if err != nil {
		return 0, err
	}
	if len(out) != 8 {
		return 0, fmt.Errorf("broadcast float of %d bytes", len(out))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(out)), nil
}

func (s *Synchronizer) BroadcastInt(ctx context.Context, root int, value int) (int, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(int64(value)))
	out, err := s.BroadcastBytes(ctx, root, buf)
	if err != nil {
		return 0, err
	}
	if len(out) != 8 {
		return 0, fmt.Errorf("broadcast int of %d bytes", len(out))
	}
	return int(int64(binary.LittleEndian.Uint64(out))), nil
}

// Reduce returns the combined value on root only
func (s *Synchronizer) Reduce(ctx context.Context, root int, value float64, op transport.Op) (out float64, err error) {
	t0 := time.Now()
	defer func() { s.ReduceTime += time.Since(t0) }()
	if out, err = s.pc.Transport.Reduce(ctx, root, value, op); err != nil {
		return 0, fmt.Errorf("%s reduction: %w", op, err)
	}
	return
}

// AllReduce returns the combined value on every process
func (s *Synchronizer) AllReduce(ctx context.Context, value float64, op transport.Op) (out float64, err error) {
	t0 := time.Now()
	defer func() { s.ReduceTime += time.Since(t0) }()
	if out, err = s.pc.Transport.AllReduce(ctx, value, op); err != nil {
		return 0, fmt.Errorf("%s all-reduction: %w", op, err)
	}
	return
}

// GlobalMin is the global stable timestep reduction
func (s *Synchronizer) GlobalMin(ctx context.Context, value float64) (float64, error) {
	return s.AllReduce(ctx, value, transport.Min)
}

// AddCommunicationTime is called by the halo exchange after each exchange
func (s *Synchronizer) AddCommunicationTime(d time.Duration) {
	s.CommunicationTime += d
}

// Timing is the accumulated wall time of one process
type Timing struct {
	Rank          int
	Name          string
	Communication time.Duration
	Reduce        time.Duration
	Broadcast     time.Duration
	Barrier       time.Duration
}

func (s *Synchronizer) Timing() Timing {
	return Timing{
		Rank:          s.pc.Rank,
		Name:          s.pc.Name,
		Communication: s.CommunicationTime,
		Reduce:        s.ReduceTime,
		Broadcast:     s.BroadcastTime,
		Barrier:       s.BarrierTime,
	}
}

// Report logs the timers of every process, one process at a time in rank
// order. The timers are read before the report's own barriers.
func (s *Synchronizer) Report(ctx context.Context) (err error) {
	tm := s.Timing()
	for p := 0; p < s.pc.Size; p++ {
		if err = s.Barrier(ctx); err != nil {
			return
		}
		if p == s.pc.Rank {
			s.pc.Log.Debugf("P%d on %s: communication %v, reduction %v, broadcast %v, barrier %v",
				tm.Rank, tm.Name, tm.Communication, tm.Reduce, tm.Broadcast, tm.Barrier)
		}
	}
	return
}

// Diagnostics are run-wide totals, identical on every process
type Diagnostics struct {
	GlobalTriangles    int // Sum of owned triangles
	HaloTriangles      int
	MaxCommunication   time.Duration
	MaxReduce          time.Duration
	MaxBroadcast       time.Duration
	TotalCommunication time.Duration
}

// Gather reduces the triangle counts and the timers of every process
func (s *Synchronizer) Gather(ctx context.Context, owned, halo int) (d *Diagnostics, err error) {
	var (
		comm, red, bcast = s.CommunicationTime, s.ReduceTime, s.BroadcastTime
		v                float64
	)
	d = &Diagnostics{}
	if v, err = s.AllReduce(ctx, float64(owned), transport.Sum); err != nil {
		return nil, err
	}
	d.GlobalTriangles = int(v)
	if v, err = s.AllReduce(ctx, float64(halo), transport.Sum); err != nil {
		return nil, err
	}
	d.HaloTriangles = int(v)
	if v, err = s.AllReduce(ctx, comm.Seconds(), transport.Max); err != nil {
		return nil, err
	}
	d.MaxCommunication = seconds(v)
	if v, err = s.AllReduce(ctx, comm.Seconds(), transport.Sum); err != nil {
		return nil, err
	}
	d.TotalCommunication = seconds(v)
	if v, err = s.AllReduce(ctx, red.Seconds(), transport.Max); err != nil {
		return nil, err
	}
	d.MaxReduce = seconds(v)
	if v, err = s.AllReduce(ctx, bcast.Seconds(), transport.Max); err != nil {
		return nil, err
	}
	d.MaxBroadcast = seconds(v)
	return
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Log reports the diagnostics on the root process
func (d *Diagnostics) Log(pc *transport.ProcessContext) {
	if !pc.IsRoot() {
		return
	}
	pc.Log.Infof("Global triangles: %d, halo triangles: %d", d.GlobalTriangles, d.HaloTriangles)
	pc.Log.Infof("Communication time: max %v, total %v", d.MaxCommunication, d.TotalCommunication)
	pc.Log.Infof("Reduction time: max %v, broadcast time: max %v", d.MaxReduce, d.MaxBroadcast)
}
