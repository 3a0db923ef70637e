// Package distribute ships each process its part of the global mesh. The
// root holds the mesh and the partition; every other process receives a
// gob encoded sub mesh and builds its domain from it.
package distribute

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/partition"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
)

const (
	TagPayload = 100

	DefaultTimeout = 60 * time.Second

	noPartition = -1
)

type State int32

const (
	Undistributed State = iota
	Distributing
	Distributed
)

func (s State) String() string {
	return [...]string{"UNDISTRIBUTED", "DISTRIBUTING", "DISTRIBUTED"}[s]
}

// Distributor runs the distribution once per run
type Distributor struct {
	sync    *collective.Synchronizer
	pc      *transport.ProcessContext
	state   State
	Timeout time.Duration // Bound on every wait of a worker
}

func New(sync *collective.Synchronizer, timeout time.Duration) *Distributor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Distributor{
		sync:    sync,
		pc:      sync.Context(),
		state:   Undistributed,
		Timeout: timeout,
	}
}

func (d *Distributor) State() State { return d.state }

// Distribute is called by every process. The mesh and partition are only
// read on the root and may be nil elsewhere. Every process returns from it
// only after all of them hold their domain.
func (d *Distributor) Distribute(ctx context.Context, m *mesh.Mesh, pt *partition.Partition) (dom *domain.Domain, err error) {
	defer func() {
		err = types.Locate(err, d.pc.Rank, types.NoStep)
	}()
	if err = d.start(); err != nil {
		return
	}
	count := noPartition
	if d.pc.IsRoot() && pt != nil {
		count = pt.NumProcs
	}
	if err = d.handshake(ctx, count); err != nil {
		return
	}
	if d.pc.IsRoot() {
		if dom, err = d.sendAll(ctx, m, pt); err != nil {
			return
		}
	} else {
		if dom, err = d.receive(ctx); err != nil {
			return
		}
	}
	return dom, d.finish(ctx, dom)
}

// Abandon is called by the root in place of Distribute when it could not
// prepare the mesh or the partition. The other processes fail their
// Distribute with a configuration error instead of waiting for a payload.
func (d *Distributor) Abandon(ctx context.Context, cause error) (err error) {
	if err = d.start(); err != nil {
		return types.Locate(err, d.pc.Rank, types.NoStep)
	}
	if !d.pc.IsRoot() {
		return types.Locate(types.ConfigErrorf("only the root process abandons a distribution"), d.pc.Rank, types.NoStep)
	}
	// The handshake fails on every process, the root reports its own cause
	_ = d.handshake(ctx, noPartition)
	return types.Locate(cause, d.pc.Rank, types.NoStep)
}

// Generate builds the domain of every process without a root. Each process
// runs build, which must return the same mesh and partition everywhere, and
// keeps its own part; no mesh data crosses the transport. A build failure on
// any process fails every process.
func (d *Distributor) Generate(ctx context.Context,
	build func() (*mesh.Mesh, *partition.Partition, error)) (dom *domain.Domain, err error) {
	defer func() {
		err = types.Locate(err, d.pc.Rank, types.NoStep)
	}()
	if err = d.start(); err != nil {
		return
	}
	m, pt, berr := build()
	var failed float64
	switch {
	case berr != nil:
		failed = 1
	case pt.NumProcs != d.pc.Size:
		failed = 1
		berr = types.ConfigErrorf("partition is for %d processes, the run has %d", pt.NumProcs, d.pc.Size)
	}
	wctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	if failed, err = d.sync.AllReduce(wctx, failed, transport.Max); err != nil {
		return nil, waitError(err, "mesh generation agreement", d.Timeout)
	}
	switch {
	case berr != nil:
		return nil, berr
	case failed != 0:
		return nil, types.ConfigErrorf("another process could not generate its mesh")
	}
	var sm *domain.SubMesh
	if sm, err = domain.Extract(m, pt, d.pc.Rank); err != nil {
		return nil, types.ConfigErrorf("%v", err)
	}
	if dom, err = domain.New(sm); err != nil {
		return
	}
	return dom, d.finish(ctx, dom)
}

func (d *Distributor) start() error {
	if d.state != Undistributed {
		return types.ConfigErrorf("distribution already %s", d.state)
	}
	d.state = Distributing
	return nil
}

// finish holds every process until all domains are populated
func (d *Distributor) finish(ctx context.Context, dom *domain.Domain) (err error) {
	wctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	if err = d.sync.Barrier(wctx); err != nil {
		return fmt.Errorf("distribution barrier: %w", err)
	}
	d.state = Distributed
	d.pc.Log.Debugf("Distributed: %d owned, %d halo triangles", dom.NumOwned(), dom.NumHalo())
	return
}

// handshake checks that the partition was made for the number of live
// processes. The root broadcasts the partition's process count, noPartition
// when it has none, then every process reports whether it matches its own
// group size.
func (d *Distributor) handshake(ctx context.Context, count int) (err error) {
	wctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	if count, err = d.sync.BroadcastInt(wctx, d.pc.Root, count); err != nil {
		return waitError(err, "process count from root", d.Timeout)
	}
	if count == noPartition {
		return types.ConfigErrorf("root process has no partition to distribute")
	}
	var mismatch float64
	if count != d.pc.Size {
		mismatch = 1
	}
	if mismatch, err = d.sync.AllReduce(wctx, mismatch, transport.Max); err != nil {
		return waitError(err, "process count agreement", d.Timeout)
	}
	if mismatch != 0 {
		return types.ConfigErrorf("partition is for %d processes, the run has %d", count, d.pc.Size)
	}
	return
}

func waitError(err error, what string, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.ConfigErrorf("no %s within %v, check the process count: %v", what, timeout, err)
	}
	return types.CommErrorf("%s: %v", what, err)
}

func (d *Distributor) sendAll(ctx context.Context, m *mesh.Mesh, pt *partition.Partition) (dom *domain.Domain, err error) {
	if m == nil {
		return nil, types.ConfigErrorf("root has no mesh to distribute")
	}
	for p := 0; p < pt.NumProcs; p++ {
		var sm *domain.SubMesh
		if sm, err = domain.Extract(m, pt, p); err != nil {
			return nil, types.ConfigErrorf("%v", err)
		}
		if p == d.pc.Root {
			// Direct assignment, no self send
			if dom, err = domain.New(sm); err != nil {
				return
			}
			continue
		}
		var payload []byte
		if payload, err = Encode(sm); err != nil {
			return
		}
		if err = d.pc.Transport.Send(ctx, p, TagPayload, payload); err != nil {
			return nil, types.CommErrorf("sending sub mesh to process %d: %v", p, err)
		}
		d.pc.Log.Debugf("Sent %d bytes to process %d", len(payload), p)
	}
	return
}

func (d *Distributor) receive(ctx context.Context) (dom *domain.Domain, err error) {
	wctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	var payload []byte
	if payload, err = d.pc.Transport.Receive(wctx, d.pc.Root, TagPayload); err != nil {
		return nil, waitError(err, "sub mesh from root", d.Timeout)
	}
	var sm *domain.SubMesh
	if sm, err = Decode(payload); err != nil {
		return
	}
	if sm.Rank != d.pc.Rank || sm.NumProcs != d.pc.Size {
		return nil, types.ConfigErrorf("received the sub mesh of process %d of %d", sm.Rank, sm.NumProcs)
	}
	return domain.New(sm)
}

func Encode(sm *domain.SubMesh) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sm); err != nil {
		return nil, types.CommErrorf("encoding sub mesh of process %d: %v", sm.Rank, err)
	}
	return buf.Bytes(), nil
}

func Decode(payload []byte) (*domain.SubMesh, error) {
	sm := &domain.SubMesh{}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(sm); err != nil {
		return nil, types.CommErrorf("decoding sub mesh: %v", err)
	}
	return sm, nil
}
