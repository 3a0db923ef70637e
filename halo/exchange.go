// Package halo refreshes the halo triangles of a domain from their owners,
// following the domain's static communication schedule.
package halo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/notargets/gohalo/collective"
	"github.com/notargets/gohalo/domain"
	"github.com/notargets/gohalo/transport"
	"github.com/notargets/gohalo/types"
)

const TagHalo = 200

// Exchanger is the halo exchange of one domain. Each message carries the
// sender's epoch followed by the values of every quantity, in name order,
// for the triangles of the link's send list.
type Exchanger struct {
	sync *collective.Synchronizer
	pc   *transport.ProcessContext
	dom  *domain.Domain

	Exchanges int
	BytesSent int

	bufs [][]float64 // Per link
}

func New(sync *collective.Synchronizer, dom *domain.Domain) (x *Exchanger, err error) {
	pc := sync.Context()
	if dom.Rank != pc.Rank || dom.NumProcs != pc.Size {
		return nil, types.Locate(types.ConfigErrorf("domain of process %d of %d used by process %d of %d",
			dom.Rank, dom.NumProcs, pc.Rank, pc.Size), pc.Rank, types.NoStep)
	}
	x = &Exchanger{
		sync: sync,
		pc:   pc,
		dom:  dom,
		bufs: make([][]float64, len(dom.Links)),
	}
	nq := len(dom.QuantityNames)
	for n, l := range dom.Links {
		x.bufs[n] = make([]float64, 1+nq*max(len(l.Send), len(l.Recv)))
	}
	return
}

// Synchronize is collective over the processes linked to this one. Sends
// never block, so posting every send before the first receive cannot
// deadlock whatever the order of the links.
func (x *Exchanger) Synchronize(ctx context.Context) (err error) {
	t0 := time.Now()
	defer func() {
		x.sync.AddCommunicationTime(time.Since(t0))
		err = types.Locate(err, x.pc.Rank, types.NoStep)
	}()
	d := x.dom
	if err = d.VerifyHalo(); err != nil {
		return
	}
	epoch := d.Epoch()
	for n, l := range d.Links {
		buf := x.pack(n, l, epoch)
		payload := transport.EncodeFloats(buf)
		if err = x.pc.Transport.Send(ctx, l.Peer, TagHalo, payload); err != nil {
			return types.CommErrorf("halo send to process %d: %v", l.Peer, err)
		}
		x.BytesSent += len(payload)
	}
	for n, l := range d.Links {
		var payload []byte
		if payload, err = x.pc.Transport.Receive(ctx, l.Peer, TagHalo); err != nil {
			return types.CommErrorf("halo receive from process %d: %v", l.Peer, err)
		}
		if err = x.unpack(n, l, epoch, payload); err != nil {
			return
		}
	}
	d.MarkSynchronized()
	x.Exchanges++
	return
}

func (x *Exchanger) pack(n int, l domain.Link, epoch int) (buf []float64) {
	d := x.dom
	buf = x.bufs[n][:1+len(d.QuantityNames)*len(l.Send)]
	buf[0] = float64(epoch)
	off := 1
	for _, name := range d.QuantityNames {
		q := d.Quantities[name]
		for _, i := range l.Send {
			buf[off] = q[i]
			off++
		}
	}
	return
}

func (x *Exchanger) unpack(n int, l domain.Link, epoch int, payload []byte) (err error) {
	d := x.dom
	buf := x.bufs[n][:1+len(d.QuantityNames)*len(l.Recv)]
	if err = transport.DecodeFloats(payload, buf); err != nil {
		return types.ConsistencyErrorf("halo from process %d: %v", l.Peer, err)
	}
	if peerEpoch := buf[0]; peerEpoch != float64(epoch) || math.IsNaN(peerEpoch) {
		return types.ConsistencyErrorf("halo from process %d is at epoch %v, local epoch is %d",
			l.Peer, peerEpoch, epoch)
	}
	off := 1
	for _, name := range d.QuantityNames {
		q := d.Quantities[name]
		for _, i := range l.Recv {
			q[i] = buf[off]
			off++
		}
	}
	return
}

// Verify compares every halo value with the owner's, through a second
// exchange of the same payload. It is a debugging aid and costs one full
// exchange.
func (x *Exchanger) Verify(ctx context.Context) (err error) {
	d := x.dom
	if err = d.RequireSynchronized(); err != nil {
		return types.Locate(err, x.pc.Rank, types.NoStep)
	}
	saved := make(map[string][]float64, len(d.QuantityNames))
	for _, name := range d.QuantityNames {
		saved[name] = append([]float64(nil), d.HaloValues(name)...)
	}
	if err = x.Synchronize(ctx); err != nil {
		return
	}
	for _, name := range d.QuantityNames {
		fresh := d.HaloValues(name)
		for i, v := range saved[name] {
			if v != fresh[i] && !(math.IsNaN(v) && math.IsNaN(fresh[i])) {
				return types.Locate(types.ConsistencyErrorf("halo triangle %d of %s is %v, owner has %v",
					d.Index.GlobalID(d.NumOwned()+i), name, v, fresh[i]), x.pc.Rank, types.NoStep)
			}
		}
	}
	return
}

func (x *Exchanger) String() string {
	return fmt.Sprintf("%d exchanges, %d bytes sent", x.Exchanges, x.BytesSent)
}
