// Package transport is the message passing substrate between the processes
// of a run: ordered point-to-point messages plus barrier, broadcast and
// reduction collectives.
//
// Collectives require every process of the group to make the matching call.
// A process that never makes it blocks the others until their context ends
// or the transport is closed.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Transport is implemented by Local, Endpoint (in-process group) and Network.
// Messages between one pair of processes with one tag arrive in send order.
// Application tags must be non-negative; negative tags are reserved for the
// collectives.
type Transport interface {
	Rank() int
	Size() int
	Send(ctx context.Context, dest, tag int, payload []byte) error
	Receive(ctx context.Context, src, tag int) ([]byte, error)
	Barrier(ctx context.Context) error
	// Broadcast returns root's payload on every process
	Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error)
	// Reduce returns the combined value on root, other processes get their
	// own value back
	Reduce(ctx context.Context, root int, value float64, op Op) (float64, error)
	AllReduce(ctx context.Context, value float64, op Op) (float64, error)
	Close() error
}

// Reserved tags
const (
	TagBarrier = -1 - iota
	TagBroadcast
	TagReduce
)

type Op uint8

const (
	Sum Op = iota
	Min
	Max
)

func (op Op) String() string {
	switch op {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

func (op Op) Combine(a, b float64) float64 {
	switch op {
	case Min:
		return math.Min(a, b)
	case Max:
		return math.Max(a, b)
	default:
		return a + b
	}
}

func checkPeer(t interface{ Size() int }, peer int) error {
	if peer < 0 || peer >= t.Size() {
		return fmt.Errorf("process %d out of range for group of %d", peer, t.Size())
	}
	return nil
}

func checkTag(tag int) error {
	if tag < 0 {
		return fmt.Errorf("tag %d is reserved", tag)
	}
	return nil
}

func encodeFloat(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeFloat(buf []byte) (float64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("reduction payload of %d bytes, expected 8", len(buf))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// EncodeFloats packs values little endian, the halo exchange payload format
func EncodeFloats(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func DecodeFloats(buf []byte, vals []float64) error {
	if len(buf) != 8*len(vals) {
		return fmt.Errorf("payload of %d bytes, expected %d values", len(buf), len(vals))
	}
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}
