package transport

import (
	"context"
)

// pointToPoint is what the collectives are built from. The raw send and
// receive accept reserved tags.
type pointToPoint interface {
	Rank() int
	Size() int
	send(ctx context.Context, dest, tag int, payload []byte) error
	receive(ctx context.Context, src, tag int) ([]byte, error)
}

// barrier gathers an arrival from every process on rank 0, then releases
// them. Per pair and tag ordering keeps consecutive barriers apart.
func barrier(ctx context.Context, t pointToPoint) (err error) {
	if t.Size() == 1 {
		return
	}
	if t.Rank() != 0 {
		if err = t.send(ctx, 0, TagBarrier, nil); err != nil {
			return
		}
		_, err = t.receive(ctx, 0, TagBarrier)
		return
	}
	for p := 1; p < t.Size(); p++ {
		if _, err = t.receive(ctx, p, TagBarrier); err != nil {
			return
		}
	}
	for p := 1; p < t.Size(); p++ {
		if err = t.send(ctx, p, TagBarrier, nil); err != nil {
			return
		}
	}
	return
}

func broadcast(ctx context.Context, t pointToPoint, root int, payload []byte) ([]byte, error) {
	if err := checkPeer(t, root); err != nil {
		return nil, err
	}
	if t.Rank() != root {
		return t.receive(ctx, root, TagBroadcast)
	}
	for p := 0; p < t.Size(); p++ {
		if p == root {
			continue
		}
		if err := t.send(ctx, p, TagBroadcast, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// reduce combines in rank order on root, so every run gives the same
// floating point result.
func reduce(ctx context.Context, t pointToPoint, root int, value float64, op Op) (float64, error) {
	if err := checkPeer(t, root); err != nil {
		return 0, err
	}
	if t.Rank() != root {
		return value, t.send(ctx, root, TagReduce, encodeFloat(value))
	}
	var acc float64
	for p := 0; p < t.Size(); p++ {
		v := value
		if p != root {
			buf, err := t.receive(ctx, p, TagReduce)
			if err != nil {
				return 0, err
			}
			if v, err = decodeFloat(buf); err != nil {
				return 0, err
			}
		}
		if p == 0 {
			acc = v
		} else {
			acc = op.Combine(acc, v)
		}
	}
	return acc, nil
}

func allReduce(ctx context.Context, t pointToPoint, value float64, op Op) (float64, error) {
	acc, err := reduce(ctx, t, 0, value, op)
	if err != nil {
		return 0, err
	}
	buf, err := broadcast(ctx, t, 0, encodeFloat(acc))
	if err != nil {
		return 0, err
	}
	return decodeFloat(buf)
}
