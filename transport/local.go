package transport

import (
	"context"

	"github.com/notargets/gohalo/utils"
)

// Local is the single process stand-in. Collectives return immediately and
// messages sent to rank 0 are queued for receipt by rank 0.
type Local struct {
	mb *utils.MailBox[[]byte]
}

func NewLocal() *Local {
	return &Local{mb: utils.NewMailBox[[]byte](1)}
}

func (l *Local) Rank() int { return 0 }

func (l *Local) Size() int { return 1 }

func (l *Local) Send(ctx context.Context, dest, tag int, payload []byte) error {
	if err := checkPeer(l, dest); err != nil {
		return err
	}
	if err := checkTag(tag); err != nil {
		return err
	}
	return l.mb.PostMessage(0, 0, tag, append([]byte(nil), payload...))
}

func (l *Local) Receive(ctx context.Context, src, tag int) ([]byte, error) {
	if err := checkPeer(l, src); err != nil {
		return nil, err
	}
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return l.mb.ReceiveMessage(ctx, 0, 0, tag)
}

func (l *Local) Barrier(ctx context.Context) error { return ctx.Err() }

func (l *Local) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if err := checkPeer(l, root); err != nil {
		return nil, err
	}
	return payload, ctx.Err()
}

func (l *Local) Reduce(ctx context.Context, root int, value float64, op Op) (float64, error) {
	if err := checkPeer(l, root); err != nil {
		return 0, err
	}
	return value, ctx.Err()
}

func (l *Local) AllReduce(ctx context.Context, value float64, op Op) (float64, error) {
	return value, ctx.Err()
}

func (l *Local) Close() error {
	l.mb.Close(ErrClosed)
	return nil
}
