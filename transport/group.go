package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/types"
	"github.com/notargets/gohalo/utils"
)

var ErrClosed = errors.New("transport closed")

// Group is a set of in-process endpoints, one per simulated process, that
// share a mailbox. Each endpoint is meant to be driven by its own goroutine.
type Group struct {
	Endpoints []*Endpoint
	mb        *utils.MailBox[[]byte]
}

func NewGroup(size int) (g *Group, err error) {
	if size < 1 {
		return nil, types.ConfigErrorf("group size must be at least 1, have %d", size)
	}
	g = &Group{
		Endpoints: make([]*Endpoint, size),
		mb:        utils.NewMailBox[[]byte](size),
	}
	for r := 0; r < size; r++ {
		g.Endpoints[r] = &Endpoint{rank: r, group: g}
	}
	return
}

// Abort fails every pending and future operation of the group with err.
// Used when one simulated process fails, so that the others do not block.
func (g *Group) Abort(err error) {
	g.mb.Close(err)
}

// Endpoint is one process's view of a Group
type Endpoint struct {
	rank  int
	group *Group

	mu     sync.Mutex
	closed bool
}

var _ Transport = (*Endpoint)(nil)

func (e *Endpoint) Rank() int { return e.rank }

func (e *Endpoint) Size() int { return len(e.group.Endpoints) }

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) send(ctx context.Context, dest, tag int, payload []byte) error {
	if e.isClosed() {
		return ErrClosed
	}
	if err := checkPeer(e, dest); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// The receiver owns its copy
	msg := append([]byte(nil), payload...)
	if err := e.group.mb.PostMessage(e.rank, dest, tag, msg); err != nil {
		return fmt.Errorf("send to process %d: %w", dest, err)
	}
	return nil
}

func (e *Endpoint) receive(ctx context.Context, src, tag int) ([]byte, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	if err := checkPeer(e, src); err != nil {
		return nil, err
	}
	msg, err := e.group.mb.ReceiveMessage(ctx, e.rank, src, tag)
	if err != nil {
		return nil, fmt.Errorf("receive from process %d: %w", src, err)
	}
	return msg, nil
}

func (e *Endpoint) Send(ctx context.Context, dest, tag int, payload []byte) error {
	if err := checkTag(tag); err != nil {
		return err
	}
	return e.send(ctx, dest, tag, payload)
}

func (e *Endpoint) Receive(ctx context.Context, src, tag int) ([]byte, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return e.receive(ctx, src, tag)
}

func (e *Endpoint) Barrier(ctx context.Context) error {
	return barrier(ctx, e)
}

func (e *Endpoint) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	return broadcast(ctx, e, root, payload)
}

func (e *Endpoint) Reduce(ctx context.Context, root int, value float64, op Op) (float64, error) {
	return reduce(ctx, e, root, value, op)
}

func (e *Endpoint) AllReduce(ctx context.Context, value float64, op Op) (float64, error) {
	return allReduce(ctx, e, value, op)
}

// Close retires this endpoint. Messages it already sent stay deliverable;
// messages left unreceived by it are logged.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		if n := e.group.mb.Pending(e.rank); n != 0 {
			log.Warnf("Process %d closed with %d undelivered messages", e.rank, n)
		}
		e.group.mb.CloseSender(e.rank, fmt.Errorf("process %d: %w", e.rank, ErrClosed))
	}
	return nil
}
