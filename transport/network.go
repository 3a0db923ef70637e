package transport

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/notargets/gohalo/types"
	"github.com/notargets/gohalo/utils"
)

const DefaultConnectTimeout = 30 * time.Second

// NetworkConfig describes one process of a TCP group. Addresses holds the
// listen address of every rank, so its length is the group size.
type NetworkConfig struct {
	Rank           int
	Addresses      []string
	ConnectTimeout time.Duration // Bound on establishing the full mesh
}

// Network is a full mesh of TCP connections. Higher ranks dial lower ranks;
// every connection starts with a hello exchange that checks rank and group
// size. Messages are gob encoded envelopes.
type Network struct {
	rank, size int
	listener   net.Listener
	peers      []*peerConn // nil at own rank
	mb         *utils.MailBox[[]byte]
	closing    atomic.Bool
	wg         sync.WaitGroup
}

type peerConn struct {
	rank int
	conn net.Conn
	mu   sync.Mutex // Serializes encoding
	enc  *gob.Encoder
	dec  *gob.Decoder
}

type hello struct {
	Rank, Size int
}

type envelope struct {
	Tag     int
	Payload []byte
}

var _ Transport = (*Network)(nil)

// Connect establishes the group. It fails with a configuration error when a
// peer reports a different group size, and with a communication error when
// the group is not complete within the connect timeout.
func Connect(ctx context.Context, cfg NetworkConfig) (n *Network, err error) {
	size := len(cfg.Addresses)
	if size == 0 {
		return nil, types.ConfigErrorf("no process addresses")
	}
	if cfg.Rank < 0 || cfg.Rank >= size {
		return nil, types.ConfigErrorf("rank %d out of range for %d addresses", cfg.Rank, size)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	n = &Network{
		rank:  cfg.Rank,
		size:  size,
		peers: make([]*peerConn, size),
		mb:    utils.NewMailBox[[]byte](size),
	}
	if size == 1 {
		return
	}
	if n.listener, err = net.Listen("tcp", cfg.Addresses[n.rank]); err != nil {
		return nil, types.CommErrorf("listen on %s: %v", cfg.Addresses[n.rank], err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if err != nil {
			n.shutdown()
		}
	}()

	accepted := make(chan error, 1)
	go func() { accepted <- n.acceptPeers(ctx) }()
	for q := 0; q < n.rank; q++ {
		if err = n.dialPeer(ctx, q, cfg.Addresses[q], timeout); err != nil {
			n.listener.Close()
			<-accepted
			return
		}
	}
	if err = <-accepted; err != nil {
		return
	}
	for _, p := range n.peers {
		if p != nil {
			n.wg.Add(1)
			go n.readLoop(p)
		}
	}
	log.Debugf("Process %d connected to %d peers", n.rank, size-1)
	return
}

func (n *Network) dialPeer(ctx context.Context, q int, addr string, timeout time.Duration) (err error) {
	var (
		conn net.Conn
		d    net.Dialer
		b    = backoff.NewExponentialBackOff()
	)
	b.MaxElapsedTime = timeout
	// Peers start in any order, so refused connections are retried
	op := func() (err error) {
		conn, err = d.DialContext(ctx, "tcp", addr)
		return
	}
	if err = backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return types.CommErrorf("dial process %d at %s: %v", q, addr, err)
	}
	p := newPeerConn(q, conn)
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err = p.enc.Encode(hello{Rank: n.rank, Size: n.size}); err != nil {
		conn.Close()
		return types.CommErrorf("hello to process %d: %v", q, err)
	}
	var reply hello
	if err = p.dec.Decode(&reply); err != nil {
		conn.Close()
		return types.CommErrorf("hello from process %d: %v", q, err)
	}
	conn.SetDeadline(time.Time{})
	if reply.Size != n.size {
		conn.Close()
		return types.ConfigErrorf("process %d runs with %d processes, this process with %d", q, reply.Size, n.size)
	}
	if reply.Rank != q {
		conn.Close()
		return types.ConfigErrorf("address %s answered as process %d, expected %d", addr, reply.Rank, q)
	}
	n.peers[q] = p
	return
}

func (n *Network) acceptPeers(ctx context.Context) (err error) {
	var (
		want = n.size - 1 - n.rank
		done = make(chan struct{})
	)
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			n.listener.Close()
		case <-done:
		}
	}()
	for got := 0; got < want; {
		var conn net.Conn
		if conn, err = n.listener.Accept(); err != nil {
			if ctx.Err() != nil {
				return types.CommErrorf("only %d of %d higher ranked processes connected: %v", got, want, ctx.Err())
			}
			return types.CommErrorf("accept: %v", err)
		}
		p := newPeerConn(-1, conn)
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		}
		var h hello
		if err = p.dec.Decode(&h); err != nil {
			conn.Close()
			return types.CommErrorf("hello from %s: %v", conn.RemoteAddr(), err)
		}
		if err = p.enc.Encode(hello{Rank: n.rank, Size: n.size}); err != nil {
			conn.Close()
			return types.CommErrorf("hello to process %d: %v", h.Rank, err)
		}
		conn.SetDeadline(time.Time{})
		switch {
		case h.Size != n.size:
			conn.Close()
			return types.ConfigErrorf("process %d runs with %d processes, this process with %d", h.Rank, h.Size, n.size)
		case h.Rank <= n.rank || h.Rank >= n.size:
			conn.Close()
			return types.ConfigErrorf("unexpected connection from process %d", h.Rank)
		case n.peers[h.Rank] != nil:
			conn.Close()
			return types.ConfigErrorf("duplicate connection from process %d", h.Rank)
		}
		p.rank = h.Rank
		n.peers[h.Rank] = p
		got++
	}
	return
}

func newPeerConn(rank int, conn net.Conn) *peerConn {
	return &peerConn{
		rank: rank,
		conn: conn,
		enc:  gob.NewEncoder(conn),
		dec:  gob.NewDecoder(conn),
	}
}

func (n *Network) readLoop(p *peerConn) {
	defer n.wg.Done()
	for {
		var env envelope
		if err := p.dec.Decode(&env); err != nil {
			if n.closing.Load() || errors.Is(err, io.EOF) {
				n.mb.CloseSender(p.rank, fmt.Errorf("process %d: %w", p.rank, ErrClosed))
			} else {
				n.mb.CloseSender(p.rank, types.CommErrorf("connection to process %d: %v", p.rank, err))
			}
			return
		}
		if err := n.mb.PostMessage(p.rank, n.rank, env.Tag, env.Payload); err != nil {
			return
		}
	}
}

func (n *Network) Rank() int { return n.rank }

func (n *Network) Size() int { return n.size }

func (n *Network) send(ctx context.Context, dest, tag int, payload []byte) (err error) {
	if err = checkPeer(n, dest); err != nil {
		return
	}
	if n.closing.Load() {
		return ErrClosed
	}
	if dest == n.rank {
		return n.mb.PostMessage(n.rank, n.rank, tag, append([]byte(nil), payload...))
	}
	p := n.peers[dest]
	p.mu.Lock()
	defer p.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		p.conn.SetWriteDeadline(deadline)
		defer p.conn.SetWriteDeadline(time.Time{})
	}
	if err = p.enc.Encode(envelope{Tag: tag, Payload: payload}); err != nil {
		return types.CommErrorf("send to process %d: %v", dest, err)
	}
	return
}

func (n *Network) receive(ctx context.Context, src, tag int) (msg []byte, err error) {
	if err = checkPeer(n, src); err != nil {
		return
	}
	if msg, err = n.mb.ReceiveMessage(ctx, n.rank, src, tag); err != nil {
		return nil, fmt.Errorf("receive from process %d: %w", src, err)
	}
	return
}

func (n *Network) Send(ctx context.Context, dest, tag int, payload []byte) error {
	if err := checkTag(tag); err != nil {
		return err
	}
	return n.send(ctx, dest, tag, payload)
}

func (n *Network) Receive(ctx context.Context, src, tag int) ([]byte, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return n.receive(ctx, src, tag)
}

func (n *Network) Barrier(ctx context.Context) error {
	return barrier(ctx, n)
}

func (n *Network) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	return broadcast(ctx, n, root, payload)
}

func (n *Network) Reduce(ctx context.Context, root int, value float64, op Op) (float64, error) {
	return reduce(ctx, n, root, value, op)
}

func (n *Network) AllReduce(ctx context.Context, value float64, op Op) (float64, error) {
	return allReduce(ctx, n, value, op)
}

func (n *Network) Close() error {
	if n.closing.Swap(true) {
		return nil
	}
	n.shutdown()
	n.wg.Wait()
	n.mb.Close(ErrClosed)
	return nil
}

func (n *Network) shutdown() {
	n.closing.Store(true)
	if n.listener != nil {
		n.listener.Close()
	}
	for _, p := range n.peers {
		if p != nil {
			p.conn.Close()
		}
	}
}
