package utils

import (
	"context"
	"fmt"
	"sync"
)

// MailBox carries tagged messages between NP in-process participants. Each
// participant owns one postbox; messages from one sender with one tag are
// delivered in the order they were posted. Posting never blocks.
type MailBox[T any] struct {
	NP    int
	boxes []*postBox[T]

	mu      sync.Mutex
	closed  error
	senders []error // Per sender, set once a sender can post no more
}

type mailKey struct {
	From, Tag int
}

type postBox[T any] struct {
	mu     sync.Mutex
	queues map[mailKey][]T
	notify chan struct{} // Closed and replaced whenever a message arrives
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:      NP,
		boxes:   make([]*postBox[T], NP),
		senders: make([]error, NP),
	}
	for n := 0; n < NP; n++ {
		mb.boxes[n] = &postBox[T]{
			queues: make(map[mailKey][]T),
			notify: make(chan struct{}),
		}
	}
	return mb
}

func (mb *MailBox[T]) checkThread(n int) {
	if n < 0 || n > mb.NP-1 {
		panic(fmt.Sprintf("Target thread %d out of bounds", n))
	}
}

func (mb *MailBox[T]) PostMessage(myThread, targetThread, tag int, msg T) error {
	mb.checkThread(myThread)
	mb.checkThread(targetThread)
	if err := mb.Err(); err != nil {
		return err
	}
	box := mb.boxes[targetThread]
	box.mu.Lock()
	key := mailKey{From: myThread, Tag: tag}
	box.queues[key] = append(box.queues[key], msg)
	close(box.notify)
	box.notify = make(chan struct{})
	box.mu.Unlock()
	return nil
}

// ReceiveMessage blocks until a message from fromThread with the given tag
// is available to myThread, the context is done, or the mailbox is closed.
func (mb *MailBox[T]) ReceiveMessage(ctx context.Context, myThread, fromThread, tag int) (msg T, err error) {
	mb.checkThread(myThread)
	mb.checkThread(fromThread)
	var (
		box = mb.boxes[myThread]
		key = mailKey{From: fromThread, Tag: tag}
	)
	for {
		box.mu.Lock()
		if q := box.queues[key]; len(q) != 0 {
			msg = q[0]
			if len(q) == 1 {
				delete(box.queues, key)
			} else {
				box.queues[key] = q[1:]
			}
			box.mu.Unlock()
			return
		}
		wait := box.notify
		box.mu.Unlock()
		if err = mb.senderErr(fromThread); err != nil {
			return
		}
		select {
		case <-wait:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Pending returns the number of undelivered messages waiting for myThread
func (mb *MailBox[T]) Pending(myThread int) (count int) {
	mb.checkThread(myThread)
	box := mb.boxes[myThread]
	box.mu.Lock()
	defer box.mu.Unlock()
	for _, q := range box.queues {
		count += len(q)
	}
	return
}

// Close wakes every blocked receiver with err; later posts and receives fail
func (mb *MailBox[T]) Close(err error) {
	mb.mu.Lock()
	if mb.closed == nil {
		mb.closed = err
	}
	mb.mu.Unlock()
	mb.wakeAll()
}

// CloseSender marks fromThread as gone. Messages it already posted can still
// be received, after which receives from it fail with err.
func (mb *MailBox[T]) CloseSender(fromThread int, err error) {
	mb.checkThread(fromThread)
	mb.mu.Lock()
	if mb.senders[fromThread] == nil {
		mb.senders[fromThread] = err
	}
	mb.mu.Unlock()
	mb.wakeAll()
}

func (mb *MailBox[T]) senderErr(fromThread int) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed != nil {
		return mb.closed
	}
	return mb.senders[fromThread]
}

func (mb *MailBox[T]) wakeAll() {
	for _, box := range mb.boxes {
		box.mu.Lock()
		close(box.notify)
		box.notify = make(chan struct{})
		box.mu.Unlock()
	}
}

func (mb *MailBox[T]) Err() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}

// PartitionMap splits the index range [0, MaxIndex) into ParallelDegree
// contiguous buckets with a maximum imbalance of one item.
type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(kDim)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(kDim int) (tryCount, bucketNum, min, max int) {
	if kDim < 0 || kDim >= pm.MaxIndex {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*kDim) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= kDim && pm.Partitions[bucketNum][1] > kDim) {
		if pm.Partitions[bucketNum][0] > kDim {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
