// Package mpsc provides a lock-free multi-producer single-consumer queue.
//
// The lock manager uses it as the mailbox of its single writer goroutine:
// any number of request goroutines push operations, exactly one goroutine
// drains them via Recv(). Properties:
//
//   - Lock-Free pushes: producers only use atomic operations on the list
//   - Unbounded: the queue grows as needed (two pointers per item)
//   - Single Consumer: items are handed out through one channel
//   - Ordering: items pushed by one producer are delivered in push order.
//     Items of concurrent producers are ordered by whichever append wins.
package mpsc

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free multi-producer single-consumer queue backed by a
// linked list with a sentinel head.
type Queue[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	// wakes the consumer when it is parked on an empty list
	mu   sync.Mutex
	cond *sync.Cond
}

// New creates a queue and starts the goroutine feeding Recv().
func New[T any]() *Queue[T] {
	sentinel := &node[T]{}

	q := &Queue[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.drain()

	return q
}

// Push appends an item. It returns false for nil items or if the queue
// was closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed swap means another producer already moved the tail
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin a little under low contention, yield otherwise
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer while holding mu. The consumer checks for an
// empty list and parks under the same mutex, so the signal cannot fall
// between its check and its Wait().
func (q *Queue[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// drain moves items from the list to the out channel until the queue is
// closed and empty.
func (q *Queue[T]) drain() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		delivered := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if !delivered && q.closed.Load() {
			return
		}

		if !delivered {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the single consumer reads from. The channel is
// closed once the queue is closed and every pushed item was delivered.
func (q *Queue[T]) Recv() <-chan *T {
	return q.out
}

// Close rejects further pushes. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// Closed reports whether Close was called.
func (q *Queue[T]) Closed() bool {
	return q.closed.Load()
}

// Len counts the queued items. O(n), debugging only.
func (q *Queue[T]) Len() int {
	count := 0
	for cur := q.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}
