package agent

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Queue is a priority queue of tasks. Ordering is by priority (high first),
// then enqueue time (oldest first). Pop hands each task to exactly one
// caller, so multiple consumers never execute a task twice.
type Queue struct {
	mu     sync.Mutex
	items  taskHeap
	notify chan struct{}
	seq    uint64
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue adds a task at the given priority. O(log n).
func (q *Queue) Enqueue(task Task, priority Priority) QueuedTask {
	qt := QueuedTask{Task: task, Priority: priority, EnqueuedAt: time.Now()}

	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &queueItem{QueuedTask: qt, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return qt
}

// PopNext removes and returns the highest-priority task, or false when the
// queue is empty.
func (q *Queue) PopNext() (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return QueuedTask{}, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.QueuedTask, true
}

// Peek returns the task that PopNext would return, without removing it.
func (q *Queue) Peek() (QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return QueuedTask{}, false
	}
	return q.items[0].QueuedTask, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Wait blocks until a task is available or the context is done.
func (q *Queue) Wait(ctx context.Context) (QueuedTask, bool) {
	for {
		if qt, ok := q.PopNext(); ok {
			return qt, true
		}
		select {
		case <-ctx.Done():
			return QueuedTask{}, false
		case <-q.notify:
		}
	}
}

// Run consumes the queue until the context is done, invoking handle for
// each popped task. At most workers tasks run concurrently; each in-flight
// task is owned by exactly one worker goroutine. Run returns after all
// in-flight tasks finish.
func (q *Queue) Run(ctx context.Context, workers int64, handle func(context.Context, QueuedTask)) error {
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)

	for {
		qt, ok := q.Wait(ctx)
		if !ok {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		go func(qt QueuedTask) {
			defer sem.Release(1)
			handle(ctx, qt)
		}(qt)
	}

	// Drain: wait for in-flight workers. Acquire with a fresh context so
	// cancellation of ctx does not skip the drain.
	return sem.Acquire(context.Background(), workers)
}

// queueItem wraps a QueuedTask with a sequence number so tasks enqueued in
// the same timestamp tick still pop in submission order.
type queueItem struct {
	QueuedTask
	seq uint64
}

type taskHeap []*queueItem

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
