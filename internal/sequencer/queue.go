package sequencer

import (
	"container/heap"
	"sync"
)

// linkQueue holds the eligible-but-not-yet-dispatched steps for one device
// link, ordered by original step index so same-link dispatch follows plan
// order regardless of which dependency finished first.
type linkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	steps  stepHeap
	closed bool
}

func newLinkQueue() *linkQueue {
	q := &linkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push makes a step eligible for dispatch on this link.
func (q *linkQueue) push(s *stepState) {
	q.mu.Lock()
	heap.Push(&q.steps, s)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a step is eligible or the queue is closed. It returns
// nil once the queue is closed and drained of nothing further.
func (q *linkQueue) pop() *stepState {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.steps.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.steps.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.steps).(*stepState)
}

// close wakes any blocked pop; already-queued steps are still returned.
func (q *linkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// stepHeap is a min-heap over original step index.
type stepHeap []*stepState

func (h stepHeap) Len() int           { return len(h) }
func (h stepHeap) Less(i, j int) bool { return h[i].step.Index < h[j].step.Index }
func (h stepHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stepHeap) Push(x any)        { *h = append(*h, x.(*stepState)) }
func (h *stepHeap) Pop() any {
	old := *h
	n := len(old)
	out := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return out
}
