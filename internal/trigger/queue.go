package trigger

import (
	"container/heap"
	"time"
)

// Scheduler runs f once, d after now. Scheduled work cannot be withdrawn.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type plannedFunc struct {
	at  time.Time
	seq uint64
	f   func()
}

type minHeap []plannedFunc

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(plannedFunc)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Queue is a Scheduler whose due work is run by whoever calls Flush, so
// deferred callbacks execute on the caller's goroutine. It is not safe for
// concurrent use.
type Queue struct {
	h   minHeap
	seq uint64
	now func() time.Time
}

// NewQueue returns a queue that measures delays from now. A nil now uses
// time.Now.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

func (q *Queue) AfterFunc(d time.Duration, f func()) {
	q.seq++
	heap.Push(&q.h, plannedFunc{at: q.now().Add(d), seq: q.seq, f: f})
}

// Flush runs every task due at or before t, earliest first, and returns how
// many ran.
func (q *Queue) Flush(t time.Time) int {
	flushed := 0
	for q.h.Len() > 0 && !t.Before(q.h[0].at) {
		pf := heap.Pop(&q.h).(plannedFunc)
		pf.f()
		flushed++
	}
	return flushed
}

// Drain runs everything still pending regardless of due time.
func (q *Queue) Drain() int {
	drained := 0
	for q.h.Len() > 0 {
		pf := heap.Pop(&q.h).(plannedFunc)
		pf.f()
		drained++
	}
	return drained
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int { return q.h.Len() }
