package scheduler

import (
	"container/heap"
	"time"
)

// timer is one armed tick.
type timer struct {
	at  time.Time
	seq uint64
}

// timerHeap orders timers by deadline, then by arming order.
type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

type timerQueue struct {
	h   timerHeap
	seq uint64
}

func (q *timerQueue) push(at time.Time) {
	q.seq++
	heap.Push(&q.h, timer{at: at, seq: q.seq})
}

func (q *timerQueue) pop() (timer, bool) {
	if q.h.Len() == 0 {
		return timer{}, false
	}
	return heap.Pop(&q.h).(timer), true
}

func (q *timerQueue) len() int { return q.h.Len() }
