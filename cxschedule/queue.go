package cxschedule

import (
	"container/heap"
	"time"
)

type scheduledAction struct {
	at     time.Time
	seq    uint64
	action func()

	// Set for repeating actions only.
	interval time.Duration
	token    *repeatToken

	index int
}

// actionQueue orders actions by time,
// and by insertion sequence among equal times.
type actionQueue []*scheduledAction

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.seq < b.seq
}

func (q actionQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *actionQueue) Push(x any) {
	a := x.(*scheduledAction)
	a.index = len(*q)
	*q = append(*q, a)
}

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.index = -1
	*q = old[:n-1]
	return a
}

func (q actionQueue) peek() *scheduledAction {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *actionQueue) remove(a *scheduledAction) {
	if a.index >= 0 {
		heap.Remove(q, a.index)
	}
}
