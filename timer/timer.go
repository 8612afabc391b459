// Package timer implements a minimal delayed-callback scheduler: the
// smallest container/heap shape that lets the driver schedule and cancel
// callbacks without spinning up a goroutine per timer.
package timer

import (
	"container/heap"
	"time"
)

// Cancel stops a scheduled callback from firing, if it has not already.
type Cancel func()

type entry struct {
	at    time.Time
	fn    func()
	index int
	dead  bool
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Wheel schedules callbacks to run on the single driver goroutine that
// calls Tick — there is no background goroutine, so scheduled callbacks
// never race with driver state the way a time.AfterFunc callback would.
type Wheel struct {
	h entryHeap
}

func NewWheel() *Wheel {
	w := &Wheel{}
	heap.Init(&w.h)
	return w
}

// Schedule arranges for fn to run the next time Tick is called at or after
// now+d. The returned Cancel is idempotent and safe to call even after fn
// has already run.
func (w *Wheel) Schedule(now time.Time, d time.Duration, fn func()) Cancel {
	e := &entry{at: now.Add(d), fn: fn}
	heap.Push(&w.h, e)
	return func() { e.dead = true }
}

// NextDeadline reports when Tick should next be called to fire the
// earliest pending callback, for a driver that sleeps on a select with a
// computed timeout rather than polling.
func (w *Wheel) NextDeadline() (time.Time, bool) {
	if w.h.Len() == 0 {
		return time.Time{}, false
	}
	return w.h[0].at, true
}

// Tick fires every callback whose deadline is at or before now.
func (w *Wheel) Tick(now time.Time) {
	for w.h.Len() > 0 && !w.h[0].at.After(now) {
		e := heap.Pop(&w.h).(*entry)
		if !e.dead {
			e.fn()
		}
	}
}

// Len reports how many callbacks are still pending (including cancelled
// ones not yet popped by Tick).
func (w *Wheel) Len() int { return w.h.Len() }
