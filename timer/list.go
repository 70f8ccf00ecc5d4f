// Package timer implements the monotonic-clock min-heap scheduling the
// heartbeat and cast-vote deadlines described in spec.md §4.7. No
// example in the retrieved pack implements a timer heap of its own, so
// this is built directly on container/heap, the standard library's
// idiomatic priority-queue primitive — there is no third-party
// scheduler in the corpus to defer to instead.
package timer

import (
	"container/heap"
	"time"
)

// Handle identifies a scheduled entry for Reschedule/Delete. Handles
// are stable across heap reordering.
type Handle uint64

// Callback is invoked when an entry expires. It may safely add or
// remove entries on the same List; the List defers freeing the firing
// entry until after Callback returns.
type Callback func()

type entry struct {
	handle   Handle
	deadline time.Time
	seq      uint64 // tiebreaker: FIFO among equal deadlines
	interval time.Duration
	periodic bool
	cb       Callback
	index    int // heap index, maintained by container/heap
	deleted  bool
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// List is a min-heap of scheduled callbacks keyed by monotonic expiry.
// It is not safe for concurrent use; callers run it from a single
// goroutine, matching the single-threaded reactor described in
// SPEC_FULL.md §8.
type List struct {
	h        entryHeap
	byHandle map[Handle]*entry
	nextID   Handle
	nextSeq  uint64
	now      func() time.Time
}

// NewList returns an empty timer list using time.Now for the clock.
func NewList() *List {
	return NewListWithClock(time.Now)
}

// NewListWithClock returns an empty timer list using a caller-supplied
// clock, for deterministic tests.
func NewListWithClock(now func() time.Time) *List {
	return &List{byHandle: make(map[Handle]*entry), now: now}
}

// Add schedules cb to fire after interval, once or periodically, and
// returns a handle for Reschedule/Delete.
func (l *List) Add(interval time.Duration, cb Callback, periodic bool) Handle {
	l.nextID++
	l.nextSeq++
	e := &entry{
		handle:   l.nextID,
		deadline: l.now().Add(interval),
		seq:      l.nextSeq,
		interval: interval,
		periodic: periodic,
		cb:       cb,
	}
	heap.Push(&l.h, e)
	l.byHandle[e.handle] = e
	return e.handle
}

// Reschedule replaces the deadline of an existing entry with now+newInterval.
func (l *List) Reschedule(handle Handle, newInterval time.Duration) bool {
	e, ok := l.byHandle[handle]
	if !ok || e.deleted {
		return false
	}
	e.interval = newInterval
	e.deadline = l.now().Add(newInterval)
	l.nextSeq++
	e.seq = l.nextSeq
	heap.Fix(&l.h, e.index)
	return true
}

// Delete cancels a scheduled entry. Safe to call from within a
// callback, including the callback of the entry itself.
func (l *List) Delete(handle Handle) bool {
	e, ok := l.byHandle[handle]
	if !ok || e.deleted {
		return false
	}
	e.deleted = true
	delete(l.byHandle, handle)
	if e.index >= 0 {
		heap.Remove(&l.h, e.index)
	}
	return true
}

// Len returns the number of live entries.
func (l *List) Len() int { return l.h.Len() }

// NextDeadline returns the earliest live deadline, if any entries remain.
func (l *List) NextDeadline() (time.Time, bool) {
	if l.h.Len() == 0 {
		return time.Time{}, false
	}
	return l.h[0].deadline, true
}

// FireExpired runs every entry whose deadline is at or before now, in
// deadline order (FIFO among ties), rescheduling periodic entries and
// removing one-shot ones. It returns the number of callbacks invoked.
func (l *List) FireExpired(now time.Time) int {
	fired := 0
	for l.h.Len() > 0 && !l.h[0].deadline.After(now) {
		e := heap.Pop(&l.h).(*entry)
		if e.deleted {
			continue
		}
		if e.periodic {
			e.deadline = now.Add(e.interval)
			l.nextSeq++
			e.seq = l.nextSeq
			heap.Push(&l.h, e)
		} else {
			delete(l.byHandle, e.handle)
		}
		e.cb()
		fired++
	}
	return fired
}
