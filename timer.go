// Copyright 2012-2023 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nats

import (
	"container/heap"
	"sync"
	"time"
)

// timerState mirrors spec §3's Timer.state: {scheduled, inCallback, stopped}.
type timerState int

const (
	timerScheduled timerState = iota
	timerInCallback
	timerStopped
)

// sharedTimer is one entry in the timer wheel's deadline-ordered list.
// Reset/stop are safe from any goroutine; the wheel goroutine is the only
// one that invokes fireCb. stopCb runs on the wheel goroutine, except when
// stopTimer stops a timer that is not mid-callback: then it runs on the
// goroutine calling stopTimer.
type sharedTimer struct {
	deadline time.Time
	interval time.Duration
	fireCb   func() bool // returns true to keep running on its interval
	stopCb   func()
	state    timerState
	index    int // heap index, maintained by container/heap
}

// timerHeap orders sharedTimers by absolute deadline; it is the owned,
// non-intrusive replacement DESIGN NOTES §9 calls for, in place of the C
// core's intrusive doubly-linked list.
type timerHeap []*sharedTimer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool   { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
	t := x.(*sharedTimer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerWheel is the single worker thread described in spec §4.2: it
// maintains the deadline-ordered list and dispatches fireCb with no lock
// held, guaranteeing at-most-once dispatch per deadline.
type timerWheel struct {
	mu      sync.Mutex
	heap    timerHeap
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	started bool
}

func newTimerWheel() *timerWheel {
	return &timerWheel{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (w *timerWheel) start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go markHelperThread(w.run)
}

func (w *timerWheel) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// schedule registers a new timer and returns a handle usable with
// resetTimer/stopTimer. Callable from any goroutine.
func (w *timerWheel) schedule(interval time.Duration, fireCb func() bool, stopCb func()) *sharedTimer {
	t := &sharedTimer{
		deadline: time.Now().Add(interval),
		interval: interval,
		fireCb:   fireCb,
		stopCb:   stopCb,
		state:    timerScheduled,
	}
	w.mu.Lock()
	heap.Push(&w.heap, t)
	w.mu.Unlock()
	w.poke()
	return t
}

// resetTimer reschedules t to fire after interval from now, regardless of
// what its previous deadline was. Safe to call concurrently with dispatch.
func (w *timerWheel) resetTimer(t *sharedTimer, interval time.Duration) {
	w.mu.Lock()
	t.interval = interval
	t.deadline = time.Now().Add(interval)
	if t.index >= 0 && t.index < len(w.heap) && w.heap[t.index] == t {
		heap.Fix(&w.heap, t.index)
	} else if t.state != timerInCallback {
		heap.Push(&w.heap, t)
	}
	if t.state == timerStopped {
		t.state = timerScheduled
	}
	w.mu.Unlock()
	w.poke()
}

// stopTimer marks t stopped. If it is currently mid-callback, stopCb runs
// once the callback returns (handled in run()); otherwise stopCb runs here.
func (w *timerWheel) stopTimer(t *sharedTimer) {
	w.mu.Lock()
	alreadyStopped := t.state == timerStopped
	wasInCallback := t.state == timerInCallback
	t.state = timerStopped
	if t.index >= 0 && t.index < len(w.heap) && w.heap[t.index] == t {
		heap.Remove(&w.heap, t.index)
	}
	w.mu.Unlock()
	if !alreadyStopped && !wasInCallback && t.stopCb != nil {
		t.stopCb()
	}
}

func (w *timerWheel) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		hasDeadline := len(w.heap) > 0
		var d time.Duration
		if hasDeadline {
			d = time.Until(w.heap[0].deadline)
			if d < 0 {
				d = 0
			}
		}
		w.mu.Unlock()

		if !hasDeadline {
			select {
			case <-w.wake:
				continue
			case <-w.quit:
				w.drain()
				return
			}
		}

		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-w.wake:
			timer.Stop()
			continue
		case <-w.quit:
			timer.Stop()
			w.drain()
			return
		}

		w.mu.Lock()
		if len(w.heap) == 0 {
			w.mu.Unlock()
			continue
		}
		if time.Now().Before(w.heap[0].deadline) {
			w.mu.Unlock()
			continue
		}
		t := heap.Pop(&w.heap).(*sharedTimer)
		t.state = timerInCallback
		w.mu.Unlock()

		again := false
		if t.fireCb != nil {
			again = t.fireCb()
		}

		w.mu.Lock()
		if t.state == timerInCallback {
			if again {
				t.deadline = time.Now().Add(t.interval)
				t.state = timerScheduled
				heap.Push(&w.heap, t)
			} else {
				t.state = timerStopped
			}
		}
		stopped := t.state == timerStopped
		w.mu.Unlock()
		if stopped && t.stopCb != nil {
			t.stopCb()
		}
	}
}

// drain calls every remaining timer's stopCb exactly once, as required on
// library shutdown (spec §4.2).
func (w *timerWheel) drain() {
	w.mu.Lock()
	remaining := w.heap
	w.heap = nil
	w.mu.Unlock()
	for _, t := range remaining {
		if t.stopCb != nil {
			t.stopCb()
		}
	}
}

// shutdown stops the wheel goroutine and waits for it to drain and exit.
func (w *timerWheel) shutdown() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	close(w.quit)
	<-w.done
}
