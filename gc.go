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

import "sync"

// gcQueue defers destruction of objects whose final release would otherwise
// happen while a hot-path lock is held (spec §4.4). collect() hands the item
// to the GC goroutine and returns immediately; the free runs later, outside
// any connection/subscription lock.
type gcQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
	started bool
}

func newGCQueue() *gcQueue {
	q := &gcQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *gcQueue) start() {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	go markHelperThread(q.run)
}

// collect enqueues free for later execution and reports true, so the
// caller returns immediately without running free itself under its lock.
// Once the queue has been shut down, free runs inline on the caller's
// goroutine instead (still reporting true).
// A nil free is a no-op and reports false: there is nothing deferred.
func (q *gcQueue) collect(free func()) bool {
	if free == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		free()
		return true
	}
	q.pending = append(q.pending, free)
	q.cond.Signal()
	q.mu.Unlock()
	return true
}

func (q *gcQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, free := range batch {
			free()
		}
	}
}

func (q *gcQueue) shutdown() {
	q.mu.Lock()
	started := q.started
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	if started {
		<-q.done
	}
}
