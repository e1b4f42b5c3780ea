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
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// libState is the process-wide singleton described in spec §3/§4.1: the
// single-init latch, shared refcount, timer wheel, async-callback pump, GC
// queue and delivery-worker pool. It replaces the C core's global statics
// with an explicit, still-singleton handle (DESIGN NOTES §9 accepts either;
// this repo keeps the singleton for drop-in `Connect` ergonomics while
// making every dependency an explicit field instead of file-scope statics).
type libState struct {
	mu       sync.Mutex
	initOnce sync.Once
	aborted  bool
	refs     int64

	timers  *timerWheel
	asyncCB *asyncCBQueue
	gc      *gcQueue
	workers *workerPool

	helperThreads sync.Map // goroutine id (string) -> struct{}
}

var global = &libState{}

// libOpen is the idempotent first-init latch (spec §4.1's open(spinCount)).
// spinCount sizes the shared delivery-worker pool.
func libOpen(spinCount int) error {
	var initErr error
	global.initOnce.Do(func() {
		global.timers = newTimerWheel()
		global.asyncCB = newAsyncCBQueue()
		global.gc = newGCQueue()
		global.workers = newWorkerPool(spinCount)

		global.timers.start()
		global.asyncCB.start()
		global.gc.start()

		global.mu.Lock()
		global.aborted = false
		global.mu.Unlock()
	})
	global.mu.Lock()
	aborted := global.aborted
	global.mu.Unlock()
	if aborted {
		return newErr(ErrKindFailedToInitialize, ErrFailedToInitialize, "library failed to initialize")
	}
	atomic.AddInt64(&global.refs, 1)
	return initErr
}

// libRelease drops the shared refcount; the last release runs finalCleanup.
func libRelease() {
	if atomic.AddInt64(&global.refs, -1) == 0 {
		global.finalCleanup()
	}
}

func (g *libState) finalCleanup() {
	// Nothing to free in Go: helper threads are stopped by libClose/
	// libCloseAndWait, not here. The initOnce latch is not reset, so a
	// later libOpen does not re-initialize the singletons.
}

// close signals every helper goroutine to stop but does not wait for them
// to join (spec §4.1's close()). It is illegal to call from a helper
// thread itself.
func libClose() error {
	if isHelperThread() {
		return newErr(ErrKindIllegalState, ErrIllegalState, "close called from a helper thread")
	}
	go func() {
		global.timers.shutdown()
		global.asyncCB.shutdown()
		global.gc.shutdown()
		global.workers.shutdown()
	}()
	return nil
}

// closeAndWait behaves like close but blocks (up to timeout, 0 meaning no
// limit) until all helper threads have joined.
func libCloseAndWait(timeout time.Duration) error {
	if isHelperThread() {
		return newErr(ErrKindIllegalState, ErrIllegalState, "closeAndWait called from a helper thread")
	}
	done := make(chan struct{})
	go func() {
		global.timers.shutdown()
		global.asyncCB.shutdown()
		global.gc.shutdown()
		global.workers.shutdown()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return newErr(ErrKindTimeout, ErrTimeout, "closeAndWait timed out after %v", timeout)
	}
}

// markHelperThread runs fn with the calling goroutine registered as a
// library helper thread for the duration of fn, so a reentrant libClose
// call from inside fn is rejected with ErrIllegalState. This is the Go
// stand-in for the C core's thread-key marker; there is no portable
// goroutine-local storage in the standard library, so the marker is keyed
// by a best-effort goroutine id parsed from runtime.Stack.
func markHelperThread(fn func()) {
	id := goroutineID()
	global.helperThreads.Store(id, struct{}{})
	defer global.helperThreads.Delete(id)
	fn()
}

func isHelperThread() bool {
	_, ok := global.helperThreads.Load(goroutineID())
	return ok
}

// goroutineID extracts the numeric id NATS uses only as an internal map
// key for the helper-thread marker above; it is never exposed to callers
// and carries no ordering or stability guarantee across Go releases.
func goroutineID() string {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return "0"
	}
	buf = buf[len(prefix):]
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	if _, err := strconv.ParseUint(string(buf), 10, 64); err != nil {
		return "0"
	}
	return string(buf)
}

// Open starts the process-wide helper threads (timer wheel, async-callback
// pump, GC queue, delivery workers). It is idempotent; the first caller
// wins and later callers simply bump the refcount.
func Open() error { return libOpen(defaultWorkerPoolSize) }

// Close signals all process-wide helper threads to stop without waiting.
func Close() error { return libClose() }

// CloseAndWait signals all process-wide helper threads to stop and blocks
// until they have joined or timeout elapses (0 waits indefinitely).
func CloseAndWait(timeout time.Duration) error { return libCloseAndWait(timeout) }

// ReleaseThreadMemory is a no-op in this Go port: there is no per-thread
// heap to free, since Go's goroutines share the runtime's memory manager.
// Kept for API compatibility with the C core's releaseThreadMemory().
func ReleaseThreadMemory() {}
