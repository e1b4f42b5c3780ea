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
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerWheelFiresOnce(t *testing.T) {
	w := newTimerWheel()
	w.start()
	defer w.shutdown()

	var fired int32
	done := make(chan struct{})
	w.schedule(5*time.Millisecond, func() bool {
		atomic.AddInt32(&fired, 1)
		close(done)
		return false
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	time.Sleep(20 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("expected exactly one fire, got %d", got)
	}
}

func TestTimerWheelRepeats(t *testing.T) {
	w := newTimerWheel()
	w.start()
	defer w.shutdown()

	var fired int32
	done := make(chan struct{})
	w.schedule(5*time.Millisecond, func() bool {
		n := atomic.AddInt32(&fired, 1)
		if n >= 3 {
			close(done)
			return false
		}
		return true
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire enough times")
	}
}

func TestTimerStopRunsStopCbOnce(t *testing.T) {
	w := newTimerWheel()
	w.start()
	defer w.shutdown()

	var stopped int32
	timer := w.schedule(time.Hour, func() bool { return false }, func() {
		atomic.AddInt32(&stopped, 1)
	})
	w.stopTimer(timer)
	w.stopTimer(timer) // idempotent: stopCb must not fire twice

	if got := atomic.LoadInt32(&stopped); got != 1 {
		t.Fatalf("expected stopCb to run exactly once, got %d", got)
	}
}

func TestTimerWheelDrainsOnShutdown(t *testing.T) {
	w := newTimerWheel()
	w.start()

	var stopped int32
	w.schedule(time.Hour, func() bool { return false }, func() {
		atomic.AddInt32(&stopped, 1)
	})
	w.shutdown()

	if got := atomic.LoadInt32(&stopped); got != 1 {
		t.Fatalf("expected drain to run the remaining timer's stopCb, got %d", got)
	}
}
