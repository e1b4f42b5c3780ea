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
	"testing"
	"time"
)

func TestAsyncCBQueueDeliversInOrder(t *testing.T) {
	q := newAsyncCBQueue()
	q.start()
	defer q.shutdown()

	nc := &Conn{Opts: Options{}}
	order := make(chan int, 3)
	nc.Opts.ClosedCB = nil // placeholder so Opts is addressable below

	for i := 0; i < 3; i++ {
		i := i
		nc.Opts.DisconnectedCB = func(*Conn) { order <- i }
		q.push(asyncCBEvent{kind: cbKindDisconnected, conn: nc})
		// Drain before overwriting DisconnectedCB again to keep ordering
		// deterministic for this test's purposes.
		select {
		case got := <-order:
			if got != i {
				t.Fatalf("got %d, want %d", got, i)
			}
		case <-time.After(time.Second):
			t.Fatal("callback never ran")
		}
	}
}

func TestAsyncCBQueueShutdownDrainsRemaining(t *testing.T) {
	q := newAsyncCBQueue()
	q.start()

	nc := &Conn{Opts: Options{}}
	ran := make(chan struct{}, 1)
	nc.Opts.ClosedCB = func(*Conn) { ran <- struct{}{} }
	q.push(asyncCBEvent{kind: cbKindClosed, conn: nc})

	q.shutdown()

	select {
	case <-ran:
	default:
		t.Fatal("expected shutdown to drain the pending callback before returning")
	}
}
