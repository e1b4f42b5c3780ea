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

func TestGCQueueRunsCollected(t *testing.T) {
	q := newGCQueue()
	q.start()
	defer q.shutdown()

	var ran int32
	done := make(chan struct{})
	q.collect(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collected free function never ran")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected the free function to have run")
	}
}

func TestGCQueueNilFreeIsNoop(t *testing.T) {
	q := newGCQueue()
	q.start()
	defer q.shutdown()

	if q.collect(nil) {
		t.Fatal("expected collect(nil) to report false")
	}
}

func TestGCQueueRunsAfterCloseImmediately(t *testing.T) {
	q := newGCQueue()
	q.start()
	q.shutdown()

	var ran int32
	q.collect(func() { atomic.StoreInt32(&ran, 1) })
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected collect on a closed queue to run the free function inline")
	}
}
