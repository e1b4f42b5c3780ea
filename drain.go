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

import "time"

// DefaultDrainTimeout bounds how long Drain waits for every subscription to
// finish processing its already-queued messages before giving up and
// closing anyway.
const DefaultDrainTimeout = 30 * time.Second

// Drain puts the connection into DRAINING_SUBS: every subscription stops
// accepting new server deliveries (UNSUB is sent immediately) but keeps
// processing whatever is already queued, then the connection itself is
// flushed and closed (spec §4.5/§4.8, exercised by the teacher's own
// drain_test.go at the subscription level).
func (nc *Conn) Drain() error {
	return nc.DrainTimeout(DefaultDrainTimeout)
}

// DrainTimeout is Drain with an explicit upper bound.
func (nc *Conn) DrainTimeout(timeout time.Duration) error {
	nc.mu.Lock()
	if nc.isClosed() {
		nc.mu.Unlock()
		return ErrConnectionClosed
	}
	if nc.isDrainingLocked() {
		nc.mu.Unlock()
		return nil
	}
	nc.status = DRAINING_SUBS
	subs := make([]*Subscription, 0, len(nc.subs))
	for _, s := range nc.subs {
		subs = append(subs, s)
	}
	nc.mu.Unlock()

	for _, s := range subs {
		if err := s.Drain(); err != nil && err != ErrBadSubscription {
			nc.setLastError(err)
		}
	}

	done := make(chan struct{})
	go func() {
		for _, s := range subs {
			for {
				s.mu.Lock()
				closed := s.state == subClosed
				s.mu.Unlock()
				if closed {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		nc.setLastError(ErrDrainTimeout)
	}

	nc.mu.Lock()
	nc.status = DRAINING_PUBS
	nc.mu.Unlock()

	nc.Flush()
	nc.Close()
	return nil
}
