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

// newTestSyncSub builds a standalone synchronous Subscription, bypassing
// Conn.subscribe's network I/O, for exercising enqueue/NextMsg/pending
// accounting in isolation. It is bound to an unconnected Conn so the
// subscription counts as valid for NextMsg/Dropped.
func newTestSyncSub(msgLimit, byteLimit int) *Subscription {
	s := newSubscription(&Conn{}, "foo", _EMPTY_, nil)
	s.dispatcher = waiterDispatcher{}
	s.limits = pendingLimits{msgs: uint64(msgLimit), bytes: uint64(byteLimit)}
	s.state = subActive
	return s
}

func TestSubscriptionEnqueueAndNextMsg(t *testing.T) {
	s := newTestSyncSub(10, 10240)

	m := &Msg{Subject: "foo", Data: []byte("hello")}
	ok, _ := s.enqueue(m)
	if !ok {
		t.Fatal("expected enqueue to succeed under the subscription's limits")
	}

	got, err := s.NextMsg(time.Second)
	if err != nil {
		t.Fatalf("NextMsg returned error: %v", err)
	}
	if string(got.Data) != "hello" {
		t.Fatalf("got %q, want %q", got.Data, "hello")
	}
}

func TestSubscriptionNextMsgTimesOut(t *testing.T) {
	s := newTestSyncSub(10, 10240)
	if _, err := s.NextMsg(10 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestSubscriptionSlowConsumerDropsAndRearms(t *testing.T) {
	s := newTestSyncSub(1, 10240)

	ok1, _ := s.enqueue(&Msg{Data: []byte("a")})
	if !ok1 {
		t.Fatal("first enqueue within limits should succeed")
	}
	ok2, first2 := s.enqueue(&Msg{Data: []byte("b")})
	if ok2 || !first2 {
		t.Fatalf("second enqueue over the msg limit should drop as the first drop, got ok=%v first=%v", ok2, first2)
	}
	ok3, first3 := s.enqueue(&Msg{Data: []byte("c")})
	if ok3 || first3 {
		t.Fatalf("third enqueue should drop without re-flagging first drop, got ok=%v first=%v", ok3, first3)
	}

	if dropped, _ := s.Dropped(); dropped != 2 {
		t.Fatalf("expected 2 dropped messages, got %d", dropped)
	}

	// NextMsg reports the slow-consumer condition once before handing out
	// the queued message.
	if _, err := s.NextMsg(time.Second); err != ErrSlowConsumer {
		t.Fatalf("expected ErrSlowConsumer, got %v", err)
	}
	// Drain the one queued message; a successful enqueue should re-arm the
	// slow-consumer latch (DESIGN NOTES decision: single successful
	// enqueue re-arms).
	if _, err := s.NextMsg(time.Second); err != nil {
		t.Fatalf("NextMsg returned error: %v", err)
	}
	ok4, _ := s.enqueue(&Msg{Data: []byte("d")})
	if !ok4 {
		t.Fatal("enqueue after room freed up should succeed")
	}
	ok5, first5 := s.enqueue(&Msg{Data: []byte("e")})
	if ok5 || !first5 {
		t.Fatalf("drop after the latch re-armed should flag a first drop again, got ok=%v first=%v", ok5, first5)
	}
}

func TestSubscriptionSetPendingLimitsRejectsNegative(t *testing.T) {
	s := newTestSyncSub(10, 10240)
	if err := s.SetPendingLimits(-1, 10); err != ErrInvalidArg {
		t.Fatalf("expected ErrInvalidArg, got %v", err)
	}
}

func TestSubscriptionUnsubscribeWithoutConnIsBadSubscription(t *testing.T) {
	s := newTestSyncSub(10, 10240)
	s.conn = nil
	if err := s.Unsubscribe(); err != ErrBadSubscription {
		t.Fatalf("expected ErrBadSubscription, got %v", err)
	}
}
