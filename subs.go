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
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// subState mirrors spec §3's Subscription states: ACTIVE → DRAINING → CLOSED.
type subState int

const (
	subActive subState = iota
	subDraining
	subClosed
)

// MsgHandler is invoked for every message delivered to an asynchronous
// subscriber.
type MsgHandler func(msg *Msg)

// pendingLimits bounds a subscription's queue, per spec §3's invariant
// pending.msgs ≤ limits.msgs AND pending.bytes ≤ limits.bytes.
type pendingLimits struct {
	msgs  uint64
	bytes uint64
}

// DefaultSubPendingMsgsLimit and DefaultSubPendingBytesLimit are applied to
// every subscription unless overridden via Options or SetPendingLimits.
const (
	DefaultSubPendingMsgsLimit  = 65536
	DefaultSubPendingBytesLimit = 65536 * 1024
)

// Subscription represents interest in a given subject, optionally scoped to
// a queue group (spec §3).
type Subscription struct {
	mu sync.Mutex

	sid uint64

	// Subject is the subject this subscription was created on; it may
	// contain wildcards. Queue is the optional queue-group name.
	Subject string
	Queue   string

	conn       *Conn
	mcb        MsgHandler
	dispatcher dispatcher
	worker     *deliveryWorker
	msgCh      chan dispatchMsg

	pending pendingLimits
	limits  pendingLimits

	delivered uint64
	dropped   uint64
	received  uint64
	max       uint64

	slowConsumer bool // latched until a successful enqueue re-arms it (DESIGN NOTES §9 (i))
	state        subState
	completeCB   func()
}

// newSubscription allocates a Subscription with default pending limits.
func newSubscription(nc *Conn, subj, queue string, cb MsgHandler) *Subscription {
	s := &Subscription{
		Subject: subj,
		Queue:   queue,
		conn:    nc,
		mcb:     cb,
		limits: pendingLimits{
			msgs:  DefaultSubPendingMsgsLimit,
			bytes: DefaultSubPendingBytesLimit,
		},
	}
	if nc != nil {
		if l := nc.Opts.SubChanLen; l > 0 {
			s.limits.msgs = uint64(l)
		}
		if b := nc.Opts.MaxPendingBytesPerSub; b > 0 {
			s.limits.bytes = uint64(b)
		}
	}
	chanLen := int(s.limits.msgs)
	if chanLen <= 0 || chanLen > workerChanLen {
		chanLen = defaultBufSize
	}
	s.msgCh = make(chan dispatchMsg, chanLen)
	return s
}

// pendingRoomLocked reports whether one more message of dataLen bytes fits
// within this subscription's limits. Caller holds s.mu.
func (s *Subscription) pendingRoomLocked(dataLen int) bool {
	if s.limits.msgs > 0 && s.pending.msgs >= s.limits.msgs {
		return false
	}
	if s.limits.bytes > 0 && s.pending.bytes+uint64(dataLen) > s.limits.bytes {
		return false
	}
	return true
}

// enqueue is the single enqueue path the reader uses regardless of
// delivery model. It reports ok=false — a slow-consumer drop — when the
// subscription's limits are exceeded or its channel is saturated, and
// firstDrop=true only the first time this happens in a contiguous overflow
// episode (spec §4.8's "at most once per contiguous slow period").
func (s *Subscription) enqueue(m *Msg) (ok bool, firstDrop bool) {
	s.mu.Lock()
	s.received++
	if s.state != subActive {
		s.mu.Unlock()
		return false, false
	}
	if !s.pendingRoomLocked(len(m.Data)) {
		s.dropped++
		first := !s.slowConsumer
		s.slowConsumer = true
		s.mu.Unlock()
		return false, first
	}
	s.pending.msgs++
	s.pending.bytes += uint64(len(m.Data))
	d := s.dispatcher
	s.mu.Unlock()

	sent := d.send(s, dispatchMsg{msg: m})

	s.mu.Lock()
	if !sent {
		s.pending.msgs--
		s.pending.bytes -= uint64(len(m.Data))
		s.dropped++
		first := !s.slowConsumer
		s.slowConsumer = true
		s.mu.Unlock()
		return false, first
	}
	// A successful enqueue re-arms the slow-consumer latch (DESIGN NOTES
	// §9 (i): the spec picks "single successful enqueue re-arms" among
	// the source's ambiguous re-arm conditions).
	s.slowConsumer = false
	s.mu.Unlock()
	return true, false
}

// enqueueSentinel threads a draining/closed/timedOut control message
// through the subscription's own queue so it is processed strictly after
// every message already pending (spec §4.8).
func (s *Subscription) enqueueSentinel(kind sentinelKind) {
	s.mu.Lock()
	d := s.dispatcher
	s.mu.Unlock()
	dm := dispatchMsg{sentinel: kind}
	if d != nil {
		// Sentinels must never be dropped for being "full"; retry with
		// a blocking send as a last resort after a non-blocking one.
		if !d.send(s, dm) {
			s.blockingSend(dm)
		}
		return
	}
	s.blockingSend(dm)
}

func (s *Subscription) blockingSend(dm dispatchMsg) {
	defer func() { recover() }() // msgCh may already be closed by Close()
	s.msgCh <- dm
}

// asyncDeliverLoop is the per-subscription-thread dispatcher's consumer
// (spec §4.8 model 1): it ranges over s.msgCh until closed.
func (s *Subscription) asyncDeliverLoop() {
	for m := range s.msgCh {
		s.deliverOne(m)
		if m.sentinel == sentinelClosed {
			return
		}
	}
}

// deliverOne invokes the user handler for a real message, or applies the
// in-band sentinel semantics from spec §4.8.
func (s *Subscription) deliverOne(m dispatchMsg) {
	switch m.sentinel {
	case sentinelDraining:
		s.mu.Lock()
		s.state = subClosed
		cb := s.completeCB
		s.mu.Unlock()
		if s.conn != nil {
			s.conn.removeSub(s)
		}
		if cb != nil {
			cb()
		}
	case sentinelClosed:
		s.mu.Lock()
		s.state = subClosed
		cb := s.completeCB
		d := s.dispatcher
		s.mu.Unlock()
		if d != nil {
			d.detach(s)
		}
		if cb != nil {
			cb()
		}
	case sentinelTimedOut:
		s.mu.Lock()
		cb := s.mcb
		s.mu.Unlock()
		if cb != nil {
			cb(nil)
		}
	default:
		s.mu.Lock()
		if s.pending.msgs > 0 {
			s.pending.msgs--
			s.pending.bytes -= uint64(len(m.msg.Data))
		}
		if s.max > 0 && s.delivered >= s.max {
			s.mu.Unlock()
			return
		}
		s.delivered++
		exceeded := s.max > 0 && s.delivered >= s.max
		cb := s.mcb
		s.mu.Unlock()
		if cb != nil {
			cb(m.msg)
		}
		if exceeded && s.conn != nil {
			s.conn.removeSub(s)
		}
	}
}

// IsValid reports whether the subscription is still registered with a live
// connection.
func (s *Subscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.state == subActive
}

// Unsubscribe removes interest in the subscription's subject.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrBadSubscription
	}
	return conn.unsubscribe(s, 0)
}

// AutoUnsubscribe issues an automatic unsubscribe processed by the server
// once max messages have been received (spec §4.9's building block).
func (s *Subscription) AutoUnsubscribe(max int) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrBadSubscription
	}
	return conn.unsubscribe(s, max)
}

// Drain unsubscribes immediately (UNSUB is sent, so no new messages
// arrive) while messages already queued still reach their handler (or
// waiting NextMsg caller); the completion callback runs only once the last
// in-flight message has been processed (spec §4.5/§4.8; exercised
// directly by the teacher's own drain_test.go).
func (s *Subscription) Drain() error {
	s.mu.Lock()
	conn := s.conn
	if s.state != subActive {
		s.mu.Unlock()
		return nil
	}
	s.state = subDraining
	s.mu.Unlock()
	if conn == nil {
		return ErrBadSubscription
	}
	if err := conn.unsubscribe(s, 0); err != nil {
		return err
	}
	s.enqueueSentinel(sentinelDraining)
	return nil
}

// NextMsg returns the next message available to a synchronous subscriber,
// blocking up to timeout. A timeout of 0 returns immediately.
func (s *Subscription) NextMsg(timeout time.Duration) (*Msg, error) {
	s.mu.Lock()
	if s.mcb != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: illegal call on an async subscription", ErrTypeSubscription)
	}
	if s.conn == nil {
		s.mu.Unlock()
		return nil, ErrBadSubscription
	}
	if s.slowConsumer {
		s.slowConsumer = false
		s.mu.Unlock()
		return nil, ErrSlowConsumer
	}
	ch := s.msgCh
	s.mu.Unlock()

	recv := func(m dispatchMsg, ok bool) (*Msg, error) {
		if !ok || m.sentinel != sentinelNone {
			s.mu.Lock()
			s.state = subClosed
			s.mu.Unlock()
			return nil, ErrConnectionClosed
		}
		s.mu.Lock()
		if s.pending.msgs > 0 {
			s.pending.msgs--
			s.pending.bytes -= uint64(len(m.msg.Data))
		}
		s.delivered++
		exceeded := s.max > 0 && s.delivered > s.max
		s.mu.Unlock()
		if exceeded {
			return nil, ErrMaxMessages
		}
		return m.msg, nil
	}

	if timeout <= 0 {
		select {
		case m, ok := <-ch:
			return recv(m, ok)
		default:
			return nil, ErrTimeout
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m, ok := <-ch:
		return recv(m, ok)
	case <-t.C:
		return nil, ErrTimeout
	}
}

// Pending reports the number of messages and bytes currently queued.
func (s *Subscription) Pending() (msgs, bytes int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, 0, ErrBadSubscription
	}
	return int(s.pending.msgs), int(s.pending.bytes), nil
}

// Delivered returns the number of messages handed to the handler so far.
func (s *Subscription) Delivered() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, ErrBadSubscription
	}
	return int64(s.delivered), nil
}

// Dropped returns the number of messages dropped due to slow-consumer
// enforcement.
func (s *Subscription) Dropped() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return 0, ErrBadSubscription
	}
	return int(s.dropped), nil
}

// SetPendingLimits overrides this subscription's pending message/byte caps.
// It does not resize the already-allocated channel.
func (s *Subscription) SetPendingLimits(msgLimit, bytesLimit int) error {
	if msgLimit < 0 || bytesLimit < 0 {
		return ErrInvalidArg
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits.msgs = uint64(msgLimit)
	s.limits.bytes = uint64(bytesLimit)
	return nil
}

// --- Connection-side registry (spec §4.8's "per-connection map from
// subscription id to subscription, with pending-queue accounting"). ---

func (nc *Conn) newSid() uint64 {
	return atomic.AddUint64(&nc.ssid, 1)
}

// subscribe is the internal subscribe function shared by every public
// Subscribe* variant.
func (nc *Conn) subscribe(subj, queue string, cb MsgHandler) (*Subscription, error) {
	if !isValidSubject(subj) {
		return nil, newErr(ErrKindInvalidSubject, ErrBadSubject, "invalid subject %q", subj)
	}
	if !isValidQueueName(queue) {
		return nil, newErr(ErrKindInvalidArg, ErrInvalidArg, "invalid queue name %q", queue)
	}

	nc.mu.Lock()
	if nc.isClosed() {
		nc.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	sub := newSubscription(nc, subj, queue, cb)
	sub.sid = nc.newSid()
	sub.dispatcher = nc.dispatcherFor()
	nc.subs[sub.sid] = sub

	reconnecting := nc.isReconnecting()
	nc.mu.Unlock()

	if cb != nil {
		sub.dispatcher.attach(sub)
	}

	if !reconnecting {
		nc.mu.Lock()
		nc.bw.WriteString(fmt.Sprintf(subProto, subj, queue, sub.sid))
		nc.mu.Unlock()
		nc.kickFlusher()
	}
	return sub, nil
}

// Subscribe expresses interest in subj, with messages delivered to cb. A
// nil cb creates a synchronous subscription polled via NextMsg.
func (nc *Conn) Subscribe(subj string, cb MsgHandler) (*Subscription, error) {
	return nc.subscribe(subj, _EMPTY_, cb)
}

// SubscribeSync is syntactic sugar for Subscribe(subj, nil).
func (nc *Conn) SubscribeSync(subj string) (*Subscription, error) {
	return nc.subscribe(subj, _EMPTY_, nil)
}

// QueueSubscribe creates an asynchronous queue subscriber: only one member
// of subscribers sharing queue receives any given message.
func (nc *Conn) QueueSubscribe(subj, queue string, cb MsgHandler) (*Subscription, error) {
	return nc.subscribe(subj, queue, cb)
}

// QueueSubscribeSync creates a synchronous queue subscriber.
func (nc *Conn) QueueSubscribeSync(subj, queue string) (*Subscription, error) {
	return nc.subscribe(subj, queue, nil)
}

// removeSub drops s from the registry without talking to the server (used
// once an UNSUB has already been sent, or the subscription auto-expired).
// Clearing s's own back-reference is the subscription's final release; it
// is handed to the GC queue (spec §4.4) instead of running inline here,
// since removeSub is frequently called from the delivery path itself.
func (nc *Conn) removeSub(s *Subscription) {
	nc.mu.Lock()
	delete(nc.subs, s.sid)
	nc.mu.Unlock()

	global.gc.collect(func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	})
}

// unsubscribe performs the low-level unsubscribe: max > 0 requests
// auto-unsubscribe after max deliveries instead of an immediate UNSUB.
func (nc *Conn) unsubscribe(sub *Subscription, max int) error {
	nc.mu.Lock()
	if nc.isClosed() {
		nc.mu.Unlock()
		return ErrConnectionClosed
	}
	s := nc.subs[sub.sid]
	if s == nil {
		nc.mu.Unlock()
		return nil
	}

	maxStr := _EMPTY_
	if max > 0 {
		s.mu.Lock()
		s.max = uint64(max)
		s.mu.Unlock()
		maxStr = strconv.Itoa(max)
	} else {
		delete(nc.subs, s.sid)
	}
	reconnecting := nc.isReconnecting()
	nc.mu.Unlock()

	if max <= 0 {
		s.enqueueSentinel(sentinelClosed)
	}

	if !reconnecting {
		nc.mu.Lock()
		nc.bw.WriteString(fmt.Sprintf(unsubProto, s.sid, maxStr))
		nc.mu.Unlock()
		nc.kickFlusher()
	}
	return nil
}

// NumSubscriptions returns the number of subscriptions currently
// registered on this connection.
func (nc *Conn) NumSubscriptions() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return len(nc.subs)
}

// dispatcherFor returns the dispatcher a new subscription should use,
// honoring Options.DeliveryModel. Every subscription on a connection uses
// the same model; there is no per-subscription override.
func (nc *Conn) dispatcherFor() dispatcher {
	if nc.Opts.DeliveryModel == SharedDeliveryPool {
		return poolDispatcher{pool: global.workers}
	}
	return waiterDispatcher{}
}
