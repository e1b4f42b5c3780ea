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
	"context"
	"time"
)

// Request publishes data on subj and waits up to timeout for a single
// reply delivered to a freshly minted inbox (spec §6).
func (nc *Conn) Request(subj string, data []byte, timeout time.Duration) (*Msg, error) {
	inbox := nc.newInbox()
	s, err := nc.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	s.AutoUnsubscribe(1)
	defer s.Unsubscribe()

	if err := nc.PublishRequest(subj, inbox, data); err != nil {
		return nil, err
	}
	return requestReply(s, timeout)
}

// RequestMsg is Request taking a Msg so a request can carry Header values.
func (nc *Conn) RequestMsg(m *Msg, timeout time.Duration) (*Msg, error) {
	if m == nil {
		return nil, ErrInvalidMsg
	}
	inbox := nc.newInbox()
	s, err := nc.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	s.AutoUnsubscribe(1)
	defer s.Unsubscribe()

	if err := nc.publish(m.Subject, inbox, m.Header, m.Data); err != nil {
		return nil, err
	}
	return requestReply(s, timeout)
}

// RequestWithContext is Request bounded by ctx instead of a fixed timeout.
func (nc *Conn) RequestWithContext(ctx context.Context, subj string, data []byte) (*Msg, error) {
	if ctx == nil {
		return nil, ErrInvalidContext
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	type result struct {
		m   *Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := nc.Request(subj, data, time.Until(deadline))
		done <- result{m, err}
	}()
	select {
	case r := <-done:
		return r.m, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requestReply waits for the first reply on s, translating an inline 503
// no-responders status into ErrNoResponders.
func requestReply(s *Subscription, timeout time.Duration) (*Msg, error) {
	m, err := s.NextMsg(timeout)
	if err != nil {
		return nil, err
	}
	if isNoResponders(m.status) {
		return nil, ErrNoResponders
	}
	return m, nil
}
