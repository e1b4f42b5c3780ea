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

// Package nats is a Go client for the NATS messaging system
// (https://nats.io). It implements a publish/subscribe client over a
// managed TCP connection: automatic reconnects with server-pool failover,
// synchronous and asynchronous subscriptions with configurable delivery
// models, a request/reply building block on top of plain publish/
// subscribe, and optional TLS and nkey/JWT authentication.
//
// A minimal publisher:
//
//	nc, err := nats.Connect(nats.DefaultURL)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer nc.Close()
//	nc.Publish("updates", []byte("hello"))
//
// A minimal asynchronous subscriber:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	sub, _ := nc.Subscribe("updates", func(m *nats.Msg) {
//		fmt.Printf("received %q\n", m.Data)
//	})
//	defer sub.Unsubscribe()
package nats

// Msg is the unit of data exchanged over a subject: an optional Header, a
// payload and, for a received message, the reply subject and the
// Subscription it arrived on (spec §3).
type Msg struct {
	Subject string
	Reply   string
	Header  Header
	Data    []byte
	Sub     *Subscription

	// status carries an HMSG's inline NATS/1.0 status code (e.g. 503 for
	// "no responders"), used internally by Request/RequestMsg.
	status int
}

// Stats tracks message and byte counters for a Conn (spec §3).
type Stats struct {
	InMsgs     uint64
	OutMsgs    uint64
	InBytes    uint64
	OutBytes   uint64
	Reconnects uint64
}
