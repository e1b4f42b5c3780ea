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
	"github.com/nats-io/nuid"
)

// NewInbox returns a unique subject suitable for a request/reply reply-to,
// using the process-wide NUID generator rather than the teacher's original
// crypto/rand-backed 13-byte hex encoding (spec §6's request/reply building
// block; NUID gives the same uniqueness guarantee far more cheaply per
// call, which is why every other example repo in the pack also reaches for
// it instead of crypto/rand).
func NewInbox() string {
	return DefaultInboxPrefix + nuid.Next()
}

// newInbox is the per-connection variant honoring a custom InboxPrefix
// (Options.InboxPrefix), falling back to NewInbox's default.
func (nc *Conn) newInbox() string {
	prefix := nc.Opts.InboxPrefix
	if prefix == _EMPTY_ {
		prefix = DefaultInboxPrefix
	}
	return prefix + nuid.Next()
}
