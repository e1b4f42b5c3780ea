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
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Header carries optional metadata alongside a Msg's payload, delivered
// with HPUB/HMSG instead of PUB/MSG (spec §5's header supplement).
type Header map[string][]string

// Get returns the first value associated with key, or the empty string.
func (h Header) Get(key string) string {
	if h == nil {
		return _EMPTY_
	}
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return _EMPTY_
}

// Set replaces any existing values for key with a single value.
func (h Header) Set(key, value string) {
	h[key] = []string{value}
}

// Add appends value to any existing values for key.
func (h Header) Add(key, value string) {
	h[key] = append(h[key], value)
}

// Del removes all values for key.
func (h Header) Del(key string) {
	delete(h, key)
}

const (
	hdrLine        = "NATS/1.0" + _CRLF_
	statusHdr      = "Status"
	descrHdr       = "Description"
	noResponders   = "503"
	statusLen      = 3 // e.g. 503
)

// encodeHeaders renders h as a NATS header block (status line, Key: Value
// pairs, trailing CRLF) as used by HPUB and delivered back via HMSG.
func encodeHeaders(h Header) []byte {
	if len(h) == 0 {
		return nil
	}
	var buf bytes.Buffer
	buf.WriteString(hdrLine)
	for k, values := range h {
		for _, v := range values {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString(_CRLF_)
		}
	}
	buf.WriteString(_CRLF_)
	return buf.Bytes()
}

// decodeHeaders parses a raw header block previously produced by
// encodeHeaders (or received from a server) back into a Header, also
// reporting an inline status code such as the no-responders "503".
func decodeHeaders(raw []byte) (Header, int, error) {
	if len(raw) == 0 {
		return nil, 0, nil
	}
	r := bufio.NewReader(bytes.NewReader(raw))
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, 0, fmt.Errorf("%w: truncated header status line", ErrSyntaxError)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "NATS/1.0") {
		return nil, 0, fmt.Errorf("%w: missing NATS/1.0 header status line", ErrSyntaxError)
	}

	status := 0
	if rest := strings.TrimSpace(strings.TrimPrefix(line, "NATS/1.0")); len(rest) >= statusLen {
		if code, err := strconv.Atoi(rest[:statusLen]); err == nil {
			status = code
		}
	}

	h := Header{}
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == _EMPTY_ {
			break
		}
		if idx := strings.Index(trimmed, ":"); idx >= 0 {
			key := strings.TrimSpace(trimmed[:idx])
			val := strings.TrimSpace(trimmed[idx+1:])
			h.Add(key, val)
		}
		if err != nil {
			break
		}
	}
	return h, status, nil
}

// isNoResponders reports whether status is the inline "no responders for
// request" signal a server sends in place of an actual reply (spec §6).
func isNoResponders(status int) bool {
	return status == 503
}
