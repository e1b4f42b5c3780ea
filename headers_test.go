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

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{}
	h.Set("X-Request-Id", "abc123")
	h.Add("X-Trace", "one")
	h.Add("X-Trace", "two")

	encoded := encodeHeaders(h)
	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded header block")
	}

	decoded, status, err := decodeHeaders(encoded)
	if err != nil {
		t.Fatalf("decodeHeaders returned error: %v", err)
	}
	if status != 0 {
		t.Fatalf("expected no status code, got %d", status)
	}
	if decoded.Get("X-Request-Id") != "abc123" {
		t.Fatalf("got %q for X-Request-Id", decoded.Get("X-Request-Id"))
	}
	if got := decoded["X-Trace"]; len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("X-Trace values = %v", got)
	}
}

func TestDecodeHeadersNoResponders(t *testing.T) {
	raw := []byte("NATS/1.0 503\r\n\r\n")
	_, status, err := decodeHeaders(raw)
	if err != nil {
		t.Fatalf("decodeHeaders returned error: %v", err)
	}
	if !isNoResponders(status) {
		t.Fatalf("expected status 503, got %d", status)
	}
}

func TestDecodeHeadersRejectsMissingStatusLine(t *testing.T) {
	if _, _, err := decodeHeaders([]byte("Key: value\r\n\r\n")); err == nil {
		t.Fatal("expected an error for a header block missing the NATS/1.0 line")
	}
}

func TestEncodeHeadersEmpty(t *testing.T) {
	if got := encodeHeaders(nil); got != nil {
		t.Fatalf("expected nil for an empty header, got %v", got)
	}
}
