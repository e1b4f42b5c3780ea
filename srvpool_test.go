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

func TestNewServerPoolDefaultsPort(t *testing.T) {
	p, err := newServerPool([]string{"localhost"}, false)
	if err != nil {
		t.Fatalf("newServerPool returned error: %v", err)
	}
	cur := p.currentServer()
	if cur == nil {
		t.Fatal("expected a current server")
	}
	if cur.url.Port() != "4222" {
		t.Fatalf("expected default port 4222, got %q", cur.url.Port())
	}
}

func TestNewServerPoolEmptyIsError(t *testing.T) {
	if _, err := newServerPool(nil, false); err == nil {
		t.Fatal("expected an error constructing a pool with no servers")
	}
}

func TestServerPoolMoveToEnd(t *testing.T) {
	p, err := newServerPool([]string{"a:4222", "b:4222", "c:4222"}, false)
	if err != nil {
		t.Fatalf("newServerPool returned error: %v", err)
	}
	first := p.currentServer()
	p.moveToEnd()
	second := p.currentServer()
	if first.url.Host == second.url.Host {
		t.Fatalf("expected a different current server after moveToEnd, got %q twice", first.url.Host)
	}
}

func TestServerPoolMergeDiscovered(t *testing.T) {
	p, err := newServerPool([]string{"a:4222"}, false)
	if err != nil {
		t.Fatalf("newServerPool returned error: %v", err)
	}
	if added := p.mergeDiscovered([]string{"a:4222", "b:4222"}); !added {
		t.Fatal("expected mergeDiscovered to report a new server added")
	}
	if p.size() != 2 {
		t.Fatalf("expected pool size 2, got %d", p.size())
	}
	if added := p.mergeDiscovered([]string{"b:4222"}); added {
		t.Fatal("expected mergeDiscovered to report no new servers on a repeat call")
	}
}

func TestProcessURLString(t *testing.T) {
	got := processURLString(" nats://a:4222 , nats://b:4222,nats://c:4222 ")
	want := []string{"nats://a:4222", "nats://b:4222", "nats://c:4222"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
