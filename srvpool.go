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
	"math/rand"
	"net/url"
	"strings"
	"sync"
)

// srv tracks one candidate server URL along with reconnect bookkeeping
// (spec §4.6's "ordered list of candidate servers").
type srv struct {
	url         *url.URL
	didConnect  bool
	reconnects  int
	isImplicit  bool // learned from a server's discovered-servers list
	lastAttempt bool
}

// serverPool is the connection's view of every known server, in the order
// it should try them (spec §4.6). The currently connected entry is always
// index 0 so resendSubscriptions/reconnect logic needs no extra pointer.
type serverPool struct {
	mu      sync.Mutex
	servers []*srv
}

// newServerPool builds a pool from a list of raw URLs (already split on
// commas by processURLString), shuffling unless randomize is false.
func newServerPool(urls []string, randomize bool) (*serverPool, error) {
	p := &serverPool{}
	for _, raw := range urls {
		u, err := parseServerURL(raw)
		if err != nil {
			return nil, err
		}
		p.servers = append(p.servers, &srv{url: u})
	}
	if len(p.servers) == 0 {
		return nil, ErrNoServers
	}
	if randomize {
		p.shuffle()
	}
	return p, nil
}

func parseServerURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "nats://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	if u.Port() == "" {
		u.Host = fmt.Sprintf("%s:%d", u.Hostname(), DefaultPort)
	}
	return u, nil
}

// processURLString splits a comma-separated URL string into individual
// entries, trimming whitespace around each.
func processURLString(urls string) []string {
	parts := strings.Split(urls, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p *serverPool) shuffle() {
	rand.Shuffle(len(p.servers), func(i, j int) {
		p.servers[i], p.servers[j] = p.servers[j], p.servers[i]
	})
}

// currentServer returns the head entry, or nil only if the pool is empty.
// It does not track which entries were already tried; callers bound their
// own walk over the pool.
func (p *serverPool) currentServer() *srv {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.servers) == 0 {
		return nil
	}
	return p.servers[0]
}

// moveToEnd rotates the current head server to the back of the list, so
// the next currentServer() call tries the next candidate (spec §4.6's
// round-robin server-pool walk).
func (p *serverPool) moveToEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.servers) < 2 {
		return
	}
	head := p.servers[0]
	p.servers = append(p.servers[1:], head)
}

// markConnected flags s as having completed at least one successful
// connect and zeroes its failed-attempt counter s.reconnects. Neither field
// is read by doReconnect's MaxReconnect attempt limit.
func (p *serverPool) markConnected(s *srv) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.didConnect = true
	s.reconnects = 0
}

func (p *serverPool) bumpReconnects(s *srv) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.reconnects++
	return s.reconnects
}

func (p *serverPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.servers)
}

// mergeDiscovered folds newly-advertised server URLs from an INFO's
// connect_urls into the pool (spec §4.6's discovered-servers support),
// reporting whether any entry was actually new.
func (p *serverPool) mergeDiscovered(urls []string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	known := make(map[string]bool, len(p.servers))
	for _, s := range p.servers {
		known[s.url.Host] = true
	}

	added := false
	for _, raw := range urls {
		u, err := parseServerURL(raw)
		if err != nil {
			continue
		}
		if known[u.Host] {
			continue
		}
		known[u.Host] = true
		p.servers = append(p.servers, &srv{url: u, isImplicit: true})
		added = true
	}
	return added
}

// urls returns the host:port of every known server, for Conn.Servers()/
// Conn.DiscoveredServers().
func (p *serverPool) urls(implicitOnly bool) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.servers))
	for _, s := range p.servers {
		if implicitOnly && !s.isImplicit {
			continue
		}
		out = append(out, s.url.Host)
	}
	return out
}
