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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"
)

// Status reports a Conn's position in the state machine from spec §4.5:
// CONNECTING -> CONNECTED -> (RECONNECTING -> CONNECTED)* -> CLOSED.
type Status int

const (
	DISCONNECTED Status = iota
	CONNECTED
	CLOSED
	RECONNECTING
	CONNECTING
	DRAINING_SUBS
	DRAINING_PUBS
)

func (s Status) String() string {
	switch s {
	case DISCONNECTED:
		return "DISCONNECTED"
	case CONNECTED:
		return "CONNECTED"
	case CLOSED:
		return "CLOSED"
	case RECONNECTING:
		return "RECONNECTING"
	case CONNECTING:
		return "CONNECTING"
	case DRAINING_SUBS:
		return "DRAINING_SUBS"
	case DRAINING_PUBS:
		return "DRAINING_PUBS"
	default:
		return "UNKNOWN"
	}
}

// serverInfo is the JSON payload a server sends in its initial and any
// subsequent INFO line.
type serverInfo struct {
	ID           string   `json:"server_id"`
	Host         string   `json:"host"`
	Port         uint     `json:"port"`
	Version      string   `json:"version"`
	AuthRequired bool     `json:"auth_required"`
	SslRequired  bool     `json:"ssl_required" `
	MaxPayload   int64    `json:"max_payload"`
	ConnectURLs  []string `json:"connect_urls,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	LameDuckMode bool     `json:"ldm,omitempty"`
	ClientID     uint64   `json:"client_id,omitempty"`
	ClientIP     string   `json:"client_ip,omitempty"`
}

// connectInfo is the JSON payload sent in CONNECT.
type connectInfo struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	Token        string `json:"auth_token,omitempty"`
	Nkey         string `json:"nkey,omitempty"`
	Sig          string `json:"sig,omitempty"`
	JWT          string `json:"jwt,omitempty"`
	TLS          bool   `json:"tls_required"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	HeadersOn    bool   `json:"headers"`
	NoResponders bool   `json:"no_responders,omitempty"`
}

// Conn represents a single connection to a NATS server (or server cluster,
// via its server pool). It is safe for concurrent use by multiple
// goroutines, matching the teacher's original contract (spec §4.5).
type Conn struct {
	Stats

	mu   sync.Mutex
	Opts Options

	srvPool *serverPool
	cur     *srv

	conn net.Conn
	bw   *bufio.Writer
	br   *bufio.Reader

	pending *bytes.Buffer
	fch     chan struct{}

	info serverInfo

	ssid uint64
	subs map[uint64]*Subscription

	pongs []chan struct{}

	status Status
	err    error

	pingTimer *sharedTimer
	pingsOut  int
}

// connect is the Options.Connect-invoked state-machine entry: dial, read
// the mandatory INFO, optionally upgrade to TLS, send CONNECT and wait for
// the handshake to settle.
func (nc *Conn) connect() error {
	nc.mu.Lock()
	nc.status = CONNECTING
	nc.subs = make(map[uint64]*Subscription)
	nc.pongs = make([]chan struct{}, 0, 8)
	nc.fch = make(chan struct{}, 64)
	nc.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < nc.srvPool.size(); attempt++ {
		nc.mu.Lock()
		err := nc.createConn()
		if err == nil {
			err = nc.processExpectedInfo()
		}
		if err == nil {
			err = nc.sendConnectLocked()
		}
		if err == nil {
			nc.status = CONNECTED
			nc.srvPool.markConnected(nc.cur)
			cur := nc.cur
			nc.mu.Unlock()
			go nc.readLoop()
			go nc.flusher()
			nc.setupPingTimer()
			runtime.SetFinalizer(nc, connFinalizer)
			_ = cur
			return nil
		}
		nc.mu.Unlock()
		lastErr = err
		nc.srvPool.moveToEnd()
	}
	if lastErr == nil {
		lastErr = ErrNoServers
	}
	return lastErr
}

// checkForSecure validates the negotiated TLS requirement matches both
// ends, upgrading the connection if needed. Caller holds nc.mu.
func (nc *Conn) checkForSecure() error {
	o := nc.Opts
	if o.Secure && !nc.info.SslRequired {
		return ErrSecureConnWanted
	}
	if nc.info.SslRequired && !o.Secure {
		return ErrSecureConnRequired
	}
	if o.Secure {
		return nc.makeTLSConn()
	}
	return nil
}

// processExpectedInfo reads the mandatory first INFO line (spec §4.5's
// CONNECTING state). Caller holds nc.mu.
func (nc *Conn) processExpectedInfo() error {
	nc.conn.SetReadDeadline(time.Now().Add(nc.Opts.Timeout))
	defer nc.conn.SetReadDeadline(time.Time{})

	c := &control{}
	if err := nc.readOp(c); err != nil {
		return err
	}
	if c.op != _INFO_OP_ {
		return ErrNoInfoReceived
	}
	if err := json.Unmarshal([]byte(c.args), &nc.info); err != nil {
		return fmt.Errorf("%w: %v", ErrSyntaxError, err)
	}
	return nc.checkForSecure()
}

// connectProto builds the CONNECT JSON payload, consulting auth.go for
// nkey/JWT signing when configured. Caller holds nc.mu.
func (nc *Conn) connectProto() (string, error) {
	o := nc.Opts
	var user, pass string
	if nc.cur != nil && nc.cur.url.User != nil {
		user = nc.cur.url.User.Username()
		pass, _ = nc.cur.url.User.Password()
	}
	if o.User != _EMPTY_ {
		user, pass = o.User, o.Password
	}

	ci := connectInfo{
		Verbose:   o.Verbose,
		Pedantic:  o.Pedantic,
		User:      user,
		Pass:      pass,
		Token:     o.Token,
		TLS:       o.Secure,
		Name:      o.Name,
		Lang:      "go",
		Version:   Version,
		Protocol:  1,
		Echo:      !o.NoEcho,
		HeadersOn: true,
		// Headers carry the inline "no responders" 503 status (spec §5/§6),
		// so advertise support for it whenever headers are on.
		NoResponders: true,
	}

	if o.Nkey != _EMPTY_ {
		if o.SignatureCB == nil {
			return _EMPTY_, ErrNkeyButNoSigCB
		}
		sig, err := o.SignatureCB([]byte(nc.info.Nonce))
		if err != nil {
			return _EMPTY_, err
		}
		ci.Nkey = o.Nkey
		ci.Sig = encodeSig(sig)
	} else if o.UserJWT != nil {
		if o.SignatureCB == nil {
			return _EMPTY_, ErrUserButNoSigCB
		}
		jwt, err := o.UserJWT()
		if err != nil {
			return _EMPTY_, err
		}
		sig, err := o.SignatureCB([]byte(nc.info.Nonce))
		if err != nil {
			return _EMPTY_, err
		}
		ci.JWT = jwt
		ci.Sig = encodeSig(sig)
	}

	b, err := json.Marshal(ci)
	if err != nil {
		return _EMPTY_, fmt.Errorf("%w: %v", ErrSyntaxError, err)
	}
	return fmt.Sprintf(conProto, b), nil
}

// sendConnectLocked writes CONNECT plus a PING and, with the caller holding
// nc.mu throughout, reads the socket directly until the resulting PONG,
// surfacing any handshake-time error as the connect error.
func (nc *Conn) sendConnectLocked() error {
	proto, err := nc.connectProto()
	if err != nil {
		return err
	}
	nc.bw.WriteString(proto)
	nc.bw.WriteString(pingProto)
	if err := nc.bw.Flush(); err != nil {
		return err
	}

	// Read directly here (single-threaded until readLoop spins up) so an
	// authorization violation surfaces as a Connect error instead of an
	// async one.
	c := &control{}
	nc.conn.SetReadDeadline(time.Now().Add(nc.Opts.Timeout))
	defer nc.conn.SetReadDeadline(time.Time{})
	for {
		if err := nc.readOp(c); err != nil {
			return err
		}
		switch c.op {
		case _PONG_OP_:
			return nil
		case _OK_OP_:
			continue
		case _ERR_OP_:
			return newErr(ErrKindAuthFailed, nil, "%s", c.args)
		case _INFO_OP_:
			json.Unmarshal([]byte(c.args), &nc.info)
			continue
		default:
			return fmt.Errorf("%w: unexpected %q during handshake", ErrSyntaxError, c.op)
		}
	}
}

func encodeSig(sig []byte) string {
	return base64.RawURLEncoding.EncodeToString(sig)
}

// setupPingTimer schedules the periodic keepalive PING described in spec
// §4.5, using the shared timer wheel rather than a dedicated goroutine.
func (nc *Conn) setupPingTimer() {
	nc.mu.Lock()
	interval := nc.Opts.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	nc.pingsOut = 0
	nc.mu.Unlock()

	nc.pingTimer = global.timers.schedule(interval, func() bool {
		nc.mu.Lock()
		if nc.isClosed() || nc.isReconnecting() {
			nc.mu.Unlock()
			return false
		}
		nc.pingsOut++
		tooMany := nc.Opts.MaxPingsOut > 0 && nc.pingsOut > nc.Opts.MaxPingsOut
		nc.mu.Unlock()
		if tooMany {
			nc.processReadOpErr(ErrStaleConnection)
			return false
		}
		nc.sendProto(pingProto)
		return true
	}, nil)
}

// processReadOpErr reacts to a read-side failure (EOF, timeout, stale
// connection): either hand off to the reconnect loop or disconnect for
// good, per Options.AllowReconnect (spec §4.6).
func (nc *Conn) processReadOpErr(err error) {
	nc.mu.Lock()
	if nc.isClosed() || nc.isReconnecting() {
		nc.mu.Unlock()
		return
	}
	if nc.Opts.AllowReconnect {
		nc.mu.Unlock()
		nc.processReconnect()
		return
	}
	nc.status = DISCONNECTED
	nc.err = err
	nc.mu.Unlock()
	nc.postAsyncEvent(cbKindDisconnected)
	nc.Close()
}

// processReconnect switches to RECONNECTING, buffers subsequent writes,
// and spins the dedicated doReconnect goroutine (spec §4.6).
func (nc *Conn) processReconnect() {
	nc.mu.Lock()
	if nc.isClosed() || nc.isReconnecting() {
		nc.mu.Unlock()
		return
	}
	nc.status = RECONNECTING
	if nc.conn != nil {
		nc.bw.Flush()
		nc.conn.Close()
	}
	nc.conn = nil
	nc.enterReconnectBuffering()
	nc.mu.Unlock()

	nc.postAsyncEvent(cbKindDisconnected)
	go nc.doReconnect()
}

// doReconnect walks the server pool trying to re-establish a connection,
// honoring Options.MaxReconnect/ReconnectWait, and replays subscription
// state plus any buffered publishes once it succeeds.
func (nc *Conn) doReconnect() {
	time.Sleep(10 * time.Millisecond)

	max := nc.Opts.MaxReconnect
	for attempt := 0; max < 0 || attempt < max*nc.srvPool.size(); attempt++ {
		nc.mu.Lock()
		if nc.isClosed() {
			nc.mu.Unlock()
			return
		}
		nc.mu.Unlock()

		nc.mu.Lock()
		cur := nc.srvPool.currentServer()
		if cur == nil {
			nc.mu.Unlock()
			time.Sleep(nc.Opts.ReconnectWait)
			continue
		}
		err := nc.createConn()
		nc.mu.Unlock()
		if err != nil {
			nc.srvPool.bumpReconnects(cur)
			nc.srvPool.moveToEnd()
			time.Sleep(nc.Opts.ReconnectWait)
			continue
		}

		nc.mu.Lock()
		nc.Stats.Reconnects++
		err = nc.processExpectedInfo()
		if err == nil {
			err = nc.sendConnectLocked()
		}
		if err == nil {
			nc.status = CONNECTED
			nc.resendSubscriptions()
			nc.flushReconnectPendingItems()
			nc.bw.Flush()
		}
		nc.mu.Unlock()

		if err != nil {
			nc.srvPool.bumpReconnects(cur)
			nc.srvPool.moveToEnd()
			time.Sleep(nc.Opts.ReconnectWait)
			continue
		}

		nc.srvPool.markConnected(cur)
		go nc.readLoop()
		go nc.flusher()
		nc.setupPingTimer()
		nc.postAsyncEvent(cbKindReconnected)
		return
	}

	nc.mu.Lock()
	nc.status = DISCONNECTED
	nc.err = ErrNoServers
	nc.mu.Unlock()
	nc.Close()
}

// postAsyncEvent pushes a lifecycle event onto the process-wide
// async-callback pump (spec §4.3); user callbacks never run inline here.
func (nc *Conn) postAsyncEvent(kind asyncCBKind) {
	global.asyncCB.push(asyncCBEvent{kind: kind, conn: nc})
}

func (nc *Conn) postAsyncError(sub *Subscription, err error) {
	nc.setLastError(err)
	global.asyncCB.push(asyncCBEvent{kind: cbKindError, conn: nc, sub: sub, err: err})
}

func (nc *Conn) postAsyncErrorOnConn(err error) {
	global.asyncCB.push(asyncCBEvent{kind: cbKindError, conn: nc, err: err})
}

func (nc *Conn) setLastErrorLocked(err error) {
	nc.err = err
}

// isClosed reports whether Close has fully run. Caller holds nc.mu.
func (nc *Conn) isClosed() bool { return nc.status == CLOSED }

// isReconnecting reports whether the connection is between sockets.
// Caller holds nc.mu.
func (nc *Conn) isReconnecting() bool { return nc.status == RECONNECTING }

// isDrainingLocked reports whether Drain has been called. Caller holds nc.mu.
func (nc *Conn) isDrainingLocked() bool {
	return nc.status == DRAINING_SUBS || nc.status == DRAINING_PUBS
}

// Status reports the connection's current state.
func (nc *Conn) Status() Status {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.status
}

// IsConnected reports whether the connection is currently usable.
func (nc *Conn) IsConnected() bool { return nc.Status() == CONNECTED }

// IsClosed reports whether Close has been called.
func (nc *Conn) IsClosed() bool { return nc.Status() == CLOSED }

// IsReconnecting reports whether the connection is attempting to
// re-establish a lost session.
func (nc *Conn) IsReconnecting() bool { return nc.Status() == RECONNECTING }

// ConnectedUrl returns the URL of the currently connected server, or the
// empty string if not connected.
func (nc *Conn) ConnectedUrl() string {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	if nc.status != CONNECTED || nc.cur == nil {
		return _EMPTY_
	}
	return nc.cur.url.String()
}

// Servers returns every known server URL, including ones discovered at
// runtime (spec §4.6).
func (nc *Conn) Servers() []string {
	return nc.srvPool.urls(false)
}

// DiscoveredServers returns only the server URLs learned via an INFO
// update rather than the original Connect call.
func (nc *Conn) DiscoveredServers() []string {
	return nc.srvPool.urls(true)
}

// MaxPayload returns the maximum message payload the connected server will
// accept, as advertised in its INFO line.
func (nc *Conn) MaxPayload() int64 {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.info.MaxPayload
}

// Close tears down the connection: releases every blocked Flush/NextMsg
// call, queues a closed sentinel behind each subscription's pending
// messages, and fires ClosedCB exactly once (spec §4.5).
func (nc *Conn) Close() {
	nc.mu.Lock()
	if nc.isClosed() {
		nc.mu.Unlock()
		return
	}
	nc.status = CLOSED
	if nc.pingTimer != nil {
		global.timers.stopTimer(nc.pingTimer)
	}
	nc.clearPendingFlushCalls()
	subs := nc.subs
	nc.subs = nil
	conn := nc.conn
	if conn != nil && nc.bw != nil {
		nc.bw.Flush()
	}
	nc.mu.Unlock()

	for _, s := range subs {
		s.enqueueSentinel(sentinelClosed)
	}
	if conn != nil {
		conn.Close()
	}
	if nc.fch != nil {
		close(nc.fch)
	}

	nc.postAsyncEvent(cbKindClosed)
	libRelease()
}

// connFinalizer is a best-effort safety net closing any Conn a caller
// forgot to Close explicitly.
func connFinalizer(nc *Conn) {
	nc.Close()
}
