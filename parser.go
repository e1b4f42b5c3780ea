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
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	_OK_OP_   = "+OK"
	_ERR_OP_  = "-ERR"
	_MSG_OP_  = "MSG"
	_HMSG_OP_ = "HMSG"
	_PING_OP_ = "PING"
	_PONG_OP_ = "PONG"
	_INFO_OP_ = "INFO"
)

// control is a single parsed protocol line: an operator and its remaining
// argument string.
type control struct {
	op, args string
}

// readOp reads one line from the socket and splits it into a control.
func (nc *Conn) readOp(c *control) error {
	line, err := nc.br.ReadString('\n')
	if err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n")
	parseControl(line, c)
	return nil
}

// parseControl splits a raw protocol line on its first space.
func parseControl(line string, c *control) {
	toks := strings.SplitN(line, _SPC_, 2)
	switch len(toks) {
	case 1:
		c.op, c.args = strings.TrimSpace(toks[0]), _EMPTY_
	case 2:
		c.op, c.args = strings.TrimSpace(toks[0]), strings.TrimSpace(toks[1])
	default:
		c.op = _EMPTY_
	}
}

// readLoop sits on the buffered socket, reading and dispatching protocol
// lines until the connection is closed or a reconnect takes over.
func (nc *Conn) readLoop() {
	c := &control{}
	for {
		nc.mu.Lock()
		sock := nc.br
		closed := nc.isClosed()
		reconnecting := nc.isReconnecting()
		nc.mu.Unlock()
		if closed || reconnecting || sock == nil {
			return
		}

		if err := nc.readOp(c); err != nil {
			nc.processReadOpErr(err)
			return
		}
		switch c.op {
		case _MSG_OP_:
			nc.processMsg(c.args, false)
		case _HMSG_OP_:
			nc.processMsg(c.args, true)
		case _PING_OP_:
			nc.processPing()
		case _PONG_OP_:
			nc.processPong()
		case _INFO_OP_:
			nc.processInfo(c.args)
		case _OK_OP_:
			// Only meaningful with Options.Verbose; nothing to do.
		case _ERR_OP_:
			nc.processErr(c.args)
		}
	}
}

// processMsg parses a MSG or HMSG control line's arguments, reads its
// payload (and header block, for HMSG) off the wire, and routes the
// resulting Msg to its subscription via Subscription.enqueue.
func (nc *Conn) processMsg(args string, hasHeader bool) {
	var subj, reply string
	var sid uint64
	var hdrLen, totalLen int

	fields := strings.Fields(args)
	switch {
	case hasHeader && len(fields) == 4:
		subj, sid, hdrLen, totalLen = fields[0], parseUint(fields[1]), parseInt(fields[2]), parseInt(fields[3])
	case hasHeader && len(fields) == 5:
		subj, reply, sid, hdrLen, totalLen = fields[0], fields[2], parseUint(fields[1]), parseInt(fields[3]), parseInt(fields[4])
	case !hasHeader && len(fields) == 3:
		subj, sid, totalLen = fields[0], parseUint(fields[1]), parseInt(fields[2])
	case !hasHeader && len(fields) == 4:
		subj, reply, sid, totalLen = fields[0], fields[2], parseUint(fields[1]), parseInt(fields[3])
	default:
		nc.fatalProtocolError(fmt.Errorf("%w: malformed %s arguments %q", ErrSyntaxError, opName(hasHeader), args))
		return
	}

	buf := make([]byte, totalLen+2) // +2 for trailing CRLF
	if _, err := io.ReadFull(nc.br, buf); err != nil {
		nc.processReadOpErr(err)
		return
	}
	payload := buf[:totalLen]

	var hdr Header
	var status int
	data := payload
	if hasHeader {
		var herr error
		hdr, status, herr = decodeHeaders(payload[:hdrLen])
		if herr != nil {
			nc.fatalProtocolError(herr)
			return
		}
		data = payload[hdrLen:]
	}

	nc.mu.Lock()
	nc.InMsgs++
	nc.InBytes += uint64(totalLen)
	sub := nc.subs[sid]
	nc.mu.Unlock()
	if sub == nil {
		return
	}

	m := &Msg{Subject: subj, Reply: reply, Data: data, Header: hdr, Sub: sub, status: status}

	ok, firstDrop := sub.enqueue(m)
	if !ok && firstDrop {
		nc.postAsyncError(sub, ErrSlowConsumer)
	}
}

func opName(hasHeader bool) string {
	if hasHeader {
		return "HMSG"
	}
	return "MSG"
}

func parseUint(s string) uint64 {
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return v
		}
		v = v*10 + uint64(r-'0')
	}
	return v
}

func parseInt(s string) int {
	return int(parseUint(s))
}

// processPing answers the server's keepalive probe immediately.
func (nc *Conn) processPing() {
	nc.sendProto(pongProto)
}

// processInfo updates the connection's view of the server, merging any
// newly discovered servers and firing the DiscoveredServersCB/LameDuckCB
// callbacks (spec §4.6).
func (nc *Conn) processInfo(args string) {
	if args == _EMPTY_ {
		return
	}
	var info serverInfo
	if err := json.Unmarshal([]byte(args), &info); err != nil {
		nc.fatalProtocolError(fmt.Errorf("%w: invalid INFO payload", ErrSyntaxError))
		return
	}

	nc.mu.Lock()
	nc.info = info
	discovered := len(info.ConnectURLs) > 0 && nc.srvPool.mergeDiscovered(info.ConnectURLs)
	lameDuck := info.LameDuckMode
	nc.mu.Unlock()

	if discovered {
		nc.postAsyncEvent(cbKindDiscoveredServers)
	}
	if lameDuck {
		nc.postAsyncEvent(cbKindLameDuck)
	}
}

// processErr surfaces a server-sent -ERR as the connection's last error and
// as an async error, then closes the connection. Every -ERR closes it; no
// error text (an authorization violation included) leads to a reconnect.
func (nc *Conn) processErr(args string) {
	text := strings.Trim(args, "'")
	err := newErr(ErrKindProtocolError, nil, "%s", text)
	nc.setLastError(err)
	nc.postAsyncErrorOnConn(err)
	nc.Close()
}

// fatalProtocolError records err and closes the connection; malformed
// protocol from the server is not something a reconnect can work around.
func (nc *Conn) fatalProtocolError(err error) {
	nc.setLastError(err)
	nc.postAsyncErrorOnConn(err)
	nc.Close()
}
