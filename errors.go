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
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// ErrorKind identifies the category of a failure without pinning callers to
// a particular sentinel error's formatted text.
type ErrorKind int

const (
	ErrKindIO ErrorKind = iota
	ErrKindConnectionClosed
	ErrKindNoServers
	ErrKindStaleConnection
	ErrKindSecureConnRequired
	ErrKindSecureConnWanted
	ErrKindAuthFailed
	ErrKindAddressMissing
	ErrKindInvalidSubject
	ErrKindInvalidArg
	ErrKindInvalidSubscription
	ErrKindInvalidTimeout
	ErrKindIllegalState
	ErrKindSlowConsumer
	ErrKindMaxPayload
	ErrKindMaxDeliveredMsgs
	ErrKindInsufficientBuffer
	ErrKindNoMemory
	ErrKindSysError
	ErrKindTimeout
	ErrKindFailedToInitialize
	ErrKindNotInitialized
	ErrKindProtocolError
	ErrKindLineTooLong
	ErrKindSSLError
	ErrKindNoResponders
)

// maxErrorFrames bounds the caller-chain captured on every *Error, standing
// in for the C core's fixed-size thread-local frame array (spec §3, §7).
const maxErrorFrames = 16

// Error is the rich, returned-value replacement for the C core's
// thread-local error record (see DESIGN NOTES §9). It carries a status kind,
// a formatted message and a capped call-stack of function names.
type Error struct {
	Kind   ErrorKind
	Text   string
	Frames []string
	cause  error
}

func (e *Error) Error() string {
	if e.Text == "" {
		return "nats: unknown error"
	}
	return e.Text
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match against the package sentinel errors below, so
// callers that only care about identity (not the caller-chain) keep working.
func (e *Error) Is(target error) bool {
	if e.cause != nil && errors.Is(e.cause, target) {
		return true
	}
	if sentinel, ok := sentinelForKind[e.Kind]; ok {
		return errors.Is(sentinel, target)
	}
	return false
}

// newErr builds a rich *Error, capturing the caller chain with go-stack/stack.
// The chain starts at newErr's own frame and keeps at most maxErrorFrames.
func newErr(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	text := fmt.Sprintf(format, args...)
	if cause != nil {
		text = fmt.Sprintf("%s: %v", text, cause)
	}
	trace := stack.Trace().TrimRuntime()
	if len(trace) > maxErrorFrames {
		trace = trace[:maxErrorFrames]
	}
	frames := make([]string, 0, len(trace))
	for _, c := range trace {
		frames = append(frames, fmt.Sprintf("%n (%v)", c, c))
	}
	return &Error{Kind: kind, Text: "nats: " + text, Frames: frames, cause: cause}
}

// Sentinel errors kept for API compatibility with callers that compare by
// identity (errors.Is) rather than inspecting the caller-chain.
var (
	ErrConnectionClosed    = errors.New("nats: connection closed")
	ErrSecureConnRequired  = errors.New("nats: secure connection required")
	ErrSecureConnWanted    = errors.New("nats: secure connection not available")
	ErrBadSubscription     = errors.New("nats: invalid subscription")
	ErrTypeSubscription    = errors.New("nats: invalid subscription type")
	ErrBadSubject          = errors.New("nats: invalid subject")
	ErrSlowConsumer        = errors.New("nats: slow consumer, messages dropped")
	ErrTimeout             = errors.New("nats: timeout")
	ErrBadTimeout          = errors.New("nats: timeout invalid")
	ErrAuthorization       = errors.New("nats: authorization violation")
	ErrNoServers           = errors.New("nats: no servers available for connection")
	ErrStaleConnection     = errors.New("nats: stale connection")
	ErrMaxPayload          = errors.New("nats: maximum payload exceeded")
	ErrMaxMessages         = errors.New("nats: maximum messages delivered")
	ErrSyntaxError         = errors.New("nats: parse error")
	ErrNoInfoReceived      = errors.New("nats: protocol exception, INFO not received")
	ErrReconnectBufExceeded = errors.New("nats: outbound buffer limit exceeded")
	ErrInvalidConnection   = errors.New("nats: invalid connection")
	ErrInvalidMsg          = errors.New("nats: invalid message or message nil")
	ErrInvalidArg          = errors.New("nats: invalid argument")
	ErrInvalidContext      = errors.New("nats: invalid context")
	ErrNoEchoNotSupported  = errors.New("nats: no echo option not supported by this server")
	ErrClientIDNotSupported = errors.New("nats: client ID not supported by this server")
	ErrUserButNoSigCB      = errors.New("nats: user callback defined without a signature handler")
	ErrNkeyButNoSigCB      = errors.New("nats: nkey defined without a signature handler")
	ErrNoUserCB            = errors.New("nats: user callback not defined")
	ErrNkeyAndUser         = errors.New("nats: user callback and nkey defined")
	ErrNoResponders        = errors.New("nats: no responders available for request")
	ErrNoEcho              = errors.New("nats: no echo")
	ErrClientIPNotSupported = errors.New("nats: client IP not supported by this server")
	ErrConnectionDraining  = errors.New("nats: connection draining")
	ErrConnectionReconnecting = errors.New("nats: connection reconnecting")
	ErrDrainTimeout        = errors.New("nats: draining connection timed out")
	ErrUnsubscribeDraining = errors.New("nats: unsubscribe is being drained")
	ErrInvalidOption       = errors.New("nats: invalid option")
	ErrFailedToInitialize  = errors.New("nats: failed to initialize library")
	ErrNotInitialized      = errors.New("nats: library not initialized")
	ErrIllegalState        = errors.New("nats: illegal call from helper thread")
)

var sentinelForKind = map[ErrorKind]error{
	ErrKindIO:                  ErrInvalidConnection,
	ErrKindConnectionClosed:    ErrConnectionClosed,
	ErrKindNoServers:           ErrNoServers,
	ErrKindStaleConnection:     ErrStaleConnection,
	ErrKindSecureConnRequired:  ErrSecureConnRequired,
	ErrKindSecureConnWanted:    ErrSecureConnWanted,
	ErrKindAuthFailed:          ErrAuthorization,
	ErrKindAddressMissing:      ErrInvalidArg,
	ErrKindInvalidSubject:      ErrBadSubject,
	ErrKindInvalidArg:          ErrInvalidArg,
	ErrKindInvalidSubscription: ErrBadSubscription,
	ErrKindInvalidTimeout:      ErrBadTimeout,
	ErrKindIllegalState:        ErrIllegalState,
	ErrKindSlowConsumer:        ErrSlowConsumer,
	ErrKindMaxPayload:          ErrMaxPayload,
	ErrKindMaxDeliveredMsgs:    ErrMaxMessages,
	ErrKindInsufficientBuffer:  ErrReconnectBufExceeded,
	ErrKindTimeout:             ErrTimeout,
	ErrKindFailedToInitialize:  ErrFailedToInitialize,
	ErrKindNotInitialized:      ErrNotInitialized,
	ErrKindProtocolError:       ErrSyntaxError,
	ErrKindLineTooLong:         ErrSyntaxError,
	ErrKindSSLError:            ErrSecureConnRequired,
	ErrKindNoResponders:        ErrNoResponders,
}

// LastError reports the last error encountered on this connection. It is a
// best-effort compatibility shim for code ported from the C core's
// thread-local "get last error"; new code should prefer the error values
// returned directly from each call.
func (nc *Conn) LastError() error {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.err
}

func (nc *Conn) setLastError(err error) {
	nc.mu.Lock()
	nc.err = err
	nc.mu.Unlock()
}
