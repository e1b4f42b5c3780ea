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
	"crypto/tls"
	"fmt"
	"os"
	"time"
)

const (
	// Version is the client library version.
	Version = "2.0.0"

	// DefaultURL is used when no other URL is specified.
	DefaultURL = "nats://localhost:4222"
	// DefaultPort is the default port nats-server listens on.
	DefaultPort = 4222

	DefaultMaxReconnect           = 60
	DefaultReconnectWait          = 2 * time.Second
	DefaultTimeout                = 2 * time.Second
	DefaultPingInterval           = 2 * time.Minute
	DefaultMaxPingOut             = 2
	DefaultReconnectBufSize       = 8 * 1024 * 1024
	DefaultMaxChanLen             = 65536
	DefaultInboxPrefix            = "_INBOX."
)

// ConnHandler is used for asynchronous connection lifecycle events.
type ConnHandler func(*Conn)

// ErrHandler processes asynchronous errors encountered while processing
// inbound messages, e.g. slow consumer notifications.
type ErrHandler func(*Conn, *Subscription, error)

// SignatureHandler answers a server nonce challenge for nkey-based
// authentication (spec §1's "signing primitive for cryptographic
// authentication", consumed here only through this function type).
type SignatureHandler func(nonce []byte) ([]byte, error)

// Options is an immutable configuration snapshot cloned at Connect time
// (spec §3). It is normally built through Connect's functional Option
// arguments rather than populated by hand.
type Options struct {
	// Servers is the list of candidate URLs; Url is kept for
	// single-server convenience and is used at connect time only when
	// Servers is empty.
	Url     string
	Servers []string

	NoRandomize bool
	Verbose     bool
	Pedantic    bool
	Secure      bool
	TLSConfig   *tls.Config

	Name string

	AllowReconnect bool
	MaxReconnect   int
	ReconnectWait  time.Duration
	ReconnectBufSize int

	Timeout      time.Duration
	PingInterval time.Duration
	MaxPingsOut  int

	SubChanLen            int
	MaxPendingBytesPerSub int

	InboxPrefix string

	// DeliveryModel selects the default dispatcher for every subscription
	// made on this connection (spec §4.8); PerSubscriptionThread unless
	// overridden or NATS_DEFAULT_TO_LIB_MSG_DELIVERY is set.
	DeliveryModel DeliveryModel

	User     string
	Password string
	Token    string

	Nkey        string
	SignatureCB SignatureHandler
	UserJWT     func() (string, error)

	NoEcho bool

	ClosedCB            ConnHandler
	DisconnectedCB      ConnHandler
	ReconnectedCB       ConnHandler
	DiscoveredServersCB ConnHandler
	LameDuckModeCB      ConnHandler
	AsyncErrorCB        ErrHandler
}

// GetDefaultOptions returns the factory-default Options snapshot, safe to
// copy and mutate before calling Connect.
func GetDefaultOptions() Options {
	return Options{
		AllowReconnect:        true,
		MaxReconnect:          DefaultMaxReconnect,
		ReconnectWait:         DefaultReconnectWait,
		ReconnectBufSize:      DefaultReconnectBufSize,
		Timeout:               DefaultTimeout,
		PingInterval:          DefaultPingInterval,
		MaxPingsOut:           DefaultMaxPingOut,
		SubChanLen:            DefaultMaxChanLen,
		MaxPendingBytesPerSub: DefaultSubPendingBytesLimit,
		InboxPrefix:           DefaultInboxPrefix,
		DeliveryModel:         deliveryModelFromEnv(),
	}
}

func deliveryModelFromEnv() DeliveryModel {
	if v, ok := os.LookupEnv(envNATSDeliveryPool); ok && v != "" {
		return SharedDeliveryPool
	}
	return PerSubscriptionThread
}

// Option configures an Options snapshot. Errors returned from an Option
// abort Connect before any network I/O happens.
type Option func(*Options) error

// Connect connects to the NATS server(s) named by url (or a comma-separated
// list), applying opts in order.
func Connect(url string, opts ...Option) (*Conn, error) {
	o := GetDefaultOptions()
	o.Servers = processURLString(url)
	if len(o.Servers) > 0 {
		o.Url = o.Servers[0]
	}
	for _, fn := range opts {
		if fn == nil {
			continue
		}
		if err := fn(&o); err != nil {
			return nil, err
		}
	}
	return o.Connect()
}

// SecureConnect attempts to connect to the server using TLS.
func SecureConnect(url string) (*Conn, error) {
	return Connect(url, Secure())
}

// Connect creates a connection using this Options snapshot.
func (o Options) Connect() (*Conn, error) {
	nc := &Conn{Opts: o}
	if len(o.Servers) == 0 && o.Url != "" {
		o.Servers = processURLString(o.Url)
		nc.Opts = o
	}
	if len(nc.Opts.Servers) == 0 {
		nc.Opts.Servers = []string{DefaultURL}
	}
	pool, err := newServerPool(nc.Opts.Servers, !nc.Opts.NoRandomize)
	if err != nil {
		return nil, err
	}
	nc.srvPool = pool

	if err := libOpen(defaultWorkerPoolSize); err != nil {
		return nil, err
	}
	if err := nc.connect(); err != nil {
		libRelease()
		return nil, err
	}
	return nc, nil
}

// --- Functional options ---

// Name sets the client's connection name, reported to the server in CONNECT
// and visible in server-side monitoring.
func Name(name string) Option {
	return func(o *Options) error {
		o.Name = name
		return nil
	}
}

// Secure enables a TLS connection, optionally with a custom *tls.Config.
func Secure(tlsConfigs ...*tls.Config) Option {
	return func(o *Options) error {
		o.Secure = true
		for _, c := range tlsConfigs {
			o.TLSConfig = c
		}
		return nil
	}
}

// RootCAs loads the given PEM files as the trust store for TLS verification.
func RootCAs(file ...string) Option {
	return func(o *Options) error {
		pool, err := loadRootCAs(file...)
		if err != nil {
			return err
		}
		if o.TLSConfig == nil {
			o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		o.TLSConfig.RootCAs = pool
		o.Secure = true
		return nil
	}
}

// UserInfo sets a plain user/password pair sent in CONNECT.
func UserInfo(user, password string) Option {
	return func(o *Options) error {
		o.User = user
		o.Password = password
		return nil
	}
}

// Token sets a bare authentication token sent in CONNECT.
func Token(token string) Option {
	return func(o *Options) error {
		o.Token = token
		return nil
	}
}

// Nkey configures nkey-based authentication: pubKey identifies the key,
// sigCB answers the server's nonce challenge (spec's signing-primitive
// collaborator, see auth.go).
func Nkey(pubKey string, sigCB SignatureHandler) Option {
	return func(o *Options) error {
		if err := validatePublicNkey(pubKey); err != nil {
			return err
		}
		o.Nkey = pubKey
		o.SignatureCB = sigCB
		return nil
	}
}

// UserCredentials configures nkey+JWT authentication from a standard
// ".creds" file, wrapping the nkeys signer in auth.go.
func UserCredentials(userOrChainedFile string, seedFiles ...string) Option {
	return func(o *Options) error {
		jwtCB, sigCB, err := userCredsCallbacks(userOrChainedFile, seedFiles...)
		if err != nil {
			return err
		}
		o.UserJWT = jwtCB
		o.SignatureCB = sigCB
		return nil
	}
}

// NoReconnect disables the automatic reconnect logic entirely.
func NoReconnect() Option {
	return func(o *Options) error {
		o.AllowReconnect = false
		return nil
	}
}

// MaxReconnects sets the maximum number of per-server-pool-pass reconnect
// attempts; a negative value retries forever.
func MaxReconnects(n int) Option {
	return func(o *Options) error {
		o.MaxReconnect = n
		return nil
	}
}

// ReconnectWait sets the wait between two reconnect attempts to the same
// server.
func ReconnectWait(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return fmt.Errorf("%w: reconnect wait must be >= 0", ErrInvalidOption)
		}
		o.ReconnectWait = d
		return nil
	}
}

// ReconnectBufSize caps the bytes buffered for replay while RECONNECTING
// (spec §4.5/§4.7); exceeding it fails pending publishes with
// ErrReconnectBufExceeded.
func ReconnectBufSize(size int) Option {
	return func(o *Options) error {
		o.ReconnectBufSize = size
		return nil
	}
}

// Timeout sets the dial/connect timeout per server-pool entry.
func Timeout(d time.Duration) Option {
	return func(o *Options) error {
		if d < 0 {
			return fmt.Errorf("%w: timeout must be >= 0", ErrInvalidOption)
		}
		o.Timeout = d
		return nil
	}
}

// PingInterval overrides how often a periodic PING is sent to detect a
// stale connection (spec §4.5).
func PingInterval(d time.Duration) Option {
	return func(o *Options) error {
		o.PingInterval = d
		return nil
	}
}

// MaxPingsOutstanding sets how many un-ponged PINGs are tolerated before the
// connection is declared STALE_CONNECTION.
func MaxPingsOutstanding(max int) Option {
	return func(o *Options) error {
		o.MaxPingsOut = max
		return nil
	}
}

// DontRandomizeServers disables shuffling of the server pool on startup.
func DontRandomizeServers() Option {
	return func(o *Options) error {
		o.NoRandomize = true
		return nil
	}
}

// Verbose requests a +OK acknowledgement from the server for every
// protocol command.
func Verbose() Option {
	return func(o *Options) error {
		o.Verbose = true
		return nil
	}
}

// Pedantic requests stricter server-side protocol checking.
func Pedantic() Option {
	return func(o *Options) error {
		o.Pedantic = true
		return nil
	}
}

// NoEcho disables delivery of this connection's own publishes back to its
// own subscriptions (requires server support, advertised in INFO).
func NoEcho() Option {
	return func(o *Options) error {
		o.NoEcho = true
		return nil
	}
}

// SubscriptionPendingLimits sets the default per-subscription pending
// message/byte caps used unless a subscription calls SetPendingLimits.
func SubscriptionPendingLimits(msgLimit, bytesLimit int) Option {
	return func(o *Options) error {
		if msgLimit <= 0 || bytesLimit <= 0 {
			return fmt.Errorf("%w: pending limits must be positive", ErrInvalidOption)
		}
		o.SubChanLen = msgLimit
		o.MaxPendingBytesPerSub = bytesLimit
		return nil
	}
}

// UseSharedDeliveryPool selects the shared-worker-pool dispatch model
// (spec §4.8 model 2) as this connection's default, instead of spinning a
// goroutine per asynchronous subscription.
func UseSharedDeliveryPool() Option {
	return func(o *Options) error {
		o.DeliveryModel = SharedDeliveryPool
		return nil
	}
}

// DisconnectHandler sets the callback invoked when the connection is lost.
func DisconnectHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.DisconnectedCB = cb
		return nil
	}
}

// ReconnectHandler sets the callback invoked once a reconnect succeeds.
func ReconnectHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.ReconnectedCB = cb
		return nil
	}
}

// ClosedHandler sets the callback invoked once the connection is closed.
func ClosedHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.ClosedCB = cb
		return nil
	}
}

// DiscoveredServersHandler sets the callback invoked when a reconnect INFO
// advertises new server URLs merged into the pool.
func DiscoveredServersHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.DiscoveredServersCB = cb
		return nil
	}
}

// LameDuckModeHandler sets the callback invoked when the server announces
// it is entering graceful shutdown.
func LameDuckModeHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.LameDuckModeCB = cb
		return nil
	}
}

// ErrorHandler sets the callback invoked for asynchronous errors such as
// slow-consumer notifications.
func ErrorHandler(cb ErrHandler) Option {
	return func(o *Options) error {
		o.AsyncErrorCB = cb
		return nil
	}
}
