// Copyright 2018 The NATS Authors
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

package test

import (
	"fmt"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	gnatsd "github.com/nats-io/nats-server/v2/test"

	nats "github.com/nats-io/go-nats"
)

const testPort = 8368

// DefaultTestOptions mirrors a stock nats-server config bound to a fixed
// local port, so every test in this package talks to the same address.
func DefaultTestOptions() *server.Options {
	return &server.Options{
		Host:   "localhost",
		Port:   testPort,
		NoLog:  true,
		NoSigs: true,
	}
}

// RunDefaultServer starts an embedded nats-server on DefaultTestOptions.
func RunDefaultServer() *server.Server {
	return RunServerWithOptions(DefaultTestOptions())
}

// RunServerWithOptions starts an embedded nats-server with opts, waiting
// for it to be ready to accept connections before returning.
func RunServerWithOptions(opts *server.Options) *server.Server {
	return gnatsd.RunServer(opts)
}

// NewDefaultConnection connects to the embedded server started by
// RunDefaultServer, failing the test immediately on error.
func NewDefaultConnection(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(fmt.Sprintf("nats://localhost:%d", testPort))
	if err != nil {
		t.Fatalf("failed to connect to default test server: %v", err)
	}
	return nc
}
