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
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/nats-io/nkeys"
)

// userCredsCallbacks builds the (jwtCB, sigCB) pair Options.UserCredentials
// wires into the CONNECT handshake (spec §1's "signing primitive"
// collaborator): the server sends a nonce, the client signs it with an
// nkey seed that never leaves the process, and presents the matching JWT.
//
// userOrChainedFile may be either a ".creds" file containing both the JWT
// and the seed (the common case), or just the JWT file when seedFiles
// names the seed file separately.
func userCredsCallbacks(userOrChainedFile string, seedFiles ...string) (func() (string, error), SignatureHandler, error) {
	jwtCB := func() (string, error) {
		contents, err := os.ReadFile(userOrChainedFile)
		if err != nil {
			return _EMPTY_, err
		}
		jwt, err := parseDecoratedJWT(contents)
		if err != nil {
			return _EMPTY_, err
		}
		return jwt, nil
	}

	seedFile := userOrChainedFile
	if len(seedFiles) > 0 {
		seedFile = seedFiles[0]
	}

	sigCB := func(nonce []byte) ([]byte, error) {
		contents, err := os.ReadFile(seedFile)
		if err != nil {
			return nil, err
		}
		seed, err := parseDecoratedNkeySeed(contents)
		if err != nil {
			return nil, err
		}
		defer wipeSlice(seed)

		kp, err := nkeys.FromSeed(seed)
		if err != nil {
			return nil, err
		}
		return kp.Sign(nonce)
	}

	return jwtCB, sigCB, nil
}

var (
	userJWTRe  = regexp.MustCompile(`(?s)-----BEGIN NATS USER JWT-----\r?\n(.+?)\r?\n-?-?-?-?-?-?-?-?END`)
	userSeedRe = regexp.MustCompile(`(?s)-----BEGIN USER NKEY SEED-----\r?\n(.+?)\r?\n-?-?-?-?-?-?-?-?END`)
)

// parseDecoratedJWT extracts the JWT body from a creds file that wraps it
// in "-----BEGIN NATS USER JWT-----" / "------END NATS USER JWT------"
// delimiters, or returns the contents verbatim if undecorated.
func parseDecoratedJWT(contents []byte) (string, error) {
	if m := userJWTRe.FindSubmatch(contents); m != nil {
		return string(bytes.TrimSpace(m[1])), nil
	}
	return string(bytes.TrimSpace(contents)), nil
}

// parseDecoratedNkeySeed extracts the nkey seed from a creds file's
// "-----BEGIN USER NKEY SEED-----" block, or treats the contents as a bare
// seed if undecorated.
func parseDecoratedNkeySeed(contents []byte) ([]byte, error) {
	if m := userSeedRe.FindSubmatch(contents); m != nil {
		return bytes.TrimSpace(m[1]), nil
	}
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: no nkey seed found", ErrInvalidArg)
	}
	return trimmed, nil
}

func wipeSlice(b []byte) {
	for i := range b {
		b[i] = 'x'
	}
}

// validatePublicNkey checks that pub decodes as an nkey public key, so the
// Nkey option fails fast instead of only surfacing a server-side -ERR on
// the first CONNECT attempt.
func validatePublicNkey(pub string) error {
	if pub == _EMPTY_ {
		return nil
	}
	if _, err := nkeys.FromPublicKey(pub); err != nil {
		return fmt.Errorf("%w: invalid nkey public key: %v", ErrInvalidArg, err)
	}
	return nil
}
