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

import "strings"

const (
	tokenSep    = '.'
	tokenWild   = "*"
	tokenFwdAll = ">"
)

// isValidSubject does a left-to-right token scan (not a regex, per DESIGN
// NOTES §9): empty tokens are invalid, and ">" is only valid as the final
// token. Used client-side before a SUB is ever written to the wire.
func isValidSubject(subj string) bool {
	if subj == "" {
		return false
	}
	tokens := strings.Split(subj, string(tokenSep))
	for i, t := range tokens {
		if t == "" {
			return false
		}
		if t == tokenFwdAll && i != len(tokens)-1 {
			return false
		}
	}
	return true
}

// isValidQueueName rejects whitespace so a SUB's optional queue group token
// never corrupts the wire grammar.
func isValidQueueName(queue string) bool {
	if queue == "" {
		return true
	}
	return !strings.ContainsAny(queue, " \t\r\n")
}

// subjectIsLiteral reports whether subj contains no wildcard tokens, i.e. is
// safe to use verbatim as a publish subject.
func subjectIsLiteral(subj string) bool {
	for _, t := range strings.Split(subj, string(tokenSep)) {
		if t == tokenWild || t == tokenFwdAll {
			return false
		}
	}
	return true
}

// subjectMatches reports whether the publish subject subj matches the
// subscription pattern pattern: "*" consumes exactly one token, ">" (valid
// only as the last token of pattern) consumes one or more trailing tokens.
// Used by tests that assert delivery-order/wildcard invariants without a
// live broker round trip.
func subjectMatches(subj, pattern string) bool {
	subjTokens := strings.Split(subj, string(tokenSep))
	patTokens := strings.Split(pattern, string(tokenSep))

	for i, pt := range patTokens {
		if pt == tokenFwdAll {
			return i < len(subjTokens)
		}
		if i >= len(subjTokens) {
			return false
		}
		if pt != tokenWild && pt != subjTokens[i] {
			return false
		}
	}
	return len(patTokens) == len(subjTokens)
}
