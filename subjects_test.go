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

func TestIsValidSubject(t *testing.T) {
	cases := []struct {
		subj string
		want bool
	}{
		{"foo", true},
		{"foo.bar", true},
		{"foo.*", true},
		{"foo.>", true},
		{"foo.>.bar", false},
		{"", false},
		{"foo..bar", false},
		{".foo", false},
		{"foo.", false},
	}
	for _, c := range cases {
		if got := isValidSubject(c.subj); got != c.want {
			t.Errorf("isValidSubject(%q) = %v, want %v", c.subj, got, c.want)
		}
	}
}

func TestIsValidQueueName(t *testing.T) {
	if !isValidQueueName("") {
		t.Error("empty queue name should be valid (no queue group)")
	}
	if !isValidQueueName("workers") {
		t.Error("plain queue name should be valid")
	}
	if isValidQueueName("bad name") {
		t.Error("queue name with whitespace should be invalid")
	}
}

func TestSubjectIsLiteral(t *testing.T) {
	if !subjectIsLiteral("foo.bar") {
		t.Error("foo.bar should be literal")
	}
	if subjectIsLiteral("foo.*") {
		t.Error("foo.* should not be literal")
	}
	if subjectIsLiteral("foo.>") {
		t.Error("foo.> should not be literal")
	}
}

func TestSubjectMatches(t *testing.T) {
	cases := []struct {
		subj, pattern string
		want          bool
	}{
		{"foo", "foo", true},
		{"foo.bar", "foo.*", true},
		{"foo.bar.baz", "foo.*", false},
		{"foo.bar.baz", "foo.>", true},
		{"foo", "foo.>", false},
		{"foo.bar", "bar.*", false},
	}
	for _, c := range cases {
		if got := subjectMatches(c.subj, c.pattern); got != c.want {
			t.Errorf("subjectMatches(%q, %q) = %v, want %v", c.subj, c.pattern, got, c.want)
		}
	}
}
