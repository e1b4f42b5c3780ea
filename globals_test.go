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

func TestMarkHelperThreadRejectsReentrantClose(t *testing.T) {
	var err error
	markHelperThread(func() {
		err = libClose()
	})
	if err == nil {
		t.Fatal("expected libClose called from a helper thread to be rejected")
	}
}

func TestIsHelperThreadFalseOutsideMarkHelperThread(t *testing.T) {
	if isHelperThread() {
		t.Fatal("expected the test goroutine to not be marked as a helper thread")
	}
}
