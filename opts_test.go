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
	"testing"
	"time"
)

func applyOptions(opts ...Option) (Options, error) {
	o := GetDefaultOptions()
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return o, err
		}
	}
	return o, nil
}

func TestDefaultOptions(t *testing.T) {
	o := GetDefaultOptions()
	if !o.AllowReconnect {
		t.Error("expected AllowReconnect true by default")
	}
	if o.MaxReconnect != DefaultMaxReconnect {
		t.Errorf("got MaxReconnect %d, want %d", o.MaxReconnect, DefaultMaxReconnect)
	}
	if o.DeliveryModel != PerSubscriptionThread {
		t.Errorf("expected PerSubscriptionThread default delivery model, got %v", o.DeliveryModel)
	}
}

func TestNameOption(t *testing.T) {
	o, err := applyOptions(Name("my-client"))
	if err != nil {
		t.Fatalf("applyOptions returned error: %v", err)
	}
	if o.Name != "my-client" {
		t.Fatalf("got Name %q, want %q", o.Name, "my-client")
	}
}

func TestReconnectWaitRejectsNegative(t *testing.T) {
	_, err := applyOptions(ReconnectWait(-time.Second))
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestSubscriptionPendingLimitsRejectsNonPositive(t *testing.T) {
	_, err := applyOptions(SubscriptionPendingLimits(0, 100))
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestUseSharedDeliveryPoolOption(t *testing.T) {
	o, err := applyOptions(UseSharedDeliveryPool())
	if err != nil {
		t.Fatalf("applyOptions returned error: %v", err)
	}
	if o.DeliveryModel != SharedDeliveryPool {
		t.Fatalf("expected SharedDeliveryPool, got %v", o.DeliveryModel)
	}
}

func TestSecureOptionDefaultsTLSConfig(t *testing.T) {
	o, err := applyOptions(Secure())
	if err != nil {
		t.Fatalf("applyOptions returned error: %v", err)
	}
	if !o.Secure {
		t.Fatal("expected Secure true")
	}
	if o.TLSConfig != nil {
		t.Fatal("expected no custom TLSConfig, leaving the connect-time default in place")
	}
}
