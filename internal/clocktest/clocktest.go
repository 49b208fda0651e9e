// Copyright 2024-2025 The h1client Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clocktest adapts clockwork's fake clock to our internal.Clock
// interface, so tests can control the time source the connection cache
// uses for idle-age accounting.
package clocktest

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/keelhttp/h1client/internal"
)

// FakeClock provides an interface for a clock which can be manually
// advanced through time.
type FakeClock interface {
	internal.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, waiters int) error
}

// NewFakeClock creates a new FakeClock using clockwork.
func NewFakeClock() FakeClock {
	return fakeClock{clockwork.NewFakeClock()}
}

type fakeClock struct {
	*clockwork.FakeClock
}

var _ FakeClock = fakeClock{}
