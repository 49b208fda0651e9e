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

package internal

import "time"

// Clock is an interface that is compatible with the jonboulle/clockwork
// package. The intent is that the clockwork package only be a dependency
// for tests, not for non-test code. The connection cache uses it to age
// out idle connections.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// NewRealClock returns a Clock implementation where all methods delegate
// to the corresponding function in the [time] package.
func NewRealClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}
