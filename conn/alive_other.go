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

//go:build !unix

package conn

import "net"

// probeConnected assumes the connection is alive on platforms without a
// non-consuming socket probe. A dead connection surfaces as an I/O error
// on first use instead.
func probeConnected(net.Conn) bool {
	return true
}
