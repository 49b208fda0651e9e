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

//go:build unix

package conn

import (
	"net"
	"syscall"
)

// probeConnected reports whether a socket is still logically open using
// a non-blocking MSG_PEEK that consumes no data. A peer that closed the
// connection yields a zero-byte read; a healthy but quiet connection
// yields EWOULDBLOCK. Data already available to read means the peer
// pushed bytes we never consumed, so the connection must not be reused
// for a new exchange.
//
// See https://stackoverflow.com/a/58664631/3200607
func probeConnected(netConn net.Conn) bool {
	// Unwrap *tls.Conn and similar wrappers.
	for {
		wrapper, ok := netConn.(interface{ NetConn() net.Conn })
		if !ok {
			break
		}
		netConn = wrapper.NetConn()
	}
	sysConn, ok := netConn.(syscall.Conn)
	if !ok {
		return true
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return false
	}
	usable := false
	var peekBuf [1]byte
	err = rawConn.Read(func(fd uintptr) bool {
		n, _, rerr := syscall.Recvfrom(int(fd), peekBuf[:], syscall.MSG_PEEK|syscall.MSG_DONTWAIT)
		switch {
		case rerr == syscall.EWOULDBLOCK || rerr == syscall.EAGAIN:
			usable = true
		case rerr == nil && n > 0:
			// Stray unconsumed bytes; not reusable for a fresh request.
			usable = false
		}
		return true
	})
	return err == nil && usable
}
