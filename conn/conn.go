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

// Package conn provides the representation of a single reusable network
// connection. A connection wraps one socket (possibly TLS-wrapped,
// possibly tunneled through a proxy) together with its buffered reader
// and writer, and is the unit the connection cache pools and hands out
// to in-flight requests. A connection is never read or written by two
// requests concurrently; the cache enforces single ownership.
package conn

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"
)

// State describes where a connection is in its lifecycle.
type State int32

const (
	// StateConnected is a freshly established connection not yet handed
	// to a request.
	StateConnected State = iota
	// StateInUse means an in-flight request exclusively owns the
	// connection.
	StateInUse
	// StateIdle means the connection sits in the cache awaiting reuse.
	StateIdle
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInUse:
		return "in-use"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const readBufferSize = 4096

// Conn is a single reusable HTTP/1.1 connection.
type Conn struct {
	key          Key
	nc           net.Conn
	br           *bufio.Reader
	bw           *bufio.Writer
	state        atomic.Int32
	poolable     bool
	absoluteForm bool
	idleSince    time.Time
}

// Wrap adopts an established net.Conn as a Conn for the given key.
func Wrap(key Key, nc net.Conn) *Conn {
	c := &Conn{
		key: key,
		nc:  nc,
		br:  bufio.NewReaderSize(nc, readBufferSize),
		bw:  bufio.NewWriter(nc),
	}
	c.state.Store(int32(StateConnected))
	return c
}

// Key returns the destination key the connection was established for.
func (c *Conn) Key() Key {
	return c.key
}

// Reader returns the buffered reader over the socket.
func (c *Conn) Reader() *bufio.Reader {
	return c.br
}

// Writer returns the buffered writer over the socket.
func (c *Conn) Writer() *bufio.Writer {
	return c.bw
}

// Flush flushes buffered request bytes to the socket.
func (c *Conn) Flush() error {
	return c.bw.Flush()
}

// SetReadDeadline sets the absolute read deadline on the socket.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.nc.SetReadDeadline(t)
}

// SetWriteDeadline sets the absolute write deadline on the socket.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.nc.SetWriteDeadline(t)
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// MarkInUse records that a request now exclusively owns the connection.
func (c *Conn) MarkInUse() {
	c.state.CompareAndSwap(int32(StateConnected), int32(StateInUse))
	c.state.CompareAndSwap(int32(StateIdle), int32(StateInUse))
}

// MarkIdle records that the connection was returned to the cache at the
// given time.
func (c *Conn) MarkIdle(now time.Time) {
	c.idleSince = now
	c.state.CompareAndSwap(int32(StateInUse), int32(StateIdle))
	c.state.CompareAndSwap(int32(StateConnected), int32(StateIdle))
}

// IdleSince returns the time the connection last became idle. Only
// meaningful while the connection is idle.
func (c *Conn) IdleSince() time.Time {
	return c.idleSince
}

// SetPoolable records whether the connection may be returned to the
// cache when its request completes. Set once by the cache before the
// connection is handed out.
func (c *Conn) SetPoolable(poolable bool) {
	c.poolable = poolable
}

// Poolable reports whether the connection may be returned to the cache.
func (c *Conn) Poolable() bool {
	return c.poolable
}

// AbsoluteForm reports whether requests on this connection must use the
// absolute request target, which is the case for plain HTTP through an
// HTTP proxy.
func (c *Conn) AbsoluteForm() bool {
	return c.absoluteForm
}

// IsAlive reports whether the connection still looks usable. A closed
// connection is never alive. For platforms where the socket can be
// probed without consuming data, a dead peer is detected here; otherwise
// the connection is assumed alive and a failure surfaces on first use.
func (c *Conn) IsAlive() bool {
	if c.State() == StateClosed {
		return false
	}
	// Unread bytes left over from a previous exchange would corrupt the
	// next response parse; treat the connection as dead.
	if c.br.Buffered() > 0 {
		return false
	}
	return probeConnected(c.nc)
}

// Close closes the underlying socket. Idempotent.
func (c *Conn) Close() error {
	if c.state.Swap(int32(StateClosed)) == int32(StateClosed) {
		return nil
	}
	return c.nc.Close()
}
