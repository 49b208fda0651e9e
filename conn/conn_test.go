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

package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyForURL(t *testing.T) {
	t.Parallel()
	key, err := KeyForURL("http", "example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, Key{Scheme: "http", Host: "example.com", Port: 80}, key)
	assert.Equal(t, "example.com:80", key.Address())

	key, err = KeyForURL("https", "example.com", "", "")
	require.NoError(t, err)
	assert.Equal(t, 443, key.Port)
	// SNI defaults to the host for https.
	assert.Equal(t, "example.com", key.ServerName)

	key, err = KeyForURL("https", "example.com:8443", "override.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, 8443, key.Port)
	assert.Equal(t, "override.example.com", key.ServerName)

	// IPv6 literals keep exactly one pair of brackets in the dial
	// address, with or without an explicit port.
	key, err = KeyForURL("http", "[::1]", "", "")
	require.NoError(t, err)
	assert.Equal(t, "::1", key.Host)
	assert.Equal(t, "[::1]:80", key.Address())

	key, err = KeyForURL("http", "[::1]:8080", "", "")
	require.NoError(t, err)
	assert.Equal(t, "::1", key.Host)
	assert.Equal(t, 8080, key.Port)
	assert.Equal(t, "[::1]:8080", key.Address())
}

func TestKeyDistinguishesDestinations(t *testing.T) {
	t.Parallel()
	plain, err := KeyForURL("http", "example.com", "", "")
	require.NoError(t, err)
	tls, err := KeyForURL("https", "example.com:80", "", "")
	require.NoError(t, err)
	proxied, err := KeyForURL("http", "example.com", "", "http://proxy:3128")
	require.NoError(t, err)
	assert.NotEqual(t, plain, tls)
	assert.NotEqual(t, plain, proxied)
}

func TestConnStateTransitions(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer server.Close()
	cn := Wrap(Key{Scheme: "http", Host: "example.com", Port: 80}, client)
	assert.Equal(t, StateConnected, cn.State())

	cn.MarkInUse()
	assert.Equal(t, StateInUse, cn.State())

	now := time.Now()
	cn.MarkIdle(now)
	assert.Equal(t, StateIdle, cn.State())
	assert.Equal(t, now, cn.IdleSince())

	cn.MarkInUse()
	assert.Equal(t, StateInUse, cn.State())

	require.NoError(t, cn.Close())
	assert.Equal(t, StateClosed, cn.State())
	// A second close is a no-op.
	require.NoError(t, cn.Close())
}

func TestConnIsAliveClosed(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer server.Close()
	cn := Wrap(Key{}, client)
	require.NoError(t, cn.Close())
	assert.False(t, cn.IsAlive())
}

func TestConnIsAliveStrayBytes(t *testing.T) {
	t.Parallel()
	client, server := net.Pipe()
	defer server.Close()
	defer client.Close()
	cn := Wrap(Key{}, client)
	go func() {
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\n\r\nleftover"))
	}()
	// Pull the stray bytes into the read buffer.
	_, err := cn.Reader().Peek(1)
	require.NoError(t, err)
	assert.False(t, cn.IsAlive())
}

func TestConnIsAliveDeadPeer(t *testing.T) {
	t.Parallel()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		sc, aerr := listener.Accept()
		if aerr == nil {
			accepted <- sc
		}
	}()
	client, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	cn := Wrap(Key{Scheme: "http", Host: "127.0.0.1"}, client)
	defer cn.Close()
	server := <-accepted
	assert.True(t, cn.IsAlive())
	require.NoError(t, server.Close())
	// The FIN takes a moment to arrive.
	assert.Eventually(t, func() bool {
		return !cn.IsAlive()
	}, time.Second, 5*time.Millisecond)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "in-use", StateInUse.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "closed", StateClosed.String())
}
