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

package h1client

import (
	"io"

	"github.com/keelhttp/h1client/conn"
	"github.com/keelhttp/h1client/header"
	"github.com/keelhttp/h1client/pool"
)

// Response is one HTTP response. The caller owns it and must Close it;
// closing drains any unread body bytes and hands the underlying
// connection back to the connection cache (which either pools or closes
// it).
type Response struct {
	// StatusCode is the numeric status, e.g. 200.
	StatusCode int
	// Reason is the status reason phrase as sent by the server; may be
	// empty.
	Reason string
	// Proto is the response protocol, e.g. "HTTP/1.1".
	Proto string
	// Header holds the response header fields in wire order.
	Header *header.Headers
	// ContentLength is the declared body length, or -1 when the body is
	// chunked or close-delimited.
	ContentLength int64
	// Body is the response entity. Never nil; bodiless responses yield
	// an immediate EOF.
	Body io.ReadCloser
}

// Close releases the response's resources. Idempotent.
func (r *Response) Close() error {
	return r.Body.Close()
}

// Bytes reads the remaining body and closes the response.
func (r *Response) Bytes() ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return data, err
}

// bodyReleaser ties a response body to the connection it is being read
// from. Close drains the body so no stale bytes can leak into the next
// exchange, then releases the connection to the cache.
type bodyReleaser struct {
	body     io.ReadCloser
	conn     *conn.Conn
	cache    *pool.Cache
	reusable bool
	closed   bool
}

func (b *bodyReleaser) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.EOF
	}
	return b.body.Read(p)
}

func (b *bodyReleaser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.body.Close()
	if err != nil {
		// A drain failure leaves the connection in an unknown framing
		// position; it must not be reused.
		b.cache.Release(b.conn, false)
		return err
	}
	b.cache.Release(b.conn, b.reusable)
	return nil
}

// emptyBody is the body of responses that carry no entity.
type emptyBody struct{}

func (emptyBody) Read([]byte) (int, error) { return 0, io.EOF }
func (emptyBody) Close() error             { return nil }
