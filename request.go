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
	"errors"
	"fmt"
	"net/url"

	"github.com/keelhttp/h1client/attribute"
	"github.com/keelhttp/h1client/header"
)

// Request describes one HTTP request. The same Request value may be
// invoked multiple times; the client never mutates it, working on clones
// for each attempt (including redirect hops).
type Request struct {
	// Method is the HTTP method, e.g. "GET".
	Method string
	// URL is the absolute request URL. Only "http" and "https" schemes
	// are supported.
	URL *url.URL
	// Header holds the request header fields. NewRequest initializes
	// it; a hand-built Request may leave it nil.
	Header *header.Headers
	// Body is the buffered request entity for [Client.Do]. A nil body
	// means no entity at all; an empty non-nil body sends
	// "Content-Length: 0". Leave nil when streaming the body through
	// [Client.DoStream].
	Body []byte
	// Properties carries caller-defined metadata that the client passes
	// through untouched.
	Properties attribute.Values
}

// NewRequest builds a request for the given method and URL, with an
// optional buffered body.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	if method == "" {
		return nil, errors.New("empty request method")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("request URL has no host")
	}
	return &Request{
		Method: method,
		URL:    parsed,
		Header: header.New(),
		Body:   body,
	}, nil
}

// Clone returns a copy with an independent header collection. The body
// bytes and properties are shared, since neither is mutated.
func (r *Request) Clone() *Request {
	clone := *r
	if r.Header != nil {
		clone.Header = r.Header.Clone()
	}
	return &clone
}

func (r *Request) validate() error {
	if r == nil {
		return errors.New("nil request")
	}
	if r.Method == "" {
		return errors.New("empty request method")
	}
	if r.URL == nil || r.URL.Host == "" {
		return errors.New("request has no URL host")
	}
	if r.URL.Scheme != "http" && r.URL.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", r.URL.Scheme)
	}
	return nil
}
