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

// Package h1client is a small HTTP/1.1 client built around an explicit
// connection cache. It provides keep-alive connection reuse with
// per-destination idle pools, buffered and streamed request bodies with
// lazy chunked/fixed-length framing, the Expect: 100-continue handshake,
// and redirect following with the conventional method and entity
// retention rules per status code.
//
// The client performs synchronous, blocking I/O on the calling thread:
// one in-flight request owns one connection for its full duration,
// including any redirect hops. It never retries a failed request;
// automatic behavior is limited to redirect following.
//
// A minimal request:
//
//	client := h1client.NewClient()
//	req, err := h1client.NewRequest(http.MethodGet, "http://example.com/", nil)
//	if err != nil {
//		// handle err
//	}
//	resp, err := client.Do(context.Background(), req)
//	if err != nil {
//		// handle err
//	}
//	defer resp.Close()
//
// To stream a request body without knowing its length up front, use
// [Client.DoStream]; the body is framed with chunked transfer encoding
// unless it fits in a single write covered by a declared Content-Length.
package h1client
