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

import "errors"

var (
	// ErrMissingLocation indicates a redirect response without the
	// Location header required to follow it.
	ErrMissingLocation = errors.New("redirect response has no Location header")

	// ErrTooManyRedirects indicates the configured redirect limit was
	// reached without arriving at a non-redirect response. It is
	// distinct from transport errors: the network worked, the server
	// kept redirecting.
	ErrTooManyRedirects = errors.New("maximum redirections reached")

	// ErrStreamNotClosed indicates a streaming handler returned without
	// closing the request body writer. This is a contract violation by
	// the caller.
	ErrStreamNotClosed = errors.New("request stream was not closed before the handler returned")

	// ErrStreamClosed indicates a write on an already-closed request
	// body writer.
	ErrStreamClosed = errors.New("write on closed request stream")

	// ErrBodyTooLong indicates more request body bytes than the
	// declared Content-Length allows.
	ErrBodyTooLong = errors.New("request body exceeds the declared content length")

	// ErrStreamAbort is a sentinel a streaming handler may return to
	// stop writing deliberately. It is not treated as a failure: the
	// request still completes and produces a response.
	ErrStreamAbort = errors.New("request stream aborted by handler")

	// ErrBodyNotReplayable indicates a 307 or 308 redirect asked for
	// the original entity to be re-sent, but the entity was streamed in
	// chunks and is gone.
	ErrBodyNotReplayable = errors.New("cannot replay a streamed request body on redirect")
)
