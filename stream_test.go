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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamArrival records how a streamed request body reached the server.
type streamArrival struct {
	method        string
	body          string
	contentLength int64
	chunked       bool
}

func streamEcho(observed chan<- streamArrival) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		chunked := false
		for _, enc := range r.TransferEncoding {
			if enc == "chunked" {
				chunked = true
			}
		}
		observed <- streamArrival{
			method:        r.Method,
			body:          string(body),
			contentLength: r.ContentLength,
			chunked:       chunked,
		}
		_, _ = io.WriteString(w, "received")
	}
}

func TestDoStreamSingleWriteFixedLength(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Content-Length", "5")
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := body.Write([]byte("hello")); werr != nil {
			return werr
		}
		return body.Close()
	})
	require.NoError(t, err)
	result, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "received", string(result))

	got := <-observed
	assert.Equal(t, "hello", got.body)
	assert.Equal(t, int64(5), got.contentLength)
	assert.False(t, got.chunked)
}

func TestDoStreamSecondWriteCommitsChunked(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	// The declared length turns out to be unusable once a second write
	// arrives; the client must fall back to chunked framing.
	req.Header.Set("Content-Length", "11")
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		for _, part := range []string{"hello", " world"} {
			if _, werr := io.WriteString(body, part); werr != nil {
				return werr
			}
		}
		return body.Close()
	})
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)

	got := <-observed
	assert.Equal(t, "hello world", got.body)
	assert.True(t, got.chunked)
	assert.Equal(t, int64(-1), got.contentLength)
}

func TestDoStreamNoDeclaredLengthChunked(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := io.WriteString(body, "no length declared"); werr != nil {
			return werr
		}
		return body.Close()
	})
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)

	got := <-observed
	assert.Equal(t, "no length declared", got.body)
	assert.True(t, got.chunked)
}

func TestDoStreamEmptyBody(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		return body.Close()
	})
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)

	got := <-observed
	assert.Empty(t, got.body)
	assert.Zero(t, got.contentLength)
	assert.False(t, got.chunked)
}

func TestDoStreamLargeChunkedBody(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	chunk := strings.Repeat("0123456789", 1000)
	req, err := NewRequest(http.MethodPut, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		for i := 0; i < 10; i++ {
			if _, werr := io.WriteString(body, chunk); werr != nil {
				return werr
			}
		}
		return body.Close()
	})
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)

	got := <-observed
	assert.Equal(t, http.MethodPut, got.method)
	assert.Len(t, got.body, 100000)
	assert.True(t, got.chunked)
}

func TestDoStreamOverflowDeclaredLength(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Content-Length", "3")
	_, err = client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		_, werr := body.Write([]byte("too much"))
		return werr
	})
	assert.ErrorIs(t, err, ErrBodyTooLong)
}

func TestDoStreamNotClosed(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	_, err = client.DoStream(context.Background(), req, func(io.WriteCloser) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamNotClosed)
}

func TestDoStreamDoubleCloseIsNoop(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := io.WriteString(body, "once"); werr != nil {
			return werr
		}
		if cerr := body.Close(); cerr != nil {
			return cerr
		}
		return body.Close()
	})
	require.NoError(t, err)
	_, err = resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "once", (<-observed).body)
}

func TestDoStreamWriteAfterClose(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	var writeErr error
	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if cerr := body.Close(); cerr != nil {
			return cerr
		}
		_, writeErr = body.Write([]byte("late"))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, resp.Close())
	assert.ErrorIs(t, writeErr, ErrStreamClosed)
	<-observed
}

func TestDoStreamAbortAfterClose(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	server := httptest.NewServer(streamEcho(observed))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := io.WriteString(body, "partial"); werr != nil {
			return werr
		}
		if cerr := body.Close(); cerr != nil {
			return cerr
		}
		// Not a failure; the exchange still completes.
		return ErrStreamAbort
	})
	require.NoError(t, err)
	result, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "received", string(result))
	<-observed
}

func TestDoStreamHandlerErrorPropagates(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	boom := io.ErrUnexpectedEOF
	_, err = client.DoStream(context.Background(), req, func(io.WriteCloser) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDoStreamExpectRejected(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusExpectationFailed)
	}))
	defer server.Close()
	client, _ := newTestClient(t, WithExpectContinue())

	req, err := NewRequest(http.MethodPost, server.URL, nil)
	require.NoError(t, err)
	var writes int
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		// The server answers at the first write; later writes must be
		// silently discarded.
		for _, part := range []string{"a", "b", "c"} {
			n, werr := io.WriteString(body, part)
			if werr != nil {
				return werr
			}
			writes += n
		}
		return body.Close()
	})
	require.NoError(t, err)
	defer resp.Close()
	assert.Equal(t, http.StatusExpectationFailed, resp.StatusCode)
	assert.Equal(t, 3, writes)
}

func TestDoStreamExpectRejectedRedirectReplaysFixedBody(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		// Refuse before reading the body.
		http.Redirect(w, r, "/final", http.StatusTemporaryRedirect)
	})
	mux.Handle("/final", streamEcho(observed))
	server := httptest.NewServer(mux)
	defer server.Close()
	client, _ := newTestClient(t, WithExpectContinue())

	req, err := NewRequest(http.MethodPut, server.URL+"/start", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Length", "5")
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := body.Write([]byte("hello")); werr != nil {
			return werr
		}
		return body.Close()
	})
	require.NoError(t, err)
	result, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "received", string(result))

	got := <-observed
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "hello", got.body)
}

func TestDoStreamRedirectChunkedBodyNotReplayable(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		http.Redirect(w, r, "/elsewhere", http.StatusTemporaryRedirect)
	}))
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPut, server.URL, nil)
	require.NoError(t, err)
	_, err = client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := io.WriteString(body, "streamed away"); werr != nil {
			return werr
		}
		return body.Close()
	})
	assert.ErrorIs(t, err, ErrBodyNotReplayable)
}

func TestDoStreamRedirectSeeOtherAfterStream(t *testing.T) {
	t.Parallel()
	observed := make(chan streamArrival, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		http.Redirect(w, r, "/final", http.StatusSeeOther)
	})
	mux.Handle("/final", streamEcho(observed))
	server := httptest.NewServer(mux)
	defer server.Close()
	client, _ := newTestClient(t)

	req, err := NewRequest(http.MethodPost, server.URL+"/start", nil)
	require.NoError(t, err)
	resp, err := client.DoStream(context.Background(), req, func(body io.WriteCloser) error {
		if _, werr := io.WriteString(body, "discarded on redirect"); werr != nil {
			return werr
		}
		return body.Close()
	})
	require.NoError(t, err)
	result, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "received", string(result))

	got := <-observed
	assert.Equal(t, http.MethodGet, got.method)
	assert.Empty(t, got.body)
}
