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
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keelhttp/h1client/conn"
	"github.com/keelhttp/h1client/header"
	"github.com/keelhttp/h1client/internal/http1"
)

// Do sends the request and returns the final response, following
// redirects up to the configured limit. The returned response must be
// closed by the caller; closing releases the underlying connection back
// to the cache.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, req, req.URL)
	if err != nil {
		return nil, err
	}
	if c.maxRedirects <= 0 || !IsRedirect(resp.StatusCode) {
		return resp, nil
	}
	return c.followRedirects(ctx, req, req.URL, resp, 0, req.Body, true)
}

// roundTrip performs a single request/response exchange against the
// given resolved URL, with no redirect handling.
func (c *Client) roundTrip(ctx context.Context, req *Request, reqURL *url.URL) (*Response, error) {
	key, err := c.connKey(reqURL)
	if err != nil {
		return nil, err
	}
	wire := c.wireHeaders(req, reqURL)
	if req.Body != nil {
		wire.Set("Content-Length", strconv.Itoa(len(req.Body)))
		wire.Del("Transfer-Encoding")
	}
	expect := c.expectContinue && len(req.Body) > 0
	if expect {
		wire.Set("Expect", "100-continue")
	}

	cn, err := c.cache.Connection(ctx, c.dialer, key, wire, c.defaultKeepAlive)
	if err != nil {
		return nil, err
	}
	target := http1.RequestTarget(reqURL, cn.AbsoluteForm())
	if err := http1.WriteRequestPrologue(cn.Writer(), req.Method, target, wire); err != nil {
		_ = cn.Close()
		return nil, fmt.Errorf("write request to %s: %w", key.Address(), err)
	}
	if expect {
		if err := cn.Flush(); err != nil {
			_ = cn.Close()
			return nil, fmt.Errorf("write request to %s: %w", key.Address(), err)
		}
		proceed, early, err := c.continueProbe(cn, req.Method)
		if err != nil {
			return nil, err
		}
		if !proceed {
			c.logger.Debug("expect-continue handshake interrupted",
				zap.Stringer("key", key), zap.Int("status", early.StatusCode))
			return early, nil
		}
	}
	if len(req.Body) > 0 {
		if _, err := cn.Writer().Write(req.Body); err != nil {
			_ = cn.Close()
			return nil, fmt.Errorf("write request body to %s: %w", key.Address(), err)
		}
	}
	if err := cn.Flush(); err != nil {
		_ = cn.Close()
		return nil, fmt.Errorf("write request to %s: %w", key.Address(), err)
	}
	return c.readResponse(cn, req.Method, false)
}

// wireHeaders builds the header block actually sent for one attempt:
// the request's own fields plus Host, and the optional generated
// request ID. The request's collection is never mutated.
func (c *Client) wireHeaders(req *Request, reqURL *url.URL) *header.Headers {
	var wire *header.Headers
	if req.Header != nil {
		wire = req.Header.Clone()
	} else {
		wire = header.New()
	}
	if !wire.Has("Host") {
		wire.Prepend("Host", reqURL.Host)
	}
	if c.requestIDs && !wire.Has("X-Request-Id") {
		wire.Set("X-Request-Id", uuid.NewString())
	}
	return wire
}

// readResponse reads the status line, headers, and body framing of the
// next response on the connection. Interim 100 responses that were not
// asked for are skipped. On a transport error the connection is
// force-closed before the error propagates, so a corrupted stream can
// never be reused.
func (c *Client) readResponse(cn *conn.Conn, method string, forceNoReuse bool) (*Response, error) {
	if err := cn.SetReadDeadline(c.readDeadline()); err != nil {
		_ = cn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	reader := cn.Reader()
	proto, code, reason, err := http1.ReadStatusLine(reader)
	for err == nil && code == http.StatusContinue {
		if _, err = http1.ReadHeaders(reader); err == nil {
			proto, code, reason, err = http1.ReadStatusLine(reader)
		}
	}
	if err != nil {
		_ = cn.Close()
		return nil, fmt.Errorf("read response status: %w", err)
	}
	headers, err := http1.ReadHeaders(reader)
	if err != nil {
		_ = cn.Close()
		return nil, fmt.Errorf("read response headers: %w", err)
	}
	return c.buildResponse(cn, method, proto, code, reason, headers, forceNoReuse), nil
}

// buildResponse classifies the body framing and wires the body to the
// connection's release.
func (c *Client) buildResponse(
	cn *conn.Conn,
	method, proto string,
	code int,
	reason string,
	headers *header.Headers,
	forceNoReuse bool,
) *Response {
	var body io.ReadCloser
	contentLength := int64(-1)
	reusable := true
	switch {
	case method == http.MethodHead || code/100 == 1 ||
		code == http.StatusNoContent || code == http.StatusNotModified:
		body = emptyBody{}
		contentLength = 0
	case headers.HasToken("Transfer-Encoding", "chunked"):
		body = http1.NewChunkedReader(cn.Reader())
	default:
		if length, ok := headers.ContentLength(); ok {
			contentLength = length
			if length == 0 {
				body = emptyBody{}
			} else {
				body = http1.NewFixedReader(cn.Reader(), length)
			}
		} else {
			// Close-delimited body: runs to connection EOF, so the
			// connection cannot be reused.
			body = io.NopCloser(cn.Reader())
			reusable = false
		}
	}
	if code == http.StatusSwitchingProtocols {
		// The connection now speaks another protocol; it can never
		// return to the pool.
		reusable = false
	}
	if headers.HasToken("Connection", "close") {
		reusable = false
	}
	if proto == "HTTP/1.0" && !headers.HasToken("Connection", "keep-alive") {
		reusable = false
	}
	if forceNoReuse {
		reusable = false
	}
	return &Response{
		StatusCode:    code,
		Reason:        reason,
		Proto:         proto,
		Header:        headers,
		ContentLength: contentLength,
		Body: &bodyReleaser{
			body:     body,
			conn:     cn,
			cache:    c.cache,
			reusable: reusable,
		},
	}
}

// continueProbe waits, under the continue timeout, for the interim
// response to an "Expect: 100-continue" handshake. It reports whether
// the caller should proceed to send the body. A timeout counts as
// permission to proceed: many servers never send the interim response
// and simply start streaming the real response once the body arrives.
// Any status other than 100 becomes the exchange's response, marked
// non-reusable because the request was never completed on the wire.
func (c *Client) continueProbe(cn *conn.Conn, method string) (proceed bool, early *Response, err error) {
	if err := cn.SetReadDeadline(time.Now().Add(c.continueTimeout)); err != nil {
		_ = cn.Close()
		return false, nil, fmt.Errorf("expect-continue probe: %w", err)
	}
	// Guarded restore: the shortened deadline must never leak into the
	// rest of the exchange, whichever way the probe ends.
	defer func() {
		if derr := cn.SetReadDeadline(c.readDeadline()); derr != nil && err == nil && proceed {
			_ = cn.Close()
			proceed, early, err = false, nil, fmt.Errorf("expect-continue probe: %w", derr)
		}
	}()
	reader := cn.Reader()
	// Peek first: a timeout while peeking consumes nothing, so the
	// stream stays clean for the real response later.
	if _, perr := reader.Peek(1); perr != nil {
		var netErr net.Error
		if errors.As(perr, &netErr) && netErr.Timeout() {
			return true, nil, nil
		}
		_ = cn.Close()
		return false, nil, fmt.Errorf("read interim response: %w", perr)
	}
	proto, code, reason, rerr := http1.ReadStatusLine(reader)
	if rerr != nil {
		_ = cn.Close()
		return false, nil, fmt.Errorf("read interim response: %w", rerr)
	}
	if code == http.StatusContinue {
		if _, herr := http1.ReadHeaders(reader); herr != nil {
			_ = cn.Close()
			return false, nil, fmt.Errorf("read interim response: %w", herr)
		}
		return true, nil, nil
	}
	headers, herr := http1.ReadHeaders(reader)
	if herr != nil {
		_ = cn.Close()
		return false, nil, fmt.Errorf("read response headers: %w", herr)
	}
	return false, c.buildResponse(cn, method, proto, code, reason, headers, true), nil
}

func (c *Client) readDeadline() time.Time {
	if c.readTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.readTimeout)
}
