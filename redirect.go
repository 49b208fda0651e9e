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
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// IsRedirect reports whether the status code is a followable redirect:
// any 3xx except 304. A 304 Not Modified is a cache-validation signal,
// not a location change, and is never followed regardless of any
// Location header it may carry.
func IsRedirect(statusCode int) bool {
	return statusCode >= 300 && statusCode < 400 &&
		statusCode != http.StatusNotModified
}

// followRedirects walks a redirect chain starting from resp. It is the
// single policy implementation shared by the buffered and streamed call
// paths, so the method/entity retention table cannot diverge between
// them:
//
//   - 307 and 308 preserve the original method and re-send the original
//     entity bytes;
//   - every other redirect code is sanitized to a GET with an empty
//     body, the conventional browser-compatible behavior.
//
// hopsDone is the number of redirect attempts already consumed before
// entering the loop: 0 for a fresh response, 1 when arriving via a
// 100-continue interruption that itself burned an attempt. entity and
// replayable describe the original request body; a 307/308 that needs a
// body that cannot be replayed fails with ErrBodyNotReplayable.
//
// Each superseded response is closed, draining any unread body bytes,
// before the next hop is issued; the returned response owns whichever
// connection the final hop landed on.
func (c *Client) followRedirects(
	ctx context.Context,
	req *Request,
	baseURL *url.URL,
	resp *Response,
	hopsDone int,
	entity []byte,
	replayable bool,
) (*Response, error) {
	current := resp
	currentURL := baseURL
	method := req.Method
	body := entity
	bodyOK := replayable
	for hops := hopsDone; hops < c.maxRedirects; hops++ {
		if !IsRedirect(current.StatusCode) {
			return current, nil
		}
		location, ok := current.Header.Get("Location")
		if !ok {
			status := current.StatusCode
			_ = current.Close()
			return nil, fmt.Errorf("%d response: %w", status, ErrMissingLocation)
		}
		locationURL, err := url.Parse(location)
		if err != nil {
			_ = current.Close()
			return nil, fmt.Errorf("invalid Location %q: %w", location, err)
		}
		// A relative Location inherits scheme, host, and port from the
		// URL the previous hop actually resolved to.
		nextURL := currentURL.ResolveReference(locationURL)
		switch current.StatusCode {
		case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			if !bodyOK {
				status := current.StatusCode
				_ = current.Close()
				return nil, fmt.Errorf("%d response: %w", status, ErrBodyNotReplayable)
			}
		default:
			method = http.MethodGet
			body = nil
			bodyOK = true
		}
		c.logger.Debug("following redirect",
			zap.Int("status", current.StatusCode),
			zap.String("method", method),
			zap.Stringer("location", nextURL))
		// Drain and release the superseded response before the next
		// round trip so no entity bytes leak across hops.
		if err := current.Close(); err != nil {
			return nil, fmt.Errorf("close redirect response: %w", err)
		}
		next := req.Clone()
		next.Method = method
		next.URL = nextURL
		next.Body = body
		if body == nil && next.Header != nil {
			next.Header.Del("Content-Length")
			next.Header.Del("Transfer-Encoding")
			next.Header.Del("Expect")
		}
		current, err = c.roundTrip(ctx, next, nextURL)
		if err != nil {
			return nil, err
		}
		currentURL = nextURL
	}
	if IsRedirect(current.StatusCode) {
		_ = current.Close()
		return nil, fmt.Errorf("%w (limit %d)", ErrTooManyRedirects, c.maxRedirects)
	}
	return current, nil
}
