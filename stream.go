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
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/keelhttp/h1client/conn"
	"github.com/keelhttp/h1client/header"
	"github.com/keelhttp/h1client/internal/http1"
)

// streamState is the body writer's framing state. Modeled as an
// explicit progression rather than a cluster of booleans; transitions
// only move forward.
type streamState int

const (
	// streamUnsent: nothing decided, nothing on the wire.
	streamUnsent streamState = iota
	// streamBuffered: one packet held back, tentatively fixed-length.
	streamBuffered
	// streamChunked: chunked framing committed, prologue on the wire.
	streamChunked
	// streamClosed: terminal, body fully framed.
	streamClosed
	// streamInterrupted: terminal, the server answered before the body;
	// the writer is an inert sink from here on.
	streamInterrupted
)

// DoStream sends the request with a body produced incrementally by the
// handler. The handler receives a writer and must close it before
// returning; [ErrStreamNotClosed] is returned otherwise.
//
// Framing is decided as data arrives. If the request declares a
// Content-Length and the whole body fits in a single Write, the body is
// sent with fixed-length framing; a second Write commits to chunked
// transfer encoding instead (the declared Content-Length is dropped).
// Without a declared length the body is chunked from the first byte.
// The request line and headers are written lazily with the first byte,
// so they always reflect the final framing decision.
//
// When the server answers before the body is finished — typically
// rejecting an Expect: 100-continue handshake — the writer silently
// turns into a no-op sink: subsequent writes are discarded, and the
// server's answer (after transparently following any redirects, if
// enabled) becomes the returned response. A handler that wants to stop
// early may return [ErrStreamAbort], which is not treated as a failure.
//
// Any req.Body is ignored; the handler is the body's only source.
func (c *Client) DoStream(
	ctx context.Context,
	req *Request,
	handler func(body io.WriteCloser) error,
) (*Response, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	key, err := c.connKey(req.URL)
	if err != nil {
		return nil, err
	}
	wire := c.wireHeaders(req, req.URL)
	wire.Del("Transfer-Encoding")
	cn, err := c.cache.Connection(ctx, c.dialer, key, wire, c.defaultKeepAlive)
	if err != nil {
		return nil, err
	}
	declared := int64(-1)
	if length, ok := wire.ContentLength(); ok {
		declared = length
	}
	writer := &bodyWriter{
		ctx:      ctx,
		client:   c,
		req:      req,
		reqURL:   req.URL,
		cn:       cn,
		wire:     wire,
		target:   http1.RequestTarget(req.URL, cn.AbsoluteForm()),
		declared: declared,
	}

	handlerErr := handler(writer)
	if handlerErr != nil && !errors.Is(handlerErr, ErrStreamAbort) {
		writer.abandon()
		return nil, handlerErr
	}
	if writer.err != nil {
		return nil, writer.err
	}
	if !writer.closeCalled {
		writer.abandon()
		return nil, ErrStreamNotClosed
	}
	if writer.resp != nil {
		return writer.resp, nil
	}
	resp, err := c.readResponse(cn, req.Method, false)
	if err != nil {
		return nil, err
	}
	if c.maxRedirects > 0 && IsRedirect(resp.StatusCode) {
		entity, replayable := writer.replayEntity()
		return c.followRedirects(ctx, req, req.URL, resp, 0, entity, replayable)
	}
	return resp, nil
}

// bodyWriter is the streamed request body. It owns the framing state
// machine and, through the 100-continue handshake, may end up owning a
// substitute response.
type bodyWriter struct {
	ctx    context.Context //nolint:containedctx // carried for redirect hops issued mid-stream
	client *Client
	req    *Request
	reqURL *url.URL
	cn     *conn.Conn
	wire   *header.Headers
	target string

	state       streamState
	declared    int64 // declared Content-Length; -1 if unknown
	packet      []byte
	prologueOut bool
	sentFixed   bool
	closeCalled bool

	// Terminal results of an interrupted handshake.
	resp *Response
	err  error
}

var _ io.WriteCloser = (*bodyWriter)(nil)

func (w *bodyWriter) Write(p []byte) (int, error) {
	switch w.state {
	case streamInterrupted:
		// Inert sink: the server already answered.
		return len(p), nil
	case streamClosed:
		return 0, ErrStreamClosed
	case streamUnsent:
		if len(p) == 0 {
			return 0, nil
		}
		if w.declared >= 0 {
			if int64(len(p)) > w.declared {
				return 0, fmt.Errorf("%w (declared %d, writing %d)",
					ErrBodyTooLong, w.declared, len(p))
			}
			// Hold the packet back: if this turns out to be the whole
			// body, it goes out with fixed-length framing on Close.
			w.packet = append(w.packet, p...)
			w.state = streamBuffered
			return len(p), nil
		}
		if err := w.commitChunked(); err != nil {
			return 0, err
		}
		if w.state == streamInterrupted {
			return len(p), nil
		}
		return w.writeChunk(p)
	case streamBuffered:
		// A second write means the body boundary cannot be known
		// without buffering everything; switch to chunked framing.
		if len(p) == 0 {
			return 0, nil
		}
		if err := w.commitChunked(); err != nil {
			return 0, err
		}
		if w.state == streamInterrupted {
			return len(p), nil
		}
		return w.writeChunk(p)
	case streamChunked:
		return w.writeChunk(p)
	}
	return 0, ErrStreamClosed
}

// Close finishes the request body framing. Closing twice is a no-op.
func (w *bodyWriter) Close() error {
	if w.closeCalled {
		return nil
	}
	w.closeCalled = true
	switch w.state {
	case streamInterrupted:
		return nil
	case streamUnsent:
		// Nothing was written: an empty fixed-length body.
		w.wire.Set("Content-Length", "0")
		if err := w.sendPrologue(false, true); err != nil {
			return err
		}
		if w.state == streamInterrupted {
			return nil
		}
		w.state = streamClosed
		w.sentFixed = true
		return nil
	case streamBuffered:
		if int64(len(w.packet)) > w.declared {
			return fmt.Errorf("%w (declared %d, wrote %d)",
				ErrBodyTooLong, w.declared, len(w.packet))
		}
		w.wire.Set("Content-Length", strconv.Itoa(len(w.packet)))
		if err := w.sendPrologue(true, true); err != nil {
			return err
		}
		if w.state == streamInterrupted {
			return nil
		}
		if _, err := w.cn.Writer().Write(w.packet); err != nil {
			_ = w.cn.Close()
			return fmt.Errorf("write request body: %w", err)
		}
		if err := w.cn.Flush(); err != nil {
			_ = w.cn.Close()
			return fmt.Errorf("write request body: %w", err)
		}
		w.state = streamClosed
		w.sentFixed = true
		return nil
	case streamChunked:
		if err := http1.WriteChunkEnd(w.cn.Writer()); err != nil {
			_ = w.cn.Close()
			return fmt.Errorf("write terminal chunk: %w", err)
		}
		if err := w.cn.Flush(); err != nil {
			_ = w.cn.Close()
			return fmt.Errorf("write terminal chunk: %w", err)
		}
		w.state = streamClosed
		return nil
	}
	return nil
}

// commitChunked switches framing to chunked transfer encoding, sending
// the prologue and flushing any tentatively buffered packet as the
// first chunk.
func (w *bodyWriter) commitChunked() error {
	w.wire.Del("Content-Length")
	w.wire.Set("Transfer-Encoding", "chunked")
	if err := w.sendPrologue(true, false); err != nil {
		return err
	}
	if w.state == streamInterrupted {
		return nil
	}
	w.state = streamChunked
	if len(w.packet) > 0 {
		packet := w.packet
		w.packet = nil
		if _, err := w.writeChunk(packet); err != nil {
			return err
		}
	}
	return nil
}

// sendPrologue writes the request line and headers once, engaging the
// 100-continue handshake when configured and a body will follow. An
// interrupting response (anything but 100) moves the writer to its
// terminal interrupted state; redirect interruptions are followed
// transparently when enabled. entityComplete records whether the
// buffered packet (possibly empty) is the whole entity, which decides
// whether a 307/308 hop can replay it.
func (w *bodyWriter) sendPrologue(bodyFollows, entityComplete bool) error {
	if w.prologueOut {
		return nil
	}
	w.prologueOut = true
	expect := w.client.expectContinue && bodyFollows
	if expect {
		w.wire.Set("Expect", "100-continue")
	}
	if err := http1.WriteRequestPrologue(w.cn.Writer(), w.req.Method, w.target, w.wire); err != nil {
		_ = w.cn.Close()
		return fmt.Errorf("write request: %w", err)
	}
	if err := w.cn.Flush(); err != nil {
		_ = w.cn.Close()
		return fmt.Errorf("write request: %w", err)
	}
	if !expect {
		return nil
	}
	proceed, early, err := w.client.continueProbe(w.cn, w.req.Method)
	if err != nil {
		return err
	}
	if proceed {
		return nil
	}
	w.interrupt(early, entityComplete)
	return nil
}

// interrupt records the server's early answer and turns the writer into
// a no-op sink. When the answer is a redirect and redirects are
// enabled, the chain is followed here so the caller receives the final
// response; the interruption itself counts as one consumed attempt.
func (w *bodyWriter) interrupt(early *Response, entityComplete bool) {
	w.state = streamInterrupted
	w.client.logger.Debug("request stream interrupted",
		zap.Int("status", early.StatusCode),
		zap.String("method", w.req.Method))
	if w.client.maxRedirects > 0 && IsRedirect(early.StatusCode) {
		final, err := w.client.followRedirects(w.ctx, w.req, w.reqURL, early, 1, w.packet, entityComplete)
		if err != nil {
			w.err = err
			return
		}
		w.resp = final
		return
	}
	w.resp = early
}

// writeChunk frames p as a single chunk and flushes it to the wire.
func (w *bodyWriter) writeChunk(p []byte) (int, error) {
	n, err := http1.WriteChunk(w.cn.Writer(), p)
	if err != nil {
		_ = w.cn.Close()
		return n, fmt.Errorf("write request body chunk: %w", err)
	}
	if err := w.cn.Flush(); err != nil {
		_ = w.cn.Close()
		return n, fmt.Errorf("write request body chunk: %w", err)
	}
	return n, nil
}

// abandon force-closes whatever the writer still owns after a handler
// failure or contract violation.
func (w *bodyWriter) abandon() {
	if w.resp != nil {
		_ = w.resp.Close()
		w.resp = nil
		return
	}
	_ = w.cn.Close()
}

// replayEntity returns the body bytes a 307/308 redirect may re-send.
// Only a body that went out with fixed-length framing is replayable; a
// chunk-streamed body is gone once written.
func (w *bodyWriter) replayEntity() ([]byte, bool) {
	if w.sentFixed {
		return w.packet, true
	}
	return nil, false
}
