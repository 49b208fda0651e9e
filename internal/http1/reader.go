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

// Package http1 implements the HTTP/1.1 wire format used by the client:
// request prologue and header serialization, chunked transfer encoding
// in both directions, and response status line and header parsing.
package http1

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/keelhttp/h1client/header"
)

// maxLineBytes bounds a single status or header line. Responses with
// longer lines are rejected rather than buffered without limit.
const maxLineBytes = 8 << 10

var (
	// ErrMalformedStatus indicates an unparseable response status line.
	ErrMalformedStatus = errors.New("malformed response status line")
	// ErrMalformedHeader indicates an unparseable response header line.
	ErrMalformedHeader = errors.New("malformed response header")
	// ErrLineTooLong indicates a status or header line beyond maxLineBytes.
	ErrLineTooLong = errors.New("response line too long")
	// ErrChunkFormat indicates invalid chunked transfer encoding.
	ErrChunkFormat = errors.New("invalid chunk format")
)

// ReadStatusLine parses an HTTP/1.x response status line, e.g.
// "HTTP/1.1 200 OK". The reason phrase may be empty.
func ReadStatusLine(br *bufio.Reader) (proto string, code int, reason string, err error) {
	line, err := readLine(br)
	if err != nil {
		return "", 0, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("%w: %q", ErrMalformedStatus, line)
	}
	proto = parts[0]
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return "", 0, "", fmt.Errorf("%w: unexpected protocol %q", ErrMalformedStatus, proto)
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return "", 0, "", fmt.Errorf("%w: bad status code %q", ErrMalformedStatus, parts[1])
	}
	if len(parts) == 3 {
		reason = parts[2]
	}
	return proto, code, reason, nil
}

// ReadHeaders parses response header fields up to and including the
// blank line that terminates the header block.
func ReadHeaders(br *bufio.Reader) (*header.Headers, error) {
	headers := header.New()
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return headers, nil
		}
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		headers.Add(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	}
}

// NewChunkedReader returns a reader decoding a chunked response body.
// Close drains the remaining chunks, including the terminal chunk and
// any trailers, so the underlying connection can be reused.
func NewChunkedReader(br *bufio.Reader) io.ReadCloser {
	return &chunkedReader{br: br, remain: -1}
}

type chunkedReader struct {
	br       *bufio.Reader
	remain   int64 // bytes left in the current chunk; -1 before the first chunk
	finished bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.finished {
		return 0, io.EOF
	}
	if c.remain <= 0 {
		size, err := c.readChunkSize()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := c.discardTrailers(); err != nil {
				return 0, err
			}
			c.finished = true
			return 0, io.EOF
		}
		c.remain = size
	}
	if len(p) == 0 {
		return 0, nil
	}
	toRead := int64(len(p))
	if toRead > c.remain {
		toRead = c.remain
	}
	n, err := io.ReadFull(c.br, p[:toRead])
	c.remain -= int64(n)
	if err != nil {
		return n, err
	}
	if c.remain == 0 {
		if err := c.expectCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *chunkedReader) Close() error {
	buf := make([]byte, 1024)
	for !c.finished {
		if _, err := c.Read(buf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
	}
	return nil
}

func (c *chunkedReader) readChunkSize() (int64, error) {
	line, err := readLine(c.br)
	if err != nil {
		return 0, err
	}
	// Strip chunk extensions: "<hex>;<ext>".
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrChunkFormat
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad size %q", ErrChunkFormat, line)
	}
	return n, nil
}

func (c *chunkedReader) expectCRLF() error {
	b1, err := c.br.ReadByte()
	if err != nil {
		return err
	}
	b2, err := c.br.ReadByte()
	if err != nil {
		return err
	}
	if b1 != '\r' || b2 != '\n' {
		return fmt.Errorf("%w: missing CRLF after chunk data", ErrChunkFormat)
	}
	return nil
}

func (c *chunkedReader) discardTrailers() error {
	for {
		line, err := readLine(c.br)
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
}

// NewFixedReader returns a reader for a Content-Length framed body.
// Close drains any unread remainder so the connection can be reused.
func NewFixedReader(br *bufio.Reader, length int64) io.ReadCloser {
	return &fixedReader{lr: io.LimitedReader{R: br, N: length}}
}

type fixedReader struct {
	lr io.LimitedReader
}

func (f *fixedReader) Read(p []byte) (int, error) {
	return f.lr.Read(p)
}

func (f *fixedReader) Close() error {
	if f.lr.N <= 0 {
		return nil
	}
	_, err := io.Copy(io.Discard, &f.lr)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return sb.String(), nil
		}
		if b != '\r' {
			sb.WriteByte(b)
		}
		if sb.Len() > maxLineBytes {
			return "", ErrLineTooLong
		}
	}
}
