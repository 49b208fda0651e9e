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

package http1

import (
	"bufio"
	"fmt"
	"net/url"
	"strings"

	"github.com/keelhttp/h1client/header"
)

// WriteRequestPrologue writes the request line and all header fields,
// terminated by the blank line, in the order the collection holds them.
// Header values are sanitized against CR/LF injection; fields with
// invalid key tokens are skipped.
func WriteRequestPrologue(bw *bufio.Writer, method, target string, headers *header.Headers) error {
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", method, target); err != nil {
		return err
	}
	var werr error
	headers.Each(func(key, value string) bool {
		if !validKey(key) {
			return true
		}
		_, werr = fmt.Fprintf(bw, "%s: %s\r\n", key, sanitizeValue(value))
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	_, err := bw.WriteString("\r\n")
	return err
}

// WriteChunk writes one chunk of a chunked-encoded body. Zero-length
// input writes nothing, since a zero-size chunk terminates the body.
func WriteChunk(bw *bufio.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteChunkEnd writes the terminating zero-length chunk.
func WriteChunkEnd(bw *bufio.Writer) error {
	_, err := bw.WriteString("0\r\n\r\n")
	return err
}

// RequestTarget renders the request target for the request line. In
// origin form this is path plus query; in absolute form (plain HTTP via
// a proxy) the full URL minus any fragment and userinfo.
func RequestTarget(u *url.URL, absolute bool) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var sb strings.Builder
	if absolute {
		sb.WriteString(u.Scheme)
		sb.WriteString("://")
		sb.WriteString(u.Host)
	}
	sb.WriteString(path)
	if u.RawQuery != "" {
		sb.WriteString("?")
		sb.WriteString(u.RawQuery)
	}
	return sb.String()
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			continue
		}
		switch c {
		case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
			continue
		default:
			return false
		}
	}
	return true
}

// sanitizeValue removes CR/LF and control characters except HTAB.
func sanitizeValue(v string) string {
	clean := true
	for i := 0; i < len(v); i++ {
		if c := v[i]; c == 0x7f || c < 0x20 && c != '\t' {
			clean = false
			break
		}
	}
	if clean {
		return v
	}
	var sb strings.Builder
	sb.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == 0x7f || c < 0x20 && c != '\t' {
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
