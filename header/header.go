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

// Package header provides an ordered, mutable collection of HTTP header
// fields. Unlike a plain map, it preserves the insertion order of fields
// when a request is serialized to the wire, which some servers and
// intermediaries care about. Keys are matched case-insensitively and
// stored in canonical form (e.g. "content-length" becomes
// "Content-Length").
package header

import (
	"strconv"
	"strings"
)

type field struct {
	key   string // canonical form
	value string
}

// Headers is an ordered collection of HTTP header fields. The zero
// value is not usable; call New.
type Headers struct {
	fields []field
}

// New returns an empty header collection.
func New() *Headers {
	return &Headers{}
}

// Len returns the number of fields, counting repeated keys once per
// occurrence.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Set replaces all fields with the given key by a single field with the
// given value. The replacement keeps the position of the first existing
// occurrence; a new key is appended at the end.
func (h *Headers) Set(key, value string) {
	canon := Canonical(key)
	out := h.fields[:0]
	replaced := false
	for _, f := range h.fields {
		if f.key != canon {
			out = append(out, f)
			continue
		}
		if !replaced {
			out = append(out, field{key: canon, value: value})
			replaced = true
		}
	}
	h.fields = out
	if !replaced {
		h.fields = append(h.fields, field{key: canon, value: value})
	}
}

// Add appends a field with the given key and value, keeping any existing
// fields with the same key.
func (h *Headers) Add(key, value string) {
	h.fields = append(h.fields, field{key: Canonical(key), value: value})
}

// Prepend inserts a field at the front of the collection. Used for
// fields that conventionally lead the header block, like Host.
func (h *Headers) Prepend(key, value string) {
	h.fields = append([]field{{key: Canonical(key), value: value}}, h.fields...)
}

// Get returns the first value for the given key and whether the key is
// present at all.
func (h *Headers) Get(key string) (string, bool) {
	canon := Canonical(key)
	for _, f := range h.fields {
		if f.key == canon {
			return f.value, true
		}
	}
	return "", false
}

// Values returns all values for the given key in insertion order.
func (h *Headers) Values(key string) []string {
	canon := Canonical(key)
	var out []string
	for _, f := range h.fields {
		if f.key == canon {
			out = append(out, f.value)
		}
	}
	return out
}

// Has reports whether at least one field with the given key is present.
func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Del removes all fields with the given key.
func (h *Headers) Del(key string) {
	canon := Canonical(key)
	out := h.fields[:0]
	for _, f := range h.fields {
		if f.key != canon {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Clone returns a deep copy.
func (h *Headers) Clone() *Headers {
	clone := &Headers{fields: make([]field, len(h.fields))}
	copy(clone.fields, h.fields)
	return clone
}

// Each calls fn for every field in insertion order. Iteration stops
// early if fn returns false.
func (h *Headers) Each(fn func(key, value string) bool) {
	for _, f := range h.fields {
		if !fn(f.key, f.value) {
			return
		}
	}
}

// ContentLength parses the Content-Length field. It returns false if the
// field is absent or not a valid non-negative integer.
func (h *Headers) ContentLength() (int64, bool) {
	v, ok := h.Get("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// HasToken reports whether any value of the given key contains the given
// token in its comma-separated token list, matched case-insensitively.
// This is the lookup used for Connection options such as "close" and
// "keep-alive".
func (h *Headers) HasToken(key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Canonical converts a header key to its canonical form: the first
// letter and any letter following a hyphen is upper-cased, the rest
// lower-cased. Keys containing invalid token characters are returned
// unchanged.
func Canonical(key string) string {
	for i := 0; i < len(key); i++ {
		if !isTokenChar(key[i]) {
			return key
		}
	}
	b := []byte(strings.ToLower(key))
	upper := true
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			if upper {
				b[i] = c - 'a' + 'A'
			}
			upper = false
		} else {
			upper = c == '-'
		}
	}
	return string(b)
}

func isTokenChar(c byte) bool {
	if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
