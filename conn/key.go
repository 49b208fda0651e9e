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

package conn

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Key identifies the destination a connection is usable for. Two
// requests may share a pooled connection only if their keys are equal.
// A Key is immutable after creation and usable as a map key.
type Key struct {
	// Scheme is "http" or "https".
	Scheme string
	// Host is the destination host, without port.
	Host string
	// Port is the destination port.
	Port int
	// ServerName is the TLS identity the connection was verified
	// against. Empty for plaintext connections.
	ServerName string
	// Proxy is the proxy URL in string form, or empty for a direct
	// connection.
	Proxy string
}

// Address returns the "host:port" dial address for the key.
func (k Key) Address() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

func (k Key) String() string {
	s := k.Scheme + "://" + k.Address()
	if k.Proxy != "" {
		s += " via " + k.Proxy
	}
	return s
}

// KeyForURL builds a key for the given scheme and host[:port],
// defaulting the port from the scheme when absent.
func KeyForURL(scheme, host, serverName, proxy string) (Key, error) {
	h, portStr, err := net.SplitHostPort(host)
	if err != nil {
		// No port. An IPv6 literal still carries its brackets here;
		// strip them so Address() can re-add exactly one pair.
		h = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		portStr = ""
	}
	port := 0
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Key{}, fmt.Errorf("invalid port in host %q", host)
		}
	} else {
		switch scheme {
		case "http":
			port = 80
		case "https":
			port = 443
		default:
			return Key{}, fmt.Errorf("unsupported scheme %q", scheme)
		}
	}
	if scheme != "http" && scheme != "https" {
		return Key{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
	if scheme == "https" && serverName == "" {
		serverName = h
	}
	return Key{Scheme: scheme, Host: h, Port: port, ServerName: serverName, Proxy: proxy}, nil
}
