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
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/keelhttp/h1client/internal/http1"
)

// Dialer establishes connections for a Key. It handles TCP dialing,
// TLS wrapping, HTTP proxies (absolute-form requests for plain HTTP,
// CONNECT tunnels for HTTPS), and SOCKS5 proxies. A custom DialFunc can
// substitute the transport entirely, e.g. to reach a Unix domain socket.
type Dialer struct {
	// Timeout bounds the TCP dial. Zero means no timeout.
	Timeout time.Duration
	// TLSConfig is the base TLS configuration for "https" keys. It is
	// cloned before use; SNI and ALPN are filled in when absent.
	TLSConfig *tls.Config
	// TLSHandshakeTimeout bounds the TLS handshake. Zero means a
	// 10-second default.
	TLSHandshakeTimeout time.Duration
	// DialFunc, if non-nil, replaces the default TCP dial.
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

const defaultTLSHandshakeTimeout = 10 * time.Second

// DialContext establishes a connection for the given key.
func (d *Dialer) DialContext(ctx context.Context, key Key) (*Conn, error) {
	if key.Proxy == "" {
		return d.dialDirect(ctx, key)
	}
	proxyURL, err := url.Parse(key.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", key.Proxy, err)
	}
	switch proxyURL.Scheme {
	case "http":
		return d.dialHTTPProxy(ctx, key, proxyURL)
	case "socks5", "socks5h":
		return d.dialSOCKS(ctx, key, proxyURL)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}
}

func (d *Dialer) dialDirect(ctx context.Context, key Key) (*Conn, error) {
	netConn, err := d.dial(ctx, "tcp", key.Address())
	if err != nil {
		return nil, err
	}
	if key.Scheme == "https" {
		netConn, err = d.wrapTLS(ctx, netConn, key)
		if err != nil {
			return nil, err
		}
	}
	return Wrap(key, netConn), nil
}

func (d *Dialer) dialHTTPProxy(ctx context.Context, key Key, proxyURL *url.URL) (*Conn, error) {
	netConn, err := d.dial(ctx, "tcp", proxyAddress(proxyURL))
	if err != nil {
		return nil, err
	}
	if key.Scheme == "http" {
		// Plain HTTP rides the proxy connection directly; requests must
		// use the absolute request target.
		c := Wrap(key, netConn)
		c.absoluteForm = true
		return c, nil
	}
	if err := connectHandshake(netConn, key.Address(), proxyURL); err != nil {
		_ = netConn.Close()
		return nil, err
	}
	netConn, err = d.wrapTLS(ctx, netConn, key)
	if err != nil {
		return nil, err
	}
	return Wrap(key, netConn), nil
}

func (d *Dialer) dialSOCKS(ctx context.Context, key Key, proxyURL *url.URL) (*Conn, error) {
	socksDialer, err := proxy.FromURL(proxyURL, forwardDialer{ctx: ctx, dialer: d})
	if err != nil {
		return nil, fmt.Errorf("SOCKS proxy %q: %w", key.Proxy, err)
	}
	var netConn net.Conn
	if contextDialer, ok := socksDialer.(proxy.ContextDialer); ok {
		netConn, err = contextDialer.DialContext(ctx, "tcp", key.Address())
	} else {
		netConn, err = socksDialer.Dial("tcp", key.Address())
	}
	if err != nil {
		return nil, err
	}
	if key.Scheme == "https" {
		netConn, err = d.wrapTLS(ctx, netConn, key)
		if err != nil {
			return nil, err
		}
	}
	return Wrap(key, netConn), nil
}

func (d *Dialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.DialFunc != nil {
		return d.DialFunc(ctx, network, addr)
	}
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, network, addr)
}

func (d *Dialer) wrapTLS(ctx context.Context, netConn net.Conn, key Key) (net.Conn, error) {
	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = key.ServerName
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{"http/1.1"}
	}
	handshakeTimeout := d.TLSHandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultTLSHandshakeTimeout
	}
	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	tlsConn := tls.Client(netConn, cfg)
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		_ = netConn.Close()
		return nil, fmt.Errorf("TLS handshake with %s: %w", key.Address(), err)
	}
	return tlsConn, nil
}

// connectHandshake performs the CONNECT exchange that turns a proxy
// connection into a tunnel to the target.
func connectHandshake(netConn net.Conn, target string, proxyURL *url.URL) error {
	request := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if auth := proxyAuth(proxyURL); auth != "" {
		request += "Proxy-Authorization: " + auth + "\r\n"
	}
	request += "\r\n"
	if _, err := netConn.Write([]byte(request)); err != nil {
		return fmt.Errorf("proxy CONNECT write: %w", err)
	}
	// The tunnel carries nothing before our next write, so reading the
	// CONNECT response through a throwaway buffered reader is safe.
	reader := bufio.NewReader(netConn)
	_, code, reason, err := http1.ReadStatusLine(reader)
	if err != nil {
		return fmt.Errorf("proxy CONNECT response: %w", err)
	}
	if _, err := http1.ReadHeaders(reader); err != nil {
		return fmt.Errorf("proxy CONNECT response: %w", err)
	}
	if code != 200 {
		return fmt.Errorf("proxy CONNECT to %s refused: %d %s", target, code, reason)
	}
	return nil
}

func proxyAddress(proxyURL *url.URL) string {
	host := proxyURL.Host
	if proxyURL.Port() == "" {
		host = net.JoinHostPort(proxyURL.Hostname(), "3128")
	}
	return host
}

func proxyAuth(proxyURL *url.URL) string {
	if proxyURL.User == nil {
		return ""
	}
	password, _ := proxyURL.User.Password()
	token := proxyURL.User.Username() + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}

// forwardDialer adapts Dialer to the golang.org/x/net/proxy interfaces.
type forwardDialer struct {
	ctx    context.Context //nolint:containedctx // bridges the non-context proxy.Dialer API
	dialer *Dialer
}

func (f forwardDialer) Dial(network, addr string) (net.Conn, error) {
	return f.dialer.dial(f.ctx, network, addr)
}

func (f forwardDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f.dialer.dial(ctx, network, addr)
}
