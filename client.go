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
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/keelhttp/h1client/conn"
	"github.com/keelhttp/h1client/pool"
)

// ClientOption is an option used to customize the behavior of an HTTP
// client.
type ClientOption interface {
	apply(*clientOptions)
}

// WithConnectionCache configures the client to draw connections from
// the given cache instead of the process-wide shared one. The caller
// remains responsible for closing a private cache; [Client.Close] does
// it for convenience when the cache was supplied through this option.
func WithConnectionCache(cache *pool.Cache) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.cache = cache
	})
}

// WithDialer configures the client to use the given function to
// establish network connections. This replaces only the raw transport
// dial; TLS wrapping and proxy handling still apply on top. It can be
// used to reach Unix domain sockets or to inject test transports. If no
// WithDialer option is provided, a default [net.Dialer] with a
// 30-second timeout is used.
func WithDialer(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.dialFunc = dialFunc
	})
}

// WithTLSConfig adds custom TLS configuration. The given config is used
// when communicating with "https" servers. The given timeout is applied
// to the TLS handshake step; if zero, a default of 10 seconds is used.
func WithTLSConfig(config *tls.Config, handshakeTimeout time.Duration) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.tlsConfig = config
		opts.tlsHandshakeTimeout = handshakeTimeout
	})
}

// WithProxy routes all requests through the given proxy. Supported
// schemes are "http" (absolute-form requests for plain HTTP, CONNECT
// tunnels for HTTPS) and "socks5"/"socks5h". If no WithProxy option is
// provided, connections are direct.
func WithProxy(proxyURL *url.URL) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.proxy = proxyURL
	})
}

// WithReadTimeout bounds each wait for a response's status line and the
// reads of its body. If zero, reads never time out. The default is 30
// seconds.
func WithReadTimeout(duration time.Duration) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.readTimeout = duration
		opts.readTimeoutSet = true
	})
}

// WithContinueTimeout bounds the wait for the interim response to an
// "Expect: 100-continue" handshake. Many servers never send the interim
// response; a timeout is therefore treated as permission to proceed,
// not as an error. The default is 1 second.
func WithContinueTimeout(duration time.Duration) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.continueTimeout = duration
	})
}

// WithExpectContinue makes the client send "Expect: 100-continue" on
// requests that carry a body, and wait (up to the continue timeout) for
// the server's verdict before transmitting the body.
func WithExpectContinue() ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.expectContinue = true
	})
}

// WithMaxRedirects sets how many redirect hops the client follows
// before giving up with [ErrTooManyRedirects]. Zero disables redirect
// following entirely: 3xx responses are returned to the caller as-is.
// The default is 5.
func WithMaxRedirects(limit int) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.maxRedirects = limit
		opts.maxRedirectsSet = true
	})
}

// WithDefaultKeepAlive sets whether connections are pooled for reuse
// when the request carries no explicit Connection header. An explicit
// "Connection: close" or "Connection: keep-alive" header on a request
// always wins over this default. The default is true.
func WithDefaultKeepAlive(keepAlive bool) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.defaultKeepAlive = keepAlive
		opts.defaultKeepAliveSet = true
	})
}

// WithLogger attaches a logger for request-level debug events: dials,
// connection reuse, redirect hops, handshake interruptions. The default
// discards everything.
func WithLogger(logger *zap.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}

// WithRequestIDs stamps a generated X-Request-Id header onto each
// outgoing request that does not already carry one.
func WithRequestIDs() ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.requestIDs = true
	})
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) {
	f(opts)
}

type clientOptions struct {
	cache               *pool.Cache
	dialFunc            func(ctx context.Context, network, addr string) (net.Conn, error)
	tlsConfig           *tls.Config
	tlsHandshakeTimeout time.Duration
	proxy               *url.URL
	readTimeout         time.Duration
	readTimeoutSet      bool
	continueTimeout     time.Duration
	expectContinue      bool
	maxRedirects        int
	maxRedirectsSet     bool
	defaultKeepAlive    bool
	defaultKeepAliveSet bool
	logger              *zap.Logger
	requestIDs          bool
}

const (
	defaultDialTimeout     = 30 * time.Second
	defaultReadTimeout     = 30 * time.Second
	defaultContinueTimeout = 1 * time.Second
	defaultMaxRedirects    = 5
)

func (opts *clientOptions) applyDefaults() {
	if !opts.readTimeoutSet {
		opts.readTimeout = defaultReadTimeout
	}
	if opts.continueTimeout == 0 {
		opts.continueTimeout = defaultContinueTimeout
	}
	if !opts.maxRedirectsSet {
		opts.maxRedirects = defaultMaxRedirects
	}
	if !opts.defaultKeepAliveSet {
		opts.defaultKeepAlive = true
	}
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}
}

// Client is a synchronous HTTP/1.1 client. It is safe for concurrent
// use; each in-flight request exclusively owns one connection for its
// full duration.
type Client struct {
	cache            *pool.Cache
	sharedCache      bool
	dialer           *conn.Dialer
	proxy            string
	serverName       string
	readTimeout      time.Duration
	continueTimeout  time.Duration
	expectContinue   bool
	maxRedirects     int
	defaultKeepAlive bool
	requestIDs       bool
	logger           *zap.Logger
}

// NewClient returns a new client configured with the given options.
// Unless [WithConnectionCache] is used, the client shares the
// process-wide connection cache with every other client that did not
// bring its own.
func NewClient(options ...ClientOption) *Client {
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()
	cache := opts.cache
	shared := false
	if cache == nil {
		cache = pool.Default()
		shared = true
	}
	var proxy string
	if opts.proxy != nil {
		proxy = opts.proxy.String()
	}
	var serverName string
	if opts.tlsConfig != nil {
		serverName = opts.tlsConfig.ServerName
	}
	return &Client{
		cache:       cache,
		sharedCache: shared,
		dialer: &conn.Dialer{
			Timeout:             defaultDialTimeout,
			TLSConfig:           opts.tlsConfig,
			TLSHandshakeTimeout: opts.tlsHandshakeTimeout,
			DialFunc:            opts.dialFunc,
		},
		proxy:            proxy,
		serverName:       serverName,
		readTimeout:      opts.readTimeout,
		continueTimeout:  opts.continueTimeout,
		expectContinue:   opts.expectContinue,
		maxRedirects:     opts.maxRedirects,
		defaultKeepAlive: opts.defaultKeepAlive,
		requestIDs:       opts.requestIDs,
		logger:           opts.logger,
	}
}

// Close releases the client's resources. A private connection cache
// supplied via [WithConnectionCache] is closed; the process-wide shared
// cache is left alone, since other clients may be using it.
func (c *Client) Close() error {
	if c.sharedCache {
		return nil
	}
	return c.cache.Close()
}

func (c *Client) connKey(u *url.URL) (conn.Key, error) {
	return conn.KeyForURL(u.Scheme, u.Host, c.serverName, c.proxy)
}
