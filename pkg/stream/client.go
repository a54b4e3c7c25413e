// Package stream subscribes to a labeler's label event stream over a
// websocket and delivers decoded frames through a channel. Decode
// problems in individual frames are soft and reported in-band; only
// transport failures and explicit error frames end a subscription.
package stream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/labelview/pkg/errors"
)

// SubscribePath is the XRPC endpoint path for the label event stream.
const SubscribePath = "/xrpc/com.atproto.label.subscribeLabels"

const (
	defaultIdleTimeout = 30 * time.Second
	defaultBuffer      = 16
	handshakeTimeout   = 15 * time.Second
)

// Client dials label event streams.
type Client struct {
	dialer      *websocket.Dialer
	header      http.Header
	idleTimeout time.Duration
	buffer      int
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer, mainly for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithIdleTimeout bounds how long a read may wait for the next frame.
// When it elapses the subscription ends cleanly with the data received
// so far. Zero disables the bound.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.idleTimeout = d
	}
}

// WithUserAgent sets the User-Agent header sent during the handshake.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.header.Set("User-Agent", ua)
	}
}

// WithBuffer sets the frame channel capacity.
func WithBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// New creates a stream client.
func New(opts ...Option) *Client {
	c := &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		header:      http.Header{},
		idleTimeout: defaultIdleTimeout,
		buffer:      defaultBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe opens the label stream at the given service endpoint. A
// cursor >= 0 asks the remote side to replay from after that sequence;
// a negative cursor requests the live tail only.
//
// Frames arrive on Subscription.Frames until the stream ends. Canceling
// ctx closes the transport and ends the subscription cleanly.
func (c *Client) Subscribe(ctx context.Context, endpoint string, cursor int64) (*Subscription, error) {
	target, err := streamURL(endpoint, cursor)
	if err != nil {
		return nil, err
	}

	conn, _, err := c.dialer.DialContext(ctx, target, c.header) //nolint:bodyclose // gorilla manages the response body
	if err != nil {
		return nil, errors.NewTransportError(target, "websocket dial failed", err)
	}

	return newSubscription(ctx, conn, c.idleTimeout, c.buffer), nil
}

// streamURL converts a service endpoint to the websocket subscribe URL.
func streamURL(endpoint string, cursor int64) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.NewTransportError(endpoint, "invalid service endpoint", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", errors.NewTransportError(endpoint, "unsupported endpoint scheme "+strconv.Quote(u.Scheme), nil)
	}
	u.Path = SubscribePath
	u.RawQuery = ""
	if cursor >= 0 {
		q := url.Values{}
		q.Set("cursor", strconv.FormatInt(cursor, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
