package notifyws

import (
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

type (
	Option func(*Transport)

	stopper interface {
		Stop() bool
	}

	afterFunc func(d time.Duration, f func()) stopper
)

// WithLogger replaces the default logrus logger.
func WithLogger(l logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithConnectionFactory replaces the websocket dialer, mostly for tests.
func WithConnectionFactory(f ConnectionFactory) Option {
	return func(t *Transport) {
		t.factory = f
	}
}

// WithHeader adds HTTP headers to every handshake of the default websocket dialer.
func WithHeader(h http.Header) Option {
	return func(t *Transport) {
		t.header = h
	}
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

// WithKeepAliveMessage replaces the ping message sent on every heartbeat tick.
func WithKeepAliveMessage(f KeepAliveMessageFactory) Option {
	return func(t *Transport) {
		t.keepAlive = f
	}
}

func withAfterFunc(f afterFunc) Option {
	return func(t *Transport) {
		t.afterFunc = f
	}
}

func withHeartbeatAfterFunc(f afterFunc) Option {
	return func(t *Transport) {
		t.beatFunc = f
	}
}

func timeAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
