package notifyws

import (
	"context"
	"net/http"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

// Transport keeps one realtime channel to the notification endpoint alive. It authenticates each
// attempt with a fresh credential, decodes inbound frames into events, sends a heartbeat while
// open and reconnects with exponential backoff after transient failures.
//
// Build exactly one Transport per process and hand it to whoever needs notifications.
//
// All state transitions run to completion under a single mutex. Listeners are called without
// holding it, from the goroutine that observed the event, so they may call back into the Transport.
// No method reports transport failures to the caller: they surface as state changes and
// connection_status events.
type Transport struct {
	cfg       Config
	backoff   BackoffPolicy
	creds     CredentialProvider
	factory   ConnectionFactory
	dialer    *websocket.Dialer
	header    http.Header
	keepAlive KeepAliveMessageFactory
	afterFunc afterFunc
	beatFunc  afterFunc
	logger    logger
	events    *EventEmitterCallback[EventName, any]

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      ConnectionState
	attempts   int
	gen        uint64 // bumped by every attempt and every disconnect; stale callbacks compare against it
	conn       Connection
	cancelDial context.CancelFunc
	heartbeat  *heartbeat
	retry      stopper
	unread     int
	disposed   bool
}

var _ Client = (*Transport)(nil)

func New(cfg Config, creds CredentialProvider, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil credential provider")
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		cfg:       cfg,
		backoff:   cfg.Backoff(),
		creds:     creds,
		keepAlive: PingKeepAlive,
		afterFunc: timeAfterFunc,
		beatFunc:  timeAfterFunc,
		logger:    defaultLogger(),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.logger = t.logger.WithField("component", "notification_transport")
	t.events = NewEventEmitter[EventName, any](t.logger)

	if t.factory == nil {
		dialer := t.dialer
		if dialer == nil {
			dialer = &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: cfg.HandshakeTimeout,
			}
		}
		t.factory = NewWebsocketFactory(t.logger, dialer, t.header, cfg.WriteTimeout, ErrorAdapters{})
	}

	return t, nil
}

// Connect starts a fresh connection sequence: the attempt counter goes back to zero, even after a
// previous sequence gave up. It is a no-op while connecting, open or closing, and when no user is
// signed in.
func (t *Transport) Connect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		t.logger.Warnln("connect ignored, transport has been disposed")
		return
	}
	if t.state != StateDisconnected {
		t.logger.Debugf("connect ignored, transport is %s", t.state)
		return
	}

	t.attempts = 0
	t.stopRetryLocked()
	t.beginAttemptLocked()
}

// Disconnect stops the heartbeat, cancels a pending reconnect or dial, closes the link with a
// normal closure and resets the attempt counter.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	wasOpen := t.state == StateOpen
	conn := t.conn

	t.gen++
	t.attempts = 0
	t.stopRetryLocked()
	t.stopHeartbeatLocked()
	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	t.conn = nil

	if conn == nil {
		t.state = StateDisconnected
		t.mu.Unlock()
	} else {
		t.state = StateClosing
		t.mu.Unlock()

		conn.Close()

		t.mu.Lock()
		t.state = StateDisconnected
		t.mu.Unlock()
	}

	t.logger.Infoln("notification channel disconnected")

	if wasOpen {
		t.emitStatus(ConnectionStatus{Connected: false})
	}
}

// Dispose disconnects and drops every listener. The transport cannot be reconnected afterwards.
func (t *Transport) Dispose() {
	t.mu.Lock()
	t.disposed = true
	t.mu.Unlock()

	t.Disconnect()
	t.cancel()
	t.events.Close()
}

// Send writes the message if the channel is open. Otherwise it is logged and dropped.
func (t *Transport) Send(m OutboundMessage) {
	t.mu.Lock()
	conn, state := t.conn, t.state
	t.mu.Unlock()

	if state != StateOpen || conn == nil {
		t.logger.Warnf("dropping %q message, transport is %s", m.Type, state)
		return
	}

	bts, err := m.encode()
	if err != nil {
		t.logger.Errorf("cannot send message: %s", err)
		return
	}

	if err := conn.Write(NewTextFrame(bts)); err != nil {
		t.logger.Warnf("cannot send %q message: %s", m.Type, err)
	}
}

func (t *Transport) IsConnected() bool {
	return t.State() == StateOpen
}

func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Attempts returns how many consecutive attempts have failed in the current sequence.
func (t *Transport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.attempts
}

// Exhausted reports whether the transport gave up: it is disconnected and will not reconnect
// until Connect is called again. That happens after a protocol error close, a rejected handshake
// or once every reconnect attempt failed.
func (t *Transport) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state == StateDisconnected && t.backoff.Exhausted(t.attempts)
}

// UnreadCount returns the last unread count reported by the server, plus one for every
// notification received since.
func (t *Transport) UnreadCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.unread
}

// On registers fn for a raw event. The payload is a Notification, an int or a ConnectionStatus
// depending on the event.
func (t *Transport) On(event EventName, fn func(any)) Subscription {
	return t.events.On(event, fn)
}

func (t *Transport) OnNotification(fn func(Notification)) Subscription {
	return t.events.On(EventNotification, func(v any) {
		if n, ok := v.(Notification); ok {
			fn(n)
		}
	})
}

func (t *Transport) OnUnreadCount(fn func(count int)) Subscription {
	return t.events.On(EventUnreadCount, func(v any) {
		if c, ok := v.(int); ok {
			fn(c)
		}
	})
}

func (t *Transport) OnConnectionStatus(fn func(ConnectionStatus)) Subscription {
	return t.events.On(EventConnectionStatus, func(v any) {
		if s, ok := v.(ConnectionStatus); ok {
			fn(s)
		}
	})
}

func (t *Transport) Off(s Subscription) {
	t.events.Off(s)
}

func (t *Transport) beginAttemptLocked() {
	cred, ok := t.creds.Credential(t.ctx)
	if !ok {
		t.logger.Debugln("no signed in user, skipping connection attempt")
		return
	}

	endpoint, err := t.cfg.Endpoint(cred)
	if err != nil {
		t.logger.Errorf("cannot build notification endpoint: %s", err)
		return
	}

	t.gen++
	gen := t.gen

	dialCtx, cancel := context.WithCancel(t.ctx)
	t.cancelDial = cancel
	t.state = StateConnecting

	t.logger.Infof("connecting to %s (attempt %d)", redactEndpoint(endpoint), t.attempts+1)

	go t.dial(dialCtx, gen, t.factory(endpoint))
}

func (t *Transport) dial(ctx context.Context, gen uint64, conn Connection) {
	err := conn.Open(ctx)

	t.mu.Lock()
	if gen != t.gen || t.state != StateConnecting {
		t.mu.Unlock()
		t.logger.Debugln("discarding stale dial result")
		conn.Close()
		return
	}

	t.cancelDial()
	t.cancelDial = nil

	if err != nil {
		t.state = StateDisconnected
		status, emit := t.connectionLostLocked(err, false)
		t.mu.Unlock()

		if emit {
			t.emitStatus(status)
		}
		return
	}

	t.conn = conn
	t.state = StateOpen
	t.attempts = 0
	t.heartbeat = newHeartbeat(t.logger, t.cfg.HeartbeatInterval, t.keepAlive, t.Send, t.beatFunc)
	t.heartbeat.Start()
	t.mu.Unlock()

	t.logger.Infoln("notification channel open")

	t.emitStatus(ConnectionStatus{Connected: true})
	t.Send(newControlMessage(KindGetUnreadCount))

	go t.pump(gen, conn)
}

// pump is the only reader of an open connection, so frames are dispatched in arrival order.
func (t *Transport) pump(gen uint64, conn Connection) {
	for {
		select {
		case f := <-conn.Recv():
			t.handleFrame(gen, conn, f)
		case <-conn.CloseChan():
			t.handleClosed(gen, conn)
			return
		}
	}
}

func (t *Transport) handleFrame(gen uint64, conn Connection, f Frame) {
	switch {
	case f.Type.IsPing():
		replyPingWithPong(conn, f)
		return
	case f.Type.IsPong():
		t.logger.Debugf("<= [PONG] %s", f.Data)
		return
	case !f.Type.IsData():
		return
	}

	if !t.isCurrent(gen) {
		t.logger.Debugf("discarding frame from a superseded connection: %s", f)
		return
	}

	t.dispatch(f.Data)
}

func (t *Transport) handleClosed(gen uint64, conn Connection) {
	t.mu.Lock()
	if gen != t.gen || t.conn != conn {
		// Disconnect already accounted for this connection.
		t.mu.Unlock()
		return
	}

	t.stopHeartbeatLocked()
	t.conn = nil
	t.state = StateDisconnected
	status, emit := t.connectionLostLocked(conn.CloseErr(), true)
	t.mu.Unlock()

	if emit {
		t.emitStatus(status)
	}
}

// connectionLostLocked applies the retry policy for err and returns the status event to emit, if any.
func (t *Transport) connectionLostLocked(err error, wasOpen bool) (ConnectionStatus, bool) {
	switch kind := classifyClose(err); kind {
	case closeClean:
		t.attempts = 0
		t.logger.Infof("connection closed by server: %s", err)
		return ConnectionStatus{}, wasOpen
	case closeTerminal:
		t.attempts = t.backoff.MaxAttempts
		t.logger.Warnf("endpoint rejected the protocol, not reconnecting: %s", err)
		return ConnectionStatus{}, true
	case closeFailed:
		t.attempts = t.backoff.MaxAttempts
		t.logger.Errorf("notification endpoint unavailable, not reconnecting: %s", err)
		return ConnectionStatus{Error: true}, true
	default:
		t.attempts++
		t.logger.Warnf("connection %s (%d/%d): %s", kind, t.attempts, t.backoff.MaxAttempts, err)
		t.scheduleReconnectLocked()
		return ConnectionStatus{}, wasOpen
	}
}

// scheduleReconnectLocked arms the backoff timer unless the attempts are exhausted.
func (t *Transport) scheduleReconnectLocked() {
	if t.disposed {
		return
	}
	if t.backoff.Exhausted(t.attempts) {
		t.logger.Warnf("giving up after %d attempts", t.attempts)
		return
	}

	delay := t.backoff.Delay(t.attempts)
	gen := t.gen

	t.stopRetryLocked()
	t.logger.Infof("reconnecting in %s", delay)
	t.retry = t.afterFunc(delay, func() {
		t.reconnect(gen)
	})
}

func (t *Transport) reconnect(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || t.state != StateDisconnected || t.disposed {
		t.logger.Debugln("ignoring stale reconnect timer")
		return
	}

	t.retry = nil
	t.beginAttemptLocked()
}

func (t *Transport) dispatch(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		t.logger.Warnf("discarding inbound frame: %s", err)
		return
	}

	switch env.Type {
	case EventNotification:
		n, err := decodeNotification(env.Data)
		if err != nil {
			t.logger.Warnf("discarding notification: %s", err)
			return
		}
		t.events.Emit(EventNotification, n)

		t.mu.Lock()
		t.unread++
		count := t.unread
		t.mu.Unlock()
		t.events.Emit(EventUnreadCount, count)
	case EventUnreadCount:
		count, err := decodeUnreadCount(env.Data)
		if err != nil {
			t.logger.Warnf("discarding unread count: %s", err)
			return
		}

		t.mu.Lock()
		t.unread = count
		t.mu.Unlock()
		t.events.Emit(EventUnreadCount, count)
	case EventConnectionStatus:
		status, err := decodeConnectionStatus(env.Data)
		if err != nil {
			t.logger.Warnf("discarding connection status: %s", err)
			return
		}
		t.emitStatus(status)
	case EventName(KindPong):
		t.logger.Debugln("<= [HEARTBEAT]")
	default:
		t.logger.Warnf("dropping frame of unknown type %q", env.Type)
	}
}

func (t *Transport) emitStatus(s ConnectionStatus) {
	t.events.Emit(EventConnectionStatus, s)
}

func (t *Transport) isCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return gen == t.gen && t.state == StateOpen
}

func (t *Transport) stopRetryLocked() {
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
}

func (t *Transport) stopHeartbeatLocked() {
	if t.heartbeat != nil {
		t.heartbeat.Stop()
		t.heartbeat = nil
	}
}
