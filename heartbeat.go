package notifyws

import (
	"sync"
	"time"
)

type KeepAliveMessageFactory func() OutboundMessage

// heartbeat periodically hands a keep-alive message to send while a connection is open.
// It is started once per open connection and stopped when that connection is left.
type heartbeat struct {
	interval                time.Duration
	keepAliveMessageFactory KeepAliveMessageFactory
	send                    func(OutboundMessage)
	afterFunc               afterFunc
	logger                  logger

	mu      sync.Mutex
	timer   stopper
	stopped bool
}

func newHeartbeat(
	logger logger,
	interval time.Duration,
	keepAliveMessageFactory KeepAliveMessageFactory,
	send func(OutboundMessage),
	afterFunc afterFunc,
) *heartbeat {
	return &heartbeat{
		logger:                  logger.WithField("component", "heartbeat"),
		interval:                interval,
		keepAliveMessageFactory: keepAliveMessageFactory,
		send:                    send,
		afterFunc:               afterFunc,
	}
}

// Start arms the first beat. Subsequent calls have no effect.
func (h *heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.timer != nil {
		return
	}
	h.timer = h.afterFunc(h.interval, h.beat)
}

// Stop disarms the pending beat. It never blocks and is safe to call more than once.
func (h *heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *heartbeat) beat() {
	h.mu.Lock()
	stopped := h.stopped
	h.mu.Unlock()
	if stopped {
		return
	}

	h.logger.Debugln("=> [HEARTBEAT]")
	h.send(h.keepAliveMessageFactory())

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.stopped {
		h.timer = h.afterFunc(h.interval, h.beat)
	}
}

// PingKeepAlive builds the application-level ping sent on every heartbeat tick.
func PingKeepAlive() OutboundMessage {
	return newControlMessage(KindPing)
}

// replyPingWithPong answers websocket-level ping control frames so intermediaries keep the link alive.
func replyPingWithPong(conn Connection, f Frame) {
	if f.Type.IsPing() {
		_ = conn.Write(NewPongFrame(f.Data))
	}
}
