package notifyws

import (
	"fmt"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

var (
	ErrConnectionClosed    = errors.New("connection has been closed")
	ErrCannotConnect       = errors.New("connection cannot be established")
	ErrTerminated          = errors.New("connection terminated by client")
	ErrRateLimit           = errors.New("rate limit exceeded")
	ErrEndpointUnavailable = errors.New("notification endpoint unavailable")
	ErrReconnectExhausted  = errors.New("stopped reconnecting")
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrInvalidMessage      = errors.New("invalid outbound message")
	ErrInvalidConfig       = errors.New("invalid config")
)

// Close codes with special meaning for the reconnect policy.
const (
	CloseNormal        = websocket.CloseNormalClosure
	CloseProtocolError = websocket.CloseProtocolError
	CloseAbnormal      = websocket.CloseAbnormalClosure
)

// CloseError carries the close code the peer sent, or CloseAbnormal when the link simply died.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Text)
}

type closeKind int

const (
	// closeAbnormal is retried with backoff.
	closeAbnormal closeKind = iota
	// closeClean is never retried.
	closeClean
	// closeTerminal exhausts retries at once.
	closeTerminal
	// closeFailed exhausts retries and is reported with the error flag.
	closeFailed
)

func (k closeKind) String() string {
	switch k {
	case closeClean:
		return "clean"
	case closeTerminal:
		return "terminal"
	case closeFailed:
		return "failed"
	default:
		return "abnormal"
	}
}

func classifyClose(err error) closeKind {
	if errors.Is(err, ErrEndpointUnavailable) {
		return closeFailed
	}

	var ce *CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case CloseNormal:
			return closeClean
		case CloseProtocolError:
			return closeTerminal
		}
	}

	return closeAbnormal
}
