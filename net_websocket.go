package notifyws

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	// WsConnection is the websocket implementation of Connection. It runs one read and one write
	// goroutine per open link; both exit once CloseChan is closed.
	WsConnection struct {
		errAdapters     ErrorAdapters
		endpoint        url.URL
		header          http.Header
		logger          logger
		dialer          *websocket.Dialer
		writeTimeout    time.Duration
		conn            *websocket.Conn
		closeChan       CloseChan
		closeOnce       sync.Once
		closeReason     error
		closeReasonOnce sync.Once
		recv            chan Frame // recv frames received over the wire
		send            chan Frame // send frames to be sent over the wire
	}
)

func NewWebsocketConnection(
	logger logger,
	dialer *websocket.Dialer,
	endpoint url.URL,
	header http.Header,
	writeTimeout time.Duration,
	errorAdapters ErrorAdapters,
) *WsConnection {
	return &WsConnection{
		errAdapters:  errorAdapters,
		endpoint:     endpoint,
		header:       header,
		dialer:       dialer,
		writeTimeout: writeTimeout,
		recv:         make(chan Frame),
		send:         make(chan Frame, 32),
		closeChan:    make(CloseChan),
		logger:       logger.WithField("net", "ws_connection"),
	}
}

func NewWebsocketFactory(
	logger logger,
	dialer *websocket.Dialer,
	header http.Header,
	writeTimeout time.Duration,
	errorAdapters ErrorAdapters,
) ConnectionFactory {
	return func(endpoint url.URL) Connection {
		return NewWebsocketConnection(
			logger,
			dialer,
			endpoint,
			header,
			writeTimeout,
			errorAdapters,
		)
	}
}

// Open dials the endpoint and, on success, spawns the read and write pumps.
func (w *WsConnection) Open(ctx context.Context) error {
	target := redactEndpoint(w.endpoint)

	conn, resp, err := w.dialer.DialContext(ctx, w.endpoint.String(), w.header)
	if err = w.handleDialError(conn, resp, err); err != nil {
		w.logger.Errorf("connection err to %s: %s", target, err)
		if conn != nil {
			_ = conn.Close()
		}
		w.setCloseReason(err)
		w.safeClose()
		return err
	}

	w.logger.Debugf("success opening connection to %s", target)

	w.conn = conn

	// Control frames are surfaced to the owner instead of being answered here, so keep-alive
	// policy lives in one place.
	conn.SetPingHandler(func(appData string) error {
		w.logger.Debugln("<= [PING]")
		w.deliver(NewPingFrame([]byte(appData)))
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		w.logger.Debugln("<= [PONG]")
		w.deliver(NewPongFrame([]byte(appData)))
		return nil
	})

	go w.read()
	go w.write()

	return nil
}

// Write queues a frame for the write pump.
func (w *WsConnection) Write(f Frame) error {
	select {
	case <-w.closeChan:
		return ErrConnectionClosed
	default:
	}

	select {
	case w.send <- f:
		return nil
	case <-w.closeChan:
		return ErrConnectionClosed
	}
}

func (w *WsConnection) Recv() <-chan Frame {
	return w.recv
}

// Close sends a normal closure frame and tears the link down.
func (w *WsConnection) Close() {
	w.setCloseReason(ErrTerminated)

	select {
	case <-w.closeChan:
		return
	default:
	}

	if w.conn != nil {
		w.logger.Infoln("closing connection from our side")
		deadline := time.Now().Add(w.writeTimeout)
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
	}

	w.safeClose()
}

func (w *WsConnection) CloseChan() CloseChan {
	return w.closeChan
}

func (w *WsConnection) CloseErr() error {
	select {
	case <-w.closeChan:
		return w.closeReason
	default:
		return nil
	}
}

func (w *WsConnection) deliver(f Frame) {
	select {
	case w.recv <- f:
	case <-w.closeChan:
	}
}

func (w *WsConnection) read() {
	defer w.safeClose()

	for {
		messageType, bts, err := w.conn.ReadMessage()
		if err != nil {
			reason := w.readError(err)
			w.logger.Infof("websocket read finished: %s", reason)
			w.setCloseReason(reason)
			return
		}

		var f Frame
		// message types from ReadMessage are either binary or text
		switch messageType {
		case websocket.BinaryMessage:
			f = NewBinaryFrame(bts)
		default:
			f = NewTextFrame(bts)
		}
		w.logger.Debugf("<= [%s] %s", f.Type, bts)

		select {
		case w.recv <- f:
		case <-w.closeChan:
			return
		}
	}
}

func (w *WsConnection) readError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: ce.Code, Text: ce.Text}
	}

	select {
	case <-w.closeChan:
		return ErrTerminated
	default:
	}

	return &CloseError{Code: CloseAbnormal, Text: err.Error()}
}

func (w *WsConnection) write() {
	defer w.safeClose()

	for {
		select {
		case <-w.closeChan:
			return
		case f := <-w.send:
			deadline := time.Now().Add(w.writeTimeout)
			_ = w.conn.SetWriteDeadline(deadline)

			var err error

			switch f.Type {
			case PingFrame:
				w.logger.Debugln("=> [PING]")
				err = w.conn.WriteControl(websocket.PingMessage, f.Data, deadline)
			case PongFrame:
				w.logger.Debugln("=> [PONG]")
				err = w.conn.WriteControl(websocket.PongMessage, f.Data, deadline)
			case BinaryFrame:
				w.logger.Debugln("=> [BIN]")
				err = w.conn.WriteMessage(websocket.BinaryMessage, f.Data)
			default:
				w.logger.Debugf("=> [DATA] %s", f.Data)
				err = w.conn.WriteMessage(websocket.TextMessage, f.Data)
			}

			if err != nil {
				w.logger.Warnf("websocket write failed: %s", err)
				w.setCloseReason(errors.Wrap(ErrConnectionClosed, err.Error()))
				return
			}
		}
	}
}

func (w *WsConnection) safeClose() {
	w.closeOnce.Do(w.close)
}

func (w *WsConnection) close() {
	if w.conn != nil {
		_ = w.conn.Close()
	}
	close(w.closeChan)
}

func (w *WsConnection) setCloseReason(err error) {
	w.closeReasonOnce.Do(func() {
		w.closeReason = err
	})
}

func (w *WsConnection) handleDialError(conn *websocket.Conn, resp *http.Response, err error) error {
	if w.errAdapters.OnDial != nil {
		return w.errAdapters.OnDial(conn, resp, err)
	}

	if err == nil {
		return nil
	}

	// 1. Check HTTP errors first
	var msg string

	if resp != nil {
		if resp.Body != nil {
			bts, rerr := io.ReadAll(resp.Body)
			if rerr == nil {
				msg = string(bts)
			}
			_ = resp.Body.Close()
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return errors.Wrap(ErrRateLimit, msg)
		case http.StatusNotFound, http.StatusBadRequest:
			// The server does not offer the notification endpoint. Retrying cannot help.
			return errors.Wrapf(ErrEndpointUnavailable, "handshake rejected with status %d: %s", resp.StatusCode, msg)
		}
	}

	// 2. Network errors
	return errors.Wrap(ErrCannotConnect, err.Error())
}

// redactEndpoint hides the access token so endpoints can be logged.
func redactEndpoint(u url.URL) string {
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
