package mockbackend

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

// Message is a decoded client frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Session is one accepted client connection.
type Session struct {
	Token  string
	UserID string
	// Header holds the handshake request headers.
	Header http.Header

	conn   *websocket.Conn
	frames chan Message
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu        sync.Mutex
	seen      []Message
	closeCode int
}

func newSession(conn *websocket.Conn, token, userID string, header http.Header) *Session {
	return &Session{
		Token:  token,
		UserID: userID,
		Header: header,
		conn:   conn,
		frames: make(chan Message, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) read() {
	defer close(s.done)

	for {
		_, bts, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				s.mu.Lock()
				s.closeCode = ce.Code
				s.mu.Unlock()
			}
			return
		}

		var m Message
		if err := json.Unmarshal(bts, &m); err != nil {
			continue
		}

		s.mu.Lock()
		s.seen = append(s.seen, m)
		s.mu.Unlock()

		select {
		case s.frames <- m:
		default:
		}
	}
}

// Next returns the next client message not yet consumed by Next.
func (s *Session) Next(timeout time.Duration) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m := <-s.frames:
		return m, nil
	case <-s.done:
		select {
		case m := <-s.frames:
			return m, nil
		default:
			return Message{}, ErrSessionClosed
		}
	case <-timer.C:
		return Message{}, errors.Wrap(ErrTimeout, "waiting for client message")
	}
}

// Seen returns every message the client sent, in order.
func (s *Session) Seen() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Message(nil), s.seen...)
}

// SeenTypes returns the type of every message the client sent, in order.
func (s *Session) SeenTypes() []string {
	seen := s.Seen()
	types := make([]string, 0, len(seen))
	for _, m := range seen {
		types = append(types, m.Type)
	}
	return types
}

// CloseCode is the close code the client sent, or 0 if it has not closed with one.
func (s *Session) CloseCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeCode
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Push sends {"type": typ, "data": data}.
func (s *Session) Push(typ string, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteJSON(map[string]any{"type": typ, "data": data})
}

// PushRaw sends bts as a text frame without any encoding.
func (s *Session) PushRaw(bts []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteMessage(websocket.TextMessage, bts)
}

// Ping sends a websocket ping control frame.
func (s *Session) Ping(data []byte) error {
	return s.conn.WriteControl(websocket.PingMessage, data, time.Now().Add(time.Second))
}

// Close sends a close frame with the code and drops the connection.
func (s *Session) Close(code int, text string) error {
	s.writeMu.Lock()
	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	s.Terminate()
	return err
}

// Terminate drops the connection without a close frame.
func (s *Session) Terminate() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
