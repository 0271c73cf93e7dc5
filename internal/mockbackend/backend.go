// Package mockbackend is a scripted notification endpoint. It speaks the same JSON frames as the
// banking backend and is used by tests and by `notifyctl serve-mock`.
package mockbackend

import (
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrTimeout       = errors.New("timed out")
	ErrSessionClosed = errors.New("session closed")
)

type (
	// Script drives one accepted session. The session ends when the script returns.
	Script func(s *Session)

	Backend struct {
		path     string
		logger   logrus.FieldLogger
		upgrader websocket.Upgrader
		script   Script
		accepted chan *Session

		mu       sync.Mutex
		sessions []*Session
		closed   bool
	}
)

func New(path string, logger logrus.FieldLogger, script Script) *Backend {
	return &Backend{
		path:   path,
		logger: logger.WithField("component", "mock_backend"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		script:   script,
		accepted: make(chan *Session, 16),
	}
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != b.path {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	if q.Get("token") == "" || q.Get("userId") == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.WithError(err).Warn("upgrade failed")
		return
	}

	s := newSession(conn, q.Get("token"), q.Get("userId"), r.Header.Clone())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.Terminate()
		return
	}
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()

	b.logger.WithField("user", s.UserID).Info("session accepted")

	select {
	case b.accepted <- s:
	default:
	}

	go s.read()

	b.script(s)
	s.Terminate()
	<-s.Done()
}

// NextSession waits for the next accepted session.
func (b *Backend) NextSession(timeout time.Duration) (*Session, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s := <-b.accepted:
		return s, nil
	case <-timer.C:
		return nil, errors.Wrap(ErrTimeout, "waiting for session")
	}
}

// Sessions returns every session accepted so far.
func (b *Backend) Sessions() []*Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]*Session(nil), b.sessions...)
}

// Close drops every session and refuses new ones.
func (b *Backend) Close() {
	b.mu.Lock()
	b.closed = true
	sessions := append([]*Session(nil), b.sessions...)
	b.mu.Unlock()

	for _, s := range sessions {
		s.Terminate()
	}
}
