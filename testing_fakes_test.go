package notifyws

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestLogger() (logger, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return NewLogrusLogger(l), hook
}

func hasEntry(hook *test.Hook, level logrus.Level, substr string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// fakeConn is a Connection driven by the test. Frames pushed with push are handed to the
// transport pump synchronously.
type fakeConn struct {
	endpoint url.URL
	openErr  error
	gate     chan struct{}

	recv      chan Frame
	closeC    CloseChan
	closeOnce sync.Once

	mu             sync.Mutex
	closeErr       error
	written        []Frame
	closedByClient bool
}

func (f *fakeConn) Open(ctx context.Context) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			f.terminate(ctx.Err())
			return ctx.Err()
		}
	}
	if f.openErr != nil {
		f.terminate(f.openErr)
		return f.openErr
	}
	return nil
}

func (f *fakeConn) Write(fr Frame) error {
	select {
	case <-f.closeC:
		return ErrConnectionClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, fr)
	return nil
}

func (f *fakeConn) Recv() <-chan Frame { return f.recv }

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closedByClient = true
	f.mu.Unlock()
	f.terminate(ErrTerminated)
}

func (f *fakeConn) CloseChan() CloseChan { return f.closeC }

func (f *fakeConn) CloseErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeErr
}

func (f *fakeConn) terminate(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closeErr = err
		f.mu.Unlock()
		close(f.closeC)
	})
}

// serverClose simulates the peer closing the link with the given code.
func (f *fakeConn) serverClose(code int) {
	f.terminate(&CloseError{Code: code, Text: "closed by test"})
}

func (f *fakeConn) push(t *testing.T, payload string) {
	t.Helper()
	f.pushFrame(t, NewTextFrame([]byte(payload)))
}

func (f *fakeConn) pushFrame(t *testing.T, fr Frame) {
	t.Helper()
	select {
	case f.recv <- fr:
	case <-time.After(time.Second):
		t.Fatalf("frame %s was not consumed", fr)
	}
}

func (f *fakeConn) writtenFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.written...)
}

// sentTypes returns the "type" of every data frame the transport wrote.
func (f *fakeConn) sentTypes() []string {
	var types []string
	for _, fr := range f.writtenFrames() {
		if fr.Type.IsData() {
			types = append(types, gjson.GetBytes(fr.Data, "type").String())
		}
	}
	return types
}

func (f *fakeConn) countSent(kind string) int {
	n := 0
	for _, typ := range f.sentTypes() {
		if typ == kind {
			n++
		}
	}
	return n
}

func (f *fakeConn) wasClosedByClient() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closedByClient
}

type fakeFactory struct {
	// openErr returns the error the n-th (1-based) dial fails with, or nil.
	openErr func(n int) error
	// gated makes every Open block until release is called.
	gated bool
	gate  chan struct{}

	mu    sync.Mutex
	conns []*fakeConn
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{gate: make(chan struct{})}
}

func (ff *fakeFactory) factory(endpoint url.URL) Connection {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	c := &fakeConn{
		endpoint: endpoint,
		recv:     make(chan Frame),
		closeC:   make(CloseChan),
	}
	if ff.openErr != nil {
		c.openErr = ff.openErr(len(ff.conns) + 1)
	}
	if ff.gated {
		c.gate = ff.gate
	}
	ff.conns = append(ff.conns, c)
	return c
}

func (ff *fakeFactory) release() {
	close(ff.gate)
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.conns)
}

func (ff *fakeFactory) last() *fakeConn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.conns) == 0 {
		return nil
	}
	return ff.conns[len(ff.conns)-1]
}

type manualTimer struct {
	owner   *manualTimers
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (m *manualTimer) Stop() bool {
	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()

	active := !m.stopped && !m.fired
	m.stopped = true
	return active
}

// manualTimers replaces time.AfterFunc so reconnects only happen when the test fires them.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (m *manualTimers) afterFunc(d time.Duration, fn func()) stopper {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer := &manualTimer{owner: m, delay: d, fn: fn}
	m.timers = append(m.timers, timer)
	return timer
}

func (m *manualTimers) delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []time.Duration
	for _, timer := range m.timers {
		out = append(out, timer.delay)
	}
	return out
}

func (m *manualTimers) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, timer := range m.timers {
		if !timer.stopped && !timer.fired {
			n++
		}
	}
	return n
}

// fire runs the oldest pending timer.
func (m *manualTimers) fire(t *testing.T) {
	t.Helper()

	m.mu.Lock()
	var next *manualTimer
	for _, timer := range m.timers {
		if !timer.stopped && !timer.fired {
			next = timer
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	m.mu.Unlock()

	require.NotNil(t, next, "no pending timer")
	next.fn()
}

// fireAll runs every callback ever scheduled, stopped or not, as a late timer would.
func (m *manualTimers) fireAll() {
	m.mu.Lock()
	fns := make([]func(), 0, len(m.timers))
	for _, timer := range m.timers {
		fns = append(fns, timer.fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}
