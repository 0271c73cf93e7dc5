package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonirico/notifyws"
	"github.com/sonirico/notifyws/internal/mockbackend"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newMockServer(t *testing.T, script mockbackend.Script) (*mockbackend.Backend, *httptest.Server) {
	t.Helper()

	l, _ := test.NewNullLogger()
	backend := mockbackend.New("/ws/notifications", l, script)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	t.Cleanup(backend.Close)
	return backend, srv
}

func waitListen(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("listen did not return")
		return nil
	}
}

func runListen(ctx context.Context, gs *globalState, args ...string) <-chan error {
	c := newRootCommand(gs)
	c.cmd.SetArgs(append([]string{"listen", "--no-color"}, args...))

	done := make(chan error, 1)
	go func() {
		done <- c.cmd.ExecuteContext(ctx)
	}()
	return done
}

func TestListen_PrintsEvents(t *testing.T) {
	_, srv := newMockServer(t, mockbackend.Periodic(20*time.Millisecond, 3))
	gs := newTestGlobalState(t, map[string]string{"NOTIFYWS_USER_ID": "42"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := runListen(ctx, gs, "--url", srv.URL+"/api/v1", "--token", "abc")
	out := gs.stdout.(*syncBuffer)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "(mock-2)")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return after cancel")
	}

	assert.Contains(t, out.String(), "[status] connected\n")
	assert.Contains(t, out.String(), "[unread] 3\n")
	assert.Contains(t, out.String(), "[notification] Card payment Payment #1 of 12.50 EUR approved (mock-1)\n")
	assert.Contains(t, out.String(), "[unread] 4\n")
}

func TestListen_GivesUpOnMissingEndpoint(t *testing.T) {
	_, srv := newMockServer(t, mockbackend.Responder(0))
	gs := newTestGlobalState(t, nil)

	done := runListen(context.Background(), gs,
		"--url", srv.URL+"/api/v1",
		"--notifications-path", "/ws/elsewhere",
		"--token", "abc",
		"--user-id", "42",
	)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, notifyws.ErrEndpointUnavailable))
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not give up")
	}

	assert.Contains(t, gs.stdout.(*syncBuffer).String(), "[status] disconnected (error)\n")
}

func TestListen_RequiresCredentials(t *testing.T) {
	gs := newTestGlobalState(t, nil)

	err := <-runListen(context.Background(), gs, "--token", "abc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id")
}

func TestRoot_RejectsUnknownLogLevel(t *testing.T) {
	gs := newTestGlobalState(t, nil)

	err := <-runListen(context.Background(), gs, "--log-level", "loud")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--log-level")
}

func TestListen_StopsAfterProtocolErrorClose(t *testing.T) {
	_, srv := newMockServer(t, func(s *mockbackend.Session) {
		if _, err := s.Next(2 * time.Second); err != nil {
			return
		}
		_ = s.Close(notifyws.CloseProtocolError, "notifications disabled")
		<-s.Done()
	})
	gs := newTestGlobalState(t, nil)

	err := waitListen(t, runListen(context.Background(), gs,
		"--url", srv.URL+"/api/v1",
		"--token", "abc",
		"--user-id", "42",
	))

	require.Error(t, err)
	assert.True(t, errors.Is(err, notifyws.ErrReconnectExhausted), "got %v", err)
	assert.Equal(t, "[status] connected\n[status] disconnected\n", gs.stdout.(*syncBuffer).String())
}

func TestListen_StopsWhenEveryDialFails(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	gs := newTestGlobalState(t, nil)

	err := waitListen(t, runListen(context.Background(), gs,
		"--url", url+"/api/v1",
		"--token", "abc",
		"--user-id", "42",
		"--max-attempts", "2",
		"--base-delay", "10ms",
		"--max-delay", "20ms",
	))

	require.Error(t, err)
	assert.True(t, errors.Is(err, notifyws.ErrReconnectExhausted), "got %v", err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Empty(t, gs.stdout.(*syncBuffer).String())
}

func TestListen_SendsHandshakeHeaders(t *testing.T) {
	backend, srv := newMockServer(t, mockbackend.Responder(0))
	gs := newTestGlobalState(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := runListen(ctx, gs,
		"--url", srv.URL+"/api/v1",
		"--token", "abc",
		"--user-id", "42",
		"--handshake-timeout", "1s",
		"--header", "X-Client: notifyctl",
		"-H", "X-Trace-Id:  t-1 ",
	)

	session, err := backend.NextSession(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "notifyctl", session.Header.Get("X-Client"))
	assert.Equal(t, "t-1", session.Header.Get("X-Trace-Id"))

	cancel()
	require.NoError(t, waitListen(t, done))
}

func TestListen_RejectsMalformedHeader(t *testing.T) {
	gs := newTestGlobalState(t, nil)

	err := waitListen(t, runListen(context.Background(), gs,
		"--token", "abc",
		"--user-id", "42",
		"--header", "no-colon",
	))

	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid header "no-colon"`)
}

func TestParseHeaders(t *testing.T) {
	header, err := parseHeaders([]string{"Origin: https://bank.example.com", "X-A: 1", "x-a: 2"})
	require.NoError(t, err)
	assert.Equal(t, "https://bank.example.com", header.Get("Origin"))
	assert.Equal(t, []string{"1", "2"}, header.Values("X-A"))

	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestNewDialer(t *testing.T) {
	cfg := notifyws.DefaultConfig()
	cfg.HandshakeTimeout = 3 * time.Second

	d := newDialer(cfg, true)

	assert.Equal(t, 3*time.Second, d.HandshakeTimeout)
	require.NotNil(t, d.TLSClientConfig)
	assert.True(t, d.TLSClientConfig.InsecureSkipVerify)
	assert.False(t, newDialer(cfg, false).TLSClientConfig.InsecureSkipVerify)
}
