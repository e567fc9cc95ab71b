package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twmailer/backend/internal/monitoring"
	"twmailer/backend/internal/protocol"
	"twmailer/backend/internal/session"
	"twmailer/backend/internal/storage/memory"
)

func newSessionHandler() *session.Handler {
	return session.NewHandler(session.Config{}, memory.NewStore(), nil, nil)
}

// startServer 在回环地址上启动服务器
func startServer(t *testing.T, cfg Config, handler ConnHandler, metrics *monitoring.Metrics) (*Server, string, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(cfg, handler, nil, metrics)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ln.Addr().String(), errCh
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestServer_ConcurrentSessions(t *testing.T) {
	_, addr, _ := startServer(t, Config{MaxConnections: 8, AcceptRate: 100}, newSessionHandler(), nil)

	a, ra := dial(t, addr)
	b, rb := dial(t, addr)
	assert.Equal(t, protocol.DefaultWelcome+"\n", readLine(t, ra))
	assert.Equal(t, protocol.DefaultWelcome+"\n", readLine(t, rb))

	// b 空闲不影响 a
	_, err := a.Write([]byte("SEND\nalice\nbob\nhi\n.\n"))
	require.NoError(t, err)
	assert.Equal(t, "OK\n", readLine(t, ra))

	_, err = b.Write([]byte("LIST\nbob\n"))
	require.NoError(t, err)
	assert.Equal(t, "1 Mails found in Inbox of bob\n", readLine(t, rb))
	assert.Equal(t, "1. hi\n", readLine(t, rb))
}

func TestServer_BurstOfConnectionsAllWelcomed(t *testing.T) {
	_, addr, _ := startServer(t, Config{MaxConnections: 128}, newSessionHandler(), nil)

	readers := make([]*bufio.Reader, 0, 80)
	for i := 0; i < 80; i++ {
		_, r := dial(t, addr)
		readers = append(readers, r)
	}
	for _, r := range readers {
		assert.Equal(t, protocol.DefaultWelcome+"\n", readLine(t, r))
	}
}

func TestServer_RejectsOverLimit(t *testing.T) {
	m := monitoring.NewMetricsWithRegistry(prometheus.NewRegistry())
	srv, addr, _ := startServer(t, Config{MaxConnections: 1, AcceptRate: 100}, newSessionHandler(), m)

	_, r1 := dial(t, addr)
	readLine(t, r1)
	require.Eventually(t, func() bool { return srv.ActiveSessions() == 1 }, time.Second, 5*time.Millisecond)

	_, r2 := dial(t, addr)
	assert.Equal(t, "ERR Server busy\n", readLine(t, r2))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsRejected.WithLabelValues(RejectMaxConnections)))
}

// flakyListener 前几次 Accept 返回临时错误
type flakyListener struct {
	net.Listener
	failures int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if atomic.AddInt32(&l.failures, -1) >= 0 {
		return nil, errors.New("accept: too many open files")
	}
	return l.Listener.Accept()
}

func TestServer_AcceptErrorsDoNotStopLoop(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := &flakyListener{Listener: inner, failures: 3}

	srv := New(Config{}, newSessionHandler(), nil, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background(), ln) }()

	_, r := dial(t, inner.Addr().String())
	assert.Equal(t, protocol.DefaultWelcome+"\n", readLine(t, r))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, ErrServerClosed)
}

func TestServer_ShutdownDrainsSessions(t *testing.T) {
	srv, addr, errCh := startServer(t, Config{}, newSessionHandler(), nil)

	conn, r := dial(t, addr)
	readLine(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-errCh, ErrServerClosed)
	assert.Equal(t, 0, srv.ActiveSessions())

	_, err := conn.Read(make([]byte, 1))
	assert.Error(t, err)

	assert.ErrorIs(t, srv.Serve(context.Background(), &flakyListener{Listener: mustListen(t)}), ErrServerClosed)
}

func TestServer_ContextCancel(t *testing.T) {
	ln := mustListen(t)
	srv := New(Config{}, newSessionHandler(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestConnectionLimiter(t *testing.T) {
	t.Run("max connections", func(t *testing.T) {
		l := NewConnectionLimiter(2, 100)
		ok, _ := l.Acquire()
		assert.True(t, ok)
		ok, _ = l.Acquire()
		assert.True(t, ok)
		ok, reason := l.Acquire()
		assert.False(t, ok)
		assert.Equal(t, RejectMaxConnections, reason)

		l.Release()
		assert.Equal(t, 1, l.Current())
		ok, _ = l.Acquire()
		assert.True(t, ok)
	})

	t.Run("rate", func(t *testing.T) {
		l := NewConnectionLimiter(100, 1)
		ok, _ := l.Acquire()
		assert.True(t, ok)
		ok, reason := l.Acquire()
		assert.False(t, ok)
		assert.Equal(t, RejectRate, reason)
	})

	t.Run("zero rate disables rate limiting", func(t *testing.T) {
		l := NewConnectionLimiter(500, 0)
		for i := 0; i < 200; i++ {
			ok, reason := l.Acquire()
			require.True(t, ok, "connection %d rejected: %s", i, reason)
		}
	})

	t.Run("release never goes negative", func(t *testing.T) {
		l := NewConnectionLimiter(1, 1)
		l.Release()
		assert.Equal(t, 0, l.Current())
	})
}
