package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twmailer/backend/internal/domain"
	"twmailer/backend/internal/protocol"
	"twmailer/backend/internal/server"
	"twmailer/backend/internal/session"
	"twmailer/backend/internal/storage/filesystem"
)

// startServer 启动使用文件系统存储的完整服务
func startServer(t *testing.T) (string, *filesystem.Store) {
	t.Helper()
	store, err := filesystem.NewStore(t.TempDir(), filesystem.Options{CrossProcessLock: true, LockTimeout: 5 * time.Second})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := server.New(server.Config{MaxConnections: 64, AcceptRate: 1000},
		session.NewHandler(session.Config{}, store, nil, nil), nil, nil)
	go func() { _ = srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ln.Addr().String(), store
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr, Options{Timeout: 2 * time.Second, IdleWindow: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_EndToEnd(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr)
	assert.Equal(t, "Please choose your command. SEND, LIST, READ, DEL, QUIT", c.Welcome())

	msg := domain.Message{Sender: "alice", Receiver: "bob", Subject: "hello", Body: []string{"hi there", "", "bye"}}
	resp, err := c.Send(msg)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	resp, err = c.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 Mails found in Inbox of bob", "1. hello"}, resp.Lines)

	resp, err = c.Read("bob", 1)
	require.NoError(t, err)
	require.True(t, resp.IsOK())
	assert.Equal(t, msg.Render(), Text(resp))
	assert.Equal(t, &msg, domain.ParseMessage(Text(resp)))

	resp, err = c.Read("bob", 2)
	require.NoError(t, err)
	assert.True(t, resp.IsErr())

	resp, err = c.List("nobody")
	require.NoError(t, err)
	assert.Equal(t, "ERR User has no inbox", resp.Lines[0])

	resp, err = c.Del("bob", 1)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	resp, err = c.List("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"0 Mails found in Inbox of bob"}, resp.Lines)

	resp, err = c.Raw("NOPE")
	require.NoError(t, err)
	assert.True(t, resp.IsErr())

	resp, err = c.Quit()
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
}

func TestClient_ConcurrentSendersSameMailbox(t *testing.T) {
	addr, store := startServer(t)

	const clients = 8
	const perClient = 5
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Dial(context.Background(), addr, Options{Timeout: 5 * time.Second})
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()
			for j := 0; j < perClient; j++ {
				resp, err := c.Send(domain.Message{Sender: "alice", Receiver: "bob", Subject: "load"})
				assert.NoError(t, err)
				assert.True(t, resp.IsOK())
			}
		}()
	}
	wg.Wait()

	summaries, err := store.List(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, summaries, clients*perClient)
	for i, s := range summaries {
		assert.Equal(t, i+1, s.Ordinal)
	}
}

func TestClient_ConcurrentDeletesSameOrdinal(t *testing.T) {
	addr, store := startServer(t)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, &domain.Message{Sender: "alice", Receiver: "bob", Subject: "only"}))

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Dial(ctx, addr, Options{Timeout: 5 * time.Second})
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()
			resp, err := c.Del("bob", 1)
			assert.NoError(t, err)
			results <- resp.IsOK()
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for r := range results {
		if r {
			ok++
		}
	}
	assert.Equal(t, 1, ok, "exactly one delete succeeds")
}

func TestText(t *testing.T) {
	assert.Empty(t, Text(protocolResponse("OK")))
	assert.Equal(t, "a\nb\n", Text(protocolResponse("OK", "a", "b")))
}

func protocolResponse(lines ...string) protocol.Response {
	return protocol.Response{Lines: lines}
}
