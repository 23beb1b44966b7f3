package e2e_test

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/protocol"
)

var portCounter int64 = 19000

func nextAddr() string {
	port := atomic.AddInt64(&portCounter, 1)
	return fmt.Sprintf("localhost:%d", port)
}

// startServer boots server on a fresh port and returns it already listening,
// plus a func to stop it.
func startServer(t *testing.T, server *wspipe.Server) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	// Start returns nil once its startup grace window passes with the
	// listener still up; only a non-nil error means it failed to start.
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server exited early: %v", err)
		}
	case <-time.After(150 * time.Millisecond):
	}

	return func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		server.Stop(stopCtx)
	}
}

func newServer(addr string, opts ...func(*wspipe.Config)) *wspipe.Server {
	cfg := wspipe.Config{
		Addr:        addr,
		CheckOrigin: func(r *http.Request) bool { return true },
		RateLimit:   wspipe.NoRateLimit(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return wspipe.New(cfg)
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := protocol.Decode(string(raw))
	require.NoError(t, err)
	return frame
}

func sendInvoke(t *testing.T, conn *websocket.Conn, id, path string, body any) {
	t.Helper()
	raw, err := protocol.EncodeValue(protocol.Invoke, id, path, body)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}
