package stress_test

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luciancaetano/wspipe"
	"github.com/luciancaetano/wspipe/internal/protocol"
)

const testServerAddr = "localhost:8765"

type chatMessage struct {
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// startTestServer starts a chat room (one path, fan-out via Publish) for
// stress testing.
func startTestServer(t *testing.T, ctx context.Context) *wspipe.Server {
	server := wspipe.New(wspipe.Config{
		Addr: testServerAddr,
		RateLimit: &wspipe.RateLimitConfig{
			MessagesPerSecond: 1000,
			Burst:             2000,
			Enabled:           true,
		},
		CheckOrigin: func(r *http.Request) bool { return true },
	})

	err := server.RegisterRoute("/chat", func(c wspipe.Context, next wspipe.Next) (any, error) {
		var msg chatMessage
		if err := c.Unmarshal(&msg); err != nil {
			return nil, err
		}
		msg.Timestamp = time.Now()
		c.Server.Publish("/chat", msg)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("failed to register route: %v", err)
	}

	server.OnConnection(func(c *wspipe.Client) {
		server.Subscribe(c, "/chat")
	})

	go func() {
		if err := server.Start(ctx); err != nil && ctx.Err() == nil {
			t.Errorf("server error: %v", err)
		}
	}()

	time.Sleep(500 * time.Millisecond)

	return server
}

func dialAndInvoke(ctx context.Context, clientID, path string, body any) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws", testServerAddr)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}

	// Drain the Welcome frame so the read loop below only sees Publish
	// frames.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return nil, err
	}

	raw, err := protocol.EncodeValue(protocol.Invoke, clientID, path, body)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// TestStress5000Connections tests 5000 simultaneous connections exchanging
// chat messages over a shared Publish fan-out.
func TestStress5000Connections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	server := startTestServer(t, ctx)
	defer server.Stop(ctx)

	const numClients = 5000
	const messagesPerClient = 5

	var (
		connectedClients  int64
		failedConnections int64
		messagesSent      int64
		messagesReceived  int64
		wg                sync.WaitGroup
	)

	startTime := time.Now()

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			conn, err := dialAndInvoke(ctx, fmt.Sprintf("c%d", clientID), "/chat", chatMessage{
				Username: fmt.Sprintf("user_%d", clientID),
				Message:  "join",
			})
			if err != nil {
				atomic.AddInt64(&failedConnections, 1)
				return
			}
			defer conn.Close()
			atomic.AddInt64(&connectedClients, 1)
			atomic.AddInt64(&messagesSent, 1)

			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
			done := make(chan struct{})
			go func() {
				defer close(done)
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
					atomic.AddInt64(&messagesReceived, 1)
				}
			}()

			for j := 1; j < messagesPerClient; j++ {
				raw, _ := protocol.EncodeValue(protocol.Invoke, fmt.Sprintf("c%d-%d", clientID, j), "/chat", chatMessage{
					Username: fmt.Sprintf("user_%d", clientID),
					Message:  fmt.Sprintf("message %d", j),
				})
				if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
					return
				}
				atomic.AddInt64(&messagesSent, 1)
				time.Sleep(10 * time.Millisecond)
			}

			time.Sleep(2 * time.Second)
			conn.Close()
			<-done
		}(i)

		if i%100 == 0 && i > 0 {
			time.Sleep(100 * time.Millisecond)
		}
	}

	wg.Wait()
	duration := time.Since(startTime)

	successRate := float64(connectedClients) / float64(numClients) * 100

	log.Printf("=== Stress Test Results ===")
	log.Printf("duration=%v connected=%d/%d (%.2f%%) failed=%d sent=%d received=%d msgs/sec=%.2f",
		duration, connectedClients, numClients, successRate, failedConnections,
		messagesSent, messagesReceived, float64(messagesSent)/duration.Seconds())

	if connectedClients < int64(numClients*0.95) {
		t.Errorf("too many failed connections: %d/%d (%.2f%% success rate)", connectedClients, numClients, successRate)
	}
}

// TestStressConcurrentMessaging tests heavy concurrent Invoke traffic on a
// handful of connections.
func TestStressConcurrentMessaging(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	server := startTestServer(t, ctx)
	defer server.Stop(ctx)

	const numClients = 100
	const messagesPerClient = 1000

	var (
		messagesSent     int64
		messagesReceived int64
		wg               sync.WaitGroup
	)

	startTime := time.Now()

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			conn, err := dialAndInvoke(ctx, fmt.Sprintf("c%d", clientID), "/chat", chatMessage{
				Username: fmt.Sprintf("user_%d", clientID),
				Message:  "join",
			})
			if err != nil {
				t.Errorf("failed to connect: %v", err)
				return
			}
			defer conn.Close()
			atomic.AddInt64(&messagesSent, 1)

			go func() {
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
					atomic.AddInt64(&messagesReceived, 1)
				}
			}()

			for j := 1; j < messagesPerClient; j++ {
				raw, _ := protocol.EncodeValue(protocol.Invoke, fmt.Sprintf("c%d-%d", clientID, j), "/chat", chatMessage{
					Username: fmt.Sprintf("user_%d", clientID),
					Message:  fmt.Sprintf("rapid message %d", j),
				})
				if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
					return
				}
				atomic.AddInt64(&messagesSent, 1)
				if j%10 == 0 {
					time.Sleep(time.Millisecond)
				}
			}

			time.Sleep(2 * time.Second)
		}(i)

		time.Sleep(10 * time.Millisecond)
	}

	wg.Wait()
	duration := time.Since(startTime)

	log.Printf("=== Concurrent Messaging Stress Test Results ===")
	log.Printf("duration=%v clients=%d sent=%d received=%d msgs/sec=%.2f",
		duration, numClients, messagesSent, messagesReceived, float64(messagesSent)/duration.Seconds())

	if messagesSent < int64(numClients*messagesPerClient*0.95) {
		t.Errorf("too many failed sends: expected ~%d, got %d", numClients*messagesPerClient, messagesSent)
	}
}
