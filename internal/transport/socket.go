// Package transport adapts a gorilla/websocket connection to the narrow
// Socket contract the core connection lifecycle depends on: send a string,
// close, report ready state, and deliver inbound text messages / close /
// error notifications through callbacks. This is the out-of-scope
// "underlying bidirectional transport" collaborator from the spec, given a
// concrete, swappable implementation.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReadyState mirrors the spec's connection state machine.
type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "closed"
	}
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Socket is the minimal transport contract the connection layer relies on.
type Socket interface {
	Send(raw string) error
	Close() error
	CloseWithCode(code int, reason string) error
	ReadyState() ReadyState
}

// GorillaSocket implements Socket over a *websocket.Conn, with a dedicated
// write pump and periodic pings — the same shape as a hand-rolled
// client/server write loop, just generalized to text frames of any type
// instead of one binary command envelope.
type GorillaSocket struct {
	conn   *websocket.Conn
	sendCh chan string

	mu    sync.RWMutex
	state ReadyState
}

// NewGorillaSocket wraps conn and starts its write pump. The caller is
// still responsible for running a read loop (see ReadLoop).
func NewGorillaSocket(conn *websocket.Conn) *GorillaSocket {
	s := &GorillaSocket{
		conn:   conn,
		sendCh: make(chan string, sendBufferSize),
		state:  Open,
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go s.writePump()
	return s
}

// Send queues raw for delivery. It never blocks the caller beyond the
// buffer's capacity; per the spec, failures of the underlying send are the
// caller's business to ignore (fire-and-forget) — Send still reports them
// so the connection layer can choose to, e.g., count them in metrics.
func (s *GorillaSocket) Send(raw string) error {
	// Hold the lock across the send itself, not just the state check: it's
	// what keeps this from racing CloseWithCode's close(s.sendCh) below.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == Closed || s.state == Closing {
		return errClosed
	}

	select {
	case s.sendCh <- raw:
		return nil
	default:
		return errBackpressure
	}
}

// Close closes the connection with the normal closure code.
func (s *GorillaSocket) Close() error {
	return s.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a specific WebSocket close code
// and optional reason.
func (s *GorillaSocket) CloseWithCode(code int, reason string) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	s.state = Closing
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)

	s.mu.Lock()
	s.state = Closed
	close(s.sendCh)
	s.mu.Unlock()

	return s.conn.Close()
}

// ReadyState reports the socket's current lifecycle state.
func (s *GorillaSocket) ReadyState() ReadyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *GorillaSocket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadLoop blocks reading text messages from conn until the connection
// closes or errors, invoking onMessage for each, then onClose exactly once.
// It is meant to be run in its own goroutine by the caller.
func (s *GorillaSocket) ReadLoop(onMessage func(string), onClose func(reason string, err error)) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			reason := ""
			if ce, ok := err.(*websocket.CloseError); ok {
				reason = ce.Text
			}
			onClose(reason, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(string(data))
	}
}

var (
	errClosed       = closedError("transport: socket is closed")
	errBackpressure = closedError("transport: send buffer full")
)

type closedError string

func (e closedError) Error() string { return string(e) }
