package wspipe

import (
	"sync"

	"github.com/luciancaetano/wspipe/internal/registry"
	"github.com/luciancaetano/wspipe/internal/transport"
)

// ReadyState mirrors the connection's lifecycle: Connecting -> Open ->
// Closing -> Closed. Sends attempted while Closed are silent no-ops.
type ReadyState = transport.ReadyState

const (
	Connecting = transport.Connecting
	Open       = transport.Open
	Closing    = transport.Closing
	Closed     = transport.Closed
)

// Client wraps one accepted transport socket: it owns decoding inbound
// frames, sending outbound ones, and this connection's subscription set.
// Two clients are equal iff their IDs are equal.
type Client struct {
	id     string
	socket transport.Socket
	server *Server

	mu   sync.RWMutex
	subs map[string]struct{}

	onClose eventBus[func(reason string, err error)]
	onError eventBus[func(error)]
}

func newClient(id string, socket transport.Socket, server *Server) *Client {
	return &Client{
		id:     id,
		socket: socket,
		server: server,
		subs:   make(map[string]struct{}),
	}
}

// ID returns this connection's stable identifier.
func (c *Client) ID() string { return c.id }

// ReadyState reports the underlying transport's lifecycle state.
func (c *Client) ReadyState() ReadyState { return c.socket.ReadyState() }

// Send forwards an already-encoded frame to the transport. Failures of the
// underlying send are swallowed: this is fire-and-forget by design (spec
// §4.5) — the connection's eventual close is what surfaces a dead peer.
func (c *Client) Send(raw string) {
	_ = c.socket.Send(raw)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.socket.Close()
}

// CloseWithCode closes the connection with a specific close code and reason.
func (c *Client) CloseWithCode(code int, reason string) error {
	return c.socket.CloseWithCode(code, reason)
}

// Subscriptions returns the set of paths this client currently subscribes
// to, in no particular order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for p := range c.subs {
		out = append(out, p)
	}
	return out
}

// addSubscription and removeSubscription are called only by the registry's
// bookkeeping through the server, keeping the invariant that a client's own
// subscription set is mutated only by the server (spec §3).
func (c *Client) addSubscription(path string) {
	c.mu.Lock()
	c.subs[path] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeSubscription(path string) {
	c.mu.Lock()
	delete(c.subs, path)
	c.mu.Unlock()
}

func (c *Client) clearSubscriptions() {
	c.mu.Lock()
	c.subs = make(map[string]struct{})
	c.mu.Unlock()
}

// registrySubscriber adapts *Client to registry.Subscriber without the
// registry package needing to know about Client at all.
type registrySubscriber struct{ c *Client }

func (r registrySubscriber) ID() string      { return r.c.ID() }
func (r registrySubscriber) Send(raw string) { r.c.Send(raw) }

var _ registry.Subscriber = registrySubscriber{}

// handleMessage is the read loop's per-frame entry point: decode, dispatch
// Invoke frames to the server, close on parse failure, ignore anything else
// (spec §4.5 / §9 open question (b): a strict implementation may log these,
// this one doesn't — matching the source's silent-ignore behavior).
func (c *Client) handleMessage(raw string) {
	c.server.handleClientMessage(c, raw)
}

func (c *Client) handleClose(reason string, err error) {
	c.server.disconnect(c)
	c.emitClose(reason, err)
}
