// Package registry implements the bidirectional subscription map between
// publish paths and the clients subscribed to them: subscribe,
// unsubscribe-one, unsubscribe-all-on-path, and publish fan-out. No entry is
// ever left pointing at an empty client set.
package registry

import "sync"

// Subscriber is the minimal surface the registry needs from a client: a
// stable identity and a way to hand it an already-encoded frame. Kept
// intentionally narrow so this package never imports the connection or
// server types that depend on it.
type Subscriber interface {
	ID() string
	Send(raw string)
}

// Deferred is a handle for subscribe-time initial data that isn't available
// yet. When it resolves, the registry re-checks that the client is still
// subscribed (and that the value is present) before sending anything.
type Deferred func() (data any, ok bool)

// Encoder builds the wire frame for a publish of data on path. Injected so
// this package stays independent of the wire codec's package.
type Encoder func(path string, data any) (string, error)

// Registry holds the path <-> client mapping. All exported methods are
// goroutine-safe: each one takes the registry's own mutex for its
// bookkeeping, and that mutex is the only serialization this type provides.
type Registry struct {
	encode Encoder

	mu          sync.Mutex
	pathClients map[string]map[string]Subscriber // path -> clientID -> subscriber
	clientPaths map[string]map[string]struct{}   // clientID -> set of paths
}

// New creates an empty Registry using encode to build Publish frames.
func New(encode Encoder) *Registry {
	return &Registry{
		encode:      encode,
		pathClients: make(map[string]map[string]Subscriber),
		clientPaths: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds client as a subscriber of path. If client is already
// subscribed, it is a no-op. initial, if given, is either a plain value
// (sent immediately, synchronously, to this client only) or a Deferred
// (resolved asynchronously; on resolution the client's current
// subscription is re-checked and the send is skipped if it lapsed or the
// resolved value is absent).
func (r *Registry) Subscribe(client Subscriber, path string, initial ...any) bool {
	r.mu.Lock()
	if r.isSubscribedLocked(client.ID(), path) {
		r.mu.Unlock()
		return false
	}
	r.addLocked(client, path)
	r.mu.Unlock()

	if len(initial) > 0 {
		switch v := initial[0].(type) {
		case Deferred:
			go r.sendDeferredInitial(client, path, v)
		default:
			r.sendInitial(client, path, v)
		}
	}
	return true
}

func (r *Registry) sendDeferredInitial(client Subscriber, path string, resolve Deferred) {
	data, ok := resolve()
	if !ok {
		return
	}
	r.mu.Lock()
	stillSubscribed := r.isSubscribedLocked(client.ID(), path)
	r.mu.Unlock()
	if !stillSubscribed {
		return
	}
	r.sendInitial(client, path, data)
}

func (r *Registry) sendInitial(client Subscriber, path string, data any) {
	raw, err := r.encode(path, data)
	if err != nil {
		return
	}
	client.Send(raw)
}

// UnsubscribeClient removes the (client, path) pairing if present, pruning
// the path's client set when it becomes empty. Reports whether a change
// occurred.
func (r *Registry) UnsubscribeClient(client Subscriber, path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isSubscribedLocked(client.ID(), path) {
		return false
	}
	r.removeLocked(client.ID(), path)
	return true
}

// UnsubscribeAll removes every subscriber of path. Reports whether any
// client had been subscribed.
func (r *Registry) UnsubscribeAll(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.pathClients[path]
	if !ok || len(clients) == 0 {
		return false
	}
	for id := range clients {
		delete(r.clientPaths[id], path)
		if len(r.clientPaths[id]) == 0 {
			delete(r.clientPaths, id)
		}
	}
	delete(r.pathClients, path)
	return true
}

// RemoveClient drops every subscription held by client, as a disconnect
// does in one step (§3's invariant: a departing client leaves no trace in
// the registry).
func (r *Registry) RemoveClient(client Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for path := range r.clientPaths[client.ID()] {
		delete(r.pathClients[path], client.ID())
		if len(r.pathClients[path]) == 0 {
			delete(r.pathClients, path)
		}
	}
	delete(r.clientPaths, client.ID())
}

// Publish encodes data for path once and sends it to every client
// currently subscribed to path. A path with no subscribers is a no-op.
func (r *Registry) Publish(path string, data any) {
	r.mu.Lock()
	clients := r.pathClients[path]
	if len(clients) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]Subscriber, 0, len(clients))
	for _, c := range clients {
		targets = append(targets, c)
	}
	r.mu.Unlock()

	raw, err := r.encode(path, data)
	if err != nil {
		return
	}
	for _, c := range targets {
		c.Send(raw)
	}
}

// Subscriptions returns the paths client currently subscribes to.
func (r *Registry) Subscriptions(client Subscriber) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.clientPaths[client.ID()]))
	for p := range r.clientPaths[client.ID()] {
		paths = append(paths, p)
	}
	return paths
}

func (r *Registry) isSubscribedLocked(clientID, path string) bool {
	_, ok := r.clientPaths[clientID][path]
	return ok
}

func (r *Registry) addLocked(client Subscriber, path string) {
	if r.pathClients[path] == nil {
		r.pathClients[path] = make(map[string]Subscriber)
	}
	r.pathClients[path][client.ID()] = client

	if r.clientPaths[client.ID()] == nil {
		r.clientPaths[client.ID()] = make(map[string]struct{})
	}
	r.clientPaths[client.ID()][path] = struct{}{}
}

func (r *Registry) removeLocked(clientID, path string) {
	delete(r.pathClients[path], clientID)
	if len(r.pathClients[path]) == 0 {
		delete(r.pathClients, path)
	}
	delete(r.clientPaths[clientID], path)
	if len(r.clientPaths[clientID]) == 0 {
		delete(r.clientPaths, clientID)
	}
}
