package wspipe

import "sync"

// eventBus is a minimal typed callback registry: append-only registration,
// synchronous fan-out on emit. It stands in for the source's dynamic
// runtime event emission (spec §9's design note) as a strongly-typed
// alternative — one bus per signal shape rather than one generic emitter.
type eventBus[F any] struct {
	mu        sync.RWMutex
	listeners []F
}

func (b *eventBus[F]) add(fn F) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

func (b *eventBus[F]) each(fn func(F)) {
	b.mu.RLock()
	listeners := make([]F, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

// OnConnection registers fn to run after a new client's welcome frame has
// been sent.
func (s *Server) OnConnection(fn func(*Client)) {
	s.onConnection.add(fn)
}

// OnError registers fn to run on a general engine or error-converter
// failure.
func (s *Server) OnError(fn func(error)) {
	s.onError.add(fn)
}

// OnParserError registers fn to run whenever an inbound frame fails to
// decode; fn receives the offending client and the raw message.
func (s *Server) OnParserError(fn func(client *Client, rawMessage string)) {
	s.onParserError.add(fn)
}

// OnInvokeError registers fn to run whenever a handler's rejection was
// converted to a 500, letting operators distinguish genuine server errors
// from expected client-facing ones.
func (s *Server) OnInvokeError(fn func(err error, client *Client, originalInvokeMessage string)) {
	s.onInvokeError.add(fn)
}

func (s *Server) emitConnection(c *Client) {
	s.onConnection.each(func(fn func(*Client)) { fn(c) })
}

func (s *Server) emitError(err error) {
	s.onError.each(func(fn func(error)) { fn(err) })
}

func (s *Server) emitParserError(c *Client, raw string) {
	s.onParserError.each(func(fn func(*Client, string)) { fn(c, raw) })
}

func (s *Server) emitInvokeError(err error, c *Client, raw string) {
	s.onInvokeError.each(func(fn func(error, *Client, string)) { fn(err, c, raw) })
}

// OnClose registers fn to run once the underlying transport closes.
func (c *Client) OnClose(fn func(reason string, err error)) {
	c.onClose.add(fn)
}

// OnError registers fn to run on a transport-level error.
func (c *Client) OnError(fn func(error)) {
	c.onError.add(fn)
}

func (c *Client) emitClose(reason string, err error) {
	c.onClose.each(func(fn func(string, error)) { fn(reason, err) })
}

func (c *Client) emitError(err error) {
	c.onError.each(func(fn func(error)) { fn(err) })
}
