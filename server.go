package wspipe

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/wspipe/internal/protocol"
	"github.com/luciancaetano/wspipe/internal/registry"
	"github.com/luciancaetano/wspipe/internal/router"
	"github.com/luciancaetano/wspipe/internal/transport"
)

// Deferred is initial subscribe-time data that isn't available yet; see
// Server.Subscribe.
type Deferred = registry.Deferred

// Config configures a Server at construction time.
type Config struct {
	// Addr is the network address Start listens on (e.g. ":8080").
	Addr string

	// CheckOrigin validates the Origin header of incoming upgrade
	// requests. Defaults to rejecting cross-origin requests if nil, the
	// same safe default gorilla/websocket itself uses — set AllOrigins
	// explicitly for local development.
	CheckOrigin func(r *http.Request) bool

	// ErrorConverter overrides DefaultErrorConverter.
	ErrorConverter ErrorConverter

	// RateLimit bounds inbound frames per client. Defaults to
	// DefaultRateLimitConfig when nil.
	RateLimit *RateLimitConfig

	// IDGenerator overrides the default client-id generator.
	IDGenerator func() (string, error)

	// Metrics, when set, wires Prometheus instrumentation into the
	// accept/dispatch/publish paths.
	Metrics *Metrics

	// Tracer, when set, wraps each dispatched invocation in a span.
	// Defaults to the globally configured otel tracer (a no-op unless
	// the host application configured a provider).
	Tracer trace.Tracer
}

// Server owns one engine instance: the connection map, the route table, the
// subscription registry, and the dispatch pipeline that ties them together.
// Create one per HTTP attachment / listener; it is not meant to be shared
// across unrelated socket endpoints.
type Server struct {
	addr           string
	checkOrigin    func(r *http.Request) bool
	errorConverter ErrorConverter
	rateLimit      *RateLimitConfig
	idGen          func() (string, error)
	metrics        *Metrics
	tracer         trace.Tracer

	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu        sync.RWMutex
	running   bool
	clients   map[string]*Client
	limiters  map[string]*rate.Limiter

	routes   *router.Router[Handler]
	registry *registry.Registry

	onConnection  eventBus[func(*Client)]
	onError       eventBus[func(error)]
	onParserError eventBus[func(*Client, string)]
	onInvokeError eventBus[func(error, *Client, string)]
}

// New creates a Server from cfg. It does not start listening; call Start
// (or serve the Server's UpgradeHandler from your own mux) to accept
// connections.
func New(cfg Config) *Server {
	converter := cfg.ErrorConverter
	if converter == nil {
		converter = DefaultErrorConverter
	}
	rl := cfg.RateLimit
	if rl == nil {
		rl = DefaultRateLimitConfig()
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = defaultIDGenerator
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}

	s := &Server{
		addr:           cfg.Addr,
		checkOrigin:    cfg.CheckOrigin,
		errorConverter: converter,
		rateLimit:      rl,
		idGen:          idGen,
		metrics:        cfg.Metrics,
		tracer:         tracer,
		clients:        make(map[string]*Client),
		limiters:       make(map[string]*rate.Limiter),
		routes:         router.New[Handler](),
	}
	s.registry = registry.New(s.encodePublish)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RegisterRoute composes handlers into a single chain and appends
// (pattern, chain) to the route table. Routes are matched in registration
// order; the first match wins.
func (s *Server) RegisterRoute(pattern string, handlers ...Handler) error {
	chain, err := router.Compose(handlers...)
	if err != nil {
		return err
	}
	return s.routes.Add(pattern, chain)
}

// UpgradeHandler returns an http.HandlerFunc that upgrades the request to a
// WebSocket connection and runs it through the server's accept path. Embed
// it at whatever path your own HTTP mux routes to the socket endpoint.
func (s *Server) UpgradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "failed to upgrade connection", http.StatusBadRequest)
			return
		}
		s.accept(conn)
	}
}

// Start begins listening on cfg.Addr using a bare http.ServeMux that serves
// UpgradeHandler at "/ws". For composing with an existing HTTP server or
// router, use UpgradeHandler directly instead.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(ErrMsgServerAlreadyRunning)
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.UpgradeHandler())
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop closes every client, clears the connection map, and shuts down the
// HTTP server started by Start. Subscriptions are torn down implicitly via
// each client's disconnect path.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) accept(conn *websocket.Conn) {
	id, err := s.generateClientID()
	if err != nil {
		s.emitError(fmt.Errorf("wspipe: id generation failed: %w", err))
		conn.Close()
		return
	}

	sock := transport.NewGorillaSocket(conn)
	client := newClient(id, sock, s)

	s.mu.Lock()
	s.clients[id] = client
	s.limiters[id] = s.rateLimit.newLimiter()
	s.mu.Unlock()

	s.metrics.clientConnected()

	welcome, _ := protocol.EncodeValue(protocol.Welcome, "", "", protocol.ProtocolVersion)
	client.Send(welcome)
	s.emitConnection(client)

	go sock.ReadLoop(client.handleMessage, client.handleClose)
}

func (s *Server) generateClientID() (string, error) {
	for attempt := 0; attempt < 8; attempt++ {
		id, err := s.idGen()
		if err != nil {
			return "", err
		}
		s.mu.RLock()
		_, taken := s.clients[id]
		s.mu.RUnlock()
		if !taken {
			return id, nil
		}
	}
	return "", errors.New(ErrMsgUniqueIDExhausted)
}

func defaultIDGenerator() (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// handleClientMessage is the read loop's callback for each inbound frame:
// rate-limit, decode, and either dispatch an Invoke or (per spec) silently
// ignore any other frame type arriving on the server role.
func (s *Server) handleClientMessage(c *Client, raw string) {
	if limiter := s.limiterFor(c); limiter != nil && !limiter.Allow() {
		c.CloseWithCode(websocket.ClosePolicyViolation, "rate limit exceeded")
		return
	}

	frame, err := protocol.Decode(raw)
	if err != nil {
		s.metrics.parserErrorObserved()
		s.emitParserError(c, raw)
		c.Close()
		return
	}

	if frame.Type != protocol.Invoke {
		return
	}

	go s.runInvoke(c, frame)
}

func (s *Server) limiterFor(c *Client) *rate.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiters[c.ID()]
}

func terminalNext(ctx Context) (any, error) { return nil, nil }

func (s *Server) runInvoke(c *Client, frame *protocol.Frame) {
	match, ok := s.routes.Match(frame.Path)
	if !ok {
		s.sendError(c, frame.ID, errNotFound)
		s.metrics.invokeCompleted(errNotFound.Status)
		return
	}

	ctx := Context{
		Server: s,
		Client: c,
		Path:   match.Pattern,
		Params: match.Params,
		Splats: match.Splats,
		Body:   frame.Data,
	}

	_, span := startInvokeSpan(s.tracer, match.Pattern, c.ID())

	value, err := match.Action(ctx, terminalNext)
	if err != nil {
		status := s.handleInvokeError(c, frame, err)
		recordInvokeOutcome(span, status)
		span.End()
		return
	}

	s.sendResult(c, frame.ID, value)
	recordInvokeOutcome(span, http.StatusOK)
	span.End()
	s.metrics.invokeCompleted(http.StatusOK)
}

func (s *Server) handleInvokeError(c *Client, frame *protocol.Frame, err error) int {
	payload, convErr := s.errorConverter(err, c)
	if convErr != nil {
		s.emitError(fmt.Errorf("wspipe: error converter failed: %w", convErr))
		payload = &ErrorPayload{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
	}

	s.sendError(c, frame.ID, payload)
	s.metrics.invokeCompleted(payload.Status)

	if payload.Status == http.StatusInternalServerError {
		s.emitInvokeError(err, c, frame.Raw)
	}
	return payload.Status
}

func (s *Server) sendResult(c *Client, id string, value any) {
	raw, err := protocol.EncodeValue(protocol.Result, id, "", value)
	if err != nil {
		s.sendError(c, id, &ErrorPayload{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)})
		return
	}
	c.Send(raw)
}

func (s *Server) sendError(c *Client, id string, payload *ErrorPayload) {
	raw, err := protocol.EncodeValue(protocol.Error, id, "", payload)
	if err != nil {
		return
	}
	c.Send(raw)
}

// disconnect removes client from the clients map and prunes every
// subscription it held, in the same step, per §3's invariant.
func (s *Server) disconnect(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	delete(s.limiters, c.ID())
	s.mu.Unlock()

	s.registry.RemoveClient(registrySubscriber{c})
	c.clearSubscriptions()
	s.metrics.clientDisconnected()
}

// Subscribe adds client as a subscriber of path, optionally sending
// initial data (a plain value sent immediately, or a registry.Deferred
// resolved asynchronously — see the registry package for the exact
// semantics). A no-op if the client is already subscribed.
func (s *Server) Subscribe(client *Client, path string, initial ...any) {
	if s.registry.Subscribe(registrySubscriber{client}, path, initial...) {
		client.addSubscription(path)
	}
}

// UnsubscribeClient removes client's subscription to path, if present.
func (s *Server) UnsubscribeClient(client *Client, path string) bool {
	if s.registry.UnsubscribeClient(registrySubscriber{client}, path) {
		client.removeSubscription(path)
		return true
	}
	return false
}

// UnsubscribeAll removes every subscriber of path.
func (s *Server) UnsubscribeAll(path string) bool {
	return s.registry.UnsubscribeAll(path)
}

// Publish encodes data for path once and sends it to every client
// currently subscribed to path.
func (s *Server) Publish(path string, data any) {
	s.registry.Publish(path, data)
	s.metrics.publishFannedOut()
}

// GetClient looks up a connected client by id.
func (s *Server) GetClient(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *Server) encodePublish(path string, data any) (string, error) {
	return protocol.EncodeValue(protocol.Publish, "", path, data)
}
