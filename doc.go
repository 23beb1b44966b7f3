// Package wspipe provides a lightweight RPC and publish/subscribe protocol
// multiplexed over a single WebSocket connection.
//
// Clients invoke named server-side procedures identified by path patterns
// and receive asynchronously published messages on paths the server has
// subscribed them to. The package implements the textual wire codec, an
// ordered-middleware dispatch router, the subscription registry, and the
// connection lifecycle that ties them together; the underlying transport
// socket, HTTP attachment, logging, and authentication are left to the host
// application.
//
// # Quick Start
//
//	server := wspipe.New(wspipe.Config{Addr: ":8080"})
//
//	server.RegisterRoute("/hello", func(ctx wspipe.Context, next wspipe.Next) (any, error) {
//	    return "hi", nil
//	})
//
//	server.RegisterRoute("/chat/:room", func(ctx wspipe.Context, next wspipe.Next) (any, error) {
//	    server.Subscribe(ctx.Client, "/chat/"+ctx.Params["room"])
//	    return nil, nil
//	})
//
//	server.Start(ctx)
//
// # Wire Format
//
// Each frame is UTF-8 text of the form:
//
//	<type-digit>["$" id]["~" percent-encoded-path] "|" [json-body]
//
// Type digits are 0=Welcome, 1=Invoke, 2=Result, 3=Error, 4=Publish. See
// the internal/protocol package for the exact validation rules.
//
// # Middleware
//
// RegisterRoute composes an ordered list of Handlers into one chain per
// route. A Handler may skip its next to short-circuit, or call next with a
// modified Context to pass extra data forward:
//
//	func withAuth(ctx wspipe.Context, next wspipe.Next) (any, error) {
//	    if !authorized(ctx) {
//	        return nil, wspipe.NewInvokeError(401, "unauthorized")
//	    }
//	    return next(ctx)
//	}
//
// # Errors
//
// A handler that returns a *wspipe.InvokeError controls exactly what status
// and message the client sees. Any other returned error becomes a generic
// 500, and the server's OnInvokeError signal fires so operators can tell
// expected client errors apart from genuine server failures.
//
// # Rate Limiting
//
// Each client is limited independently using a token bucket:
//
//	server := wspipe.New(wspipe.Config{
//	    Addr:      ":8080",
//	    RateLimit: wspipe.DefaultRateLimitConfig(), // 100 frames/s, burst 200
//	})
//
// Exceeding the limit closes the connection with close code 1008 (Policy
// Violation).
//
// # Concurrency
//
// The clients map, the subscription registry, and each client's
// subscription set are each guarded by their own mutex; no single lock
// covers all of them, so Subscribe, UnsubscribeClient and a disconnect
// update the registry and the client's own set in two separate steps.
// Handler execution itself runs concurrently across invocations so one
// slow handler never blocks unrelated traffic on the same or other
// connections.
package wspipe
