package wspipe

import (
	"encoding/json"

	"github.com/luciancaetano/wspipe/internal/router"
)

// Context is the immutable-by-convention value threaded through a route's
// middleware chain. A handler that wants to pass extra information forward
// returns a copy with the field set rather than mutating ctx in place — Go's
// pass-by-value already gives every layer that guarantee for free.
type Context struct {
	Server *Server
	Client *Client

	// Path is the pattern that matched, not the raw invoked path.
	Path   string
	Params map[string]string
	Splats []string
	Body   json.RawMessage
}

// Next is the continuation a Handler may call to run the rest of the chain.
type Next = router.Next[Context]

// Handler is one link in a route's middleware chain. See router.Handler for
// the exact calling contract (may skip next, may forward a modified ctx).
type Handler = router.Handler[Context]

// Unmarshal decodes the invocation's body into v. Returns an error if the
// body is absent or is not valid JSON for v's shape.
func (c Context) Unmarshal(v any) error {
	if len(c.Body) == 0 {
		return errAbsentBody
	}
	return json.Unmarshal(c.Body, v)
}

var errAbsentBody = &InvokeError{Status: 400, Message: "invoke body is absent"}
