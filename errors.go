package wspipe

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
)

// InvokeError is a handler-thrown error carrying an explicit status. The
// default error converter passes it through to the client verbatim (see
// spec §7's "HandlerRejection with explicit status"). Any other error type
// returned by a handler is treated as an unexpected failure and converted
// to a generic 500.
type InvokeError struct {
	Status  int
	Message string
	Body    any
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invoke error %d: %s", e.Status, e.Message)
}

// NewInvokeError builds an InvokeError with no body.
func NewInvokeError(status int, message string) *InvokeError {
	return &InvokeError{Status: status, Message: message}
}

// ErrorPayload is the JSON body sent in an Error frame.
type ErrorPayload struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Body    any    `json:"body,omitempty"`
}

// ErrorConverter turns a handler's returned error into a sanitized payload
// safe to send to the client. It may itself fail (the Go stand-in for "the
// converter throws"): the caller falls back to a generic 500 and emits an
// error signal carrying the conversion failure.
type ErrorConverter func(err error, client *Client) (*ErrorPayload, error)

// envProductionVar is checked by DefaultErrorConverter to decide whether to
// include debugging detail (message + stack) in generic error bodies.
// Absent or any value other than "production" is treated as development.
const envProductionVar = "WSPIPE_ENV"

func isProduction() bool {
	return os.Getenv(envProductionVar) == "production"
}

// DefaultErrorConverter recognizes *InvokeError and passes it through
// verbatim. Anything else becomes a generic 500; outside production mode
// the response body also carries the original message and, if the error
// didn't already set one, a stack trace, to help local debugging.
func DefaultErrorConverter(err error, client *Client) (*ErrorPayload, error) {
	if ie, ok := err.(*InvokeError); ok {
		return &ErrorPayload{Status: ie.Status, Message: ie.Message, Body: ie.Body}, nil
	}

	payload := &ErrorPayload{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError)}
	if !isProduction() {
		payload.Body = map[string]any{
			"message": err.Error(),
			"stack":   string(debug.Stack()),
		}
	}
	return payload, nil
}

var errNotFound = &ErrorPayload{Status: http.StatusNotFound, Message: ErrMsgNotFound}
