// Package middleware provides call interceptors for the client.
//
// A Middleware wraps the function that performs one request/response
// exchange. Chain composes several into one, onion style: the first
// middleware in the list is the outermost layer.
package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// Call describes one outgoing command before it is written to the wire.
type Call struct {
	Cmd     string
	Data    any
	Timeout time.Duration // zero or less means wait without bound
}

// HandlerFunc performs the exchange for one call.
type HandlerFunc func(ctx context.Context, call *Call) (json.RawMessage, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, applied in the order given.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
