package middleware

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"
)

// RateLimit throttles outgoing commands with a token bucket. Instrument
// servers drop sessions that flood control commands; a client-side limiter
// keeps tight polling loops under the server's threshold.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (json.RawMessage, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return next(ctx, call)
		}
	}
}
