package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// Timeout caps every call's response wait at max. Calls that would wait
// without bound, such as bulk transfers, are given max instead; calls with
// a shorter timeout are left alone.
func Timeout(max time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (json.RawMessage, error) {
			if call.Timeout <= 0 || call.Timeout > max {
				call.Timeout = max
			}
			return next(ctx, call)
		}
	}
}
