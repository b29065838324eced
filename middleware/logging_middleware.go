package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Logging logs every command with its duration and outcome.
func Logging(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) (json.RawMessage, error) {
			start := time.Now()
			data, err := next(ctx, call)
			ev := log.Debug()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("cmd", call.Cmd).Dur("duration", time.Since(start)).Msg("command")
			return data, err
		}
	}
}
