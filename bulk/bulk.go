// Package bulk retrieves large logical datasets through repeated
// bounded-size requests.
//
// The server refuses to return arbitrarily large value sequences in a single
// message, so a dataset addressed by (index, count) is fetched page by page
// and concatenated. Callers that know a channel kind is bounded by event
// count rather than sample volume (uart logs, current events) skip paging
// and request the full count in one call.
package bulk

import (
	"encoding/json"
	"fmt"
	"time"
)

// Sender issues one command and returns the response payload. Satisfied by
// *client.Client.
type Sender interface {
	SendTimeout(cmd string, data any, timeout time.Duration) (json.RawMessage, error)
}

// page is the shape of one paged response payload.
type page struct {
	Values []json.RawMessage `json:"values"`
}

// FetchAll retrieves totalCount values starting at startIndex by issuing
// requests of at most pageSize values each. baseParams is copied into each
// request with "index" and "count" set per page. Each page requests exactly
// min(remaining, pageSize) values and the index advances by the amount
// requested. Values are concatenated in arrival order.
//
// Page fetches wait without bound: a bulk transfer may legitimately take
// longer than the default control-command timeout.
//
// A totalCount of zero returns an empty result without issuing any request.
func FetchAll(s Sender, cmd string, baseParams map[string]any, startIndex, totalCount, pageSize int) ([]json.RawMessage, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("bulk: page size must be positive, got %d", pageSize)
	}
	values := make([]json.RawMessage, 0, totalCount)
	for read := 0; read < totalCount; {
		toRead := totalCount - read
		if toRead > pageSize {
			toRead = pageSize
		}
		params := make(map[string]any, len(baseParams)+2)
		for k, v := range baseParams {
			params[k] = v
		}
		params["index"] = startIndex + read
		params["count"] = toRead

		data, err := s.SendTimeout(cmd, params, 0)
		if err != nil {
			return nil, err
		}
		var p page
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("bulk: decode %s page at index %d: %w", cmd, startIndex+read, err)
		}
		values = append(values, p.Values...)
		read += toRead
	}
	return values, nil
}
