// Package errors defines the error taxonomy shared by all layers of the
// otii-client library.
//
// Transport-level conditions (connection, framing, timeouts) are sentinel
// values so callers can test them with errors.Is. Server-reported failures
// are carried verbatim in RemoteError, which preserves the server's
// errorcode vocabulary and the category-specific detail fields.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for transport and correlation failures.
var (
	// ErrConnectionFailed means no stream connection could be established
	// within the connect deadline.
	ErrConnectionFailed = errors.New("otii: connection failed")

	// ErrPeerClosed means the server closed the connection (zero-length read).
	ErrPeerClosed = errors.New("otii: peer closed connection")

	// ErrConnectionBroken means a mid-session write failed.
	ErrConnectionBroken = errors.New("otii: connection broken")

	// ErrTimeout means no complete response arrived within the call's timeout.
	// The connection remains usable.
	ErrTimeout = errors.New("otii: timeout waiting for response")

	// ErrCorrelationMismatch means a response carried a transaction id other
	// than the one outstanding. This is a protocol-integrity fault: the call
	// fails rather than resolving with the wrong payload.
	ErrCorrelationMismatch = errors.New("otii: transaction id mismatch")

	// ErrLicenseUnavailable means no license usable for a wanted category
	// became available before the reservation deadline.
	ErrLicenseUnavailable = errors.New("otii: no license available")

	// ErrClosed means the connection has already been closed by the client.
	ErrClosed = errors.New("otii: connection closed")
)

// Server errorcode vocabulary. These are the exact strings the server puts
// in the "errorcode" field of an error response.
const (
	CodeCommandFailure     = "Command failure"
	CodeCommandNotValid    = "Command not valid for device type"
	CodeCommandTimeout     = "Command timeout"
	CodeConnectionDenied   = "Connection denied"
	CodeDeviceNotConnected = "Device not connected"
	CodeInvalidCommand     = "Invalid command"
	CodeInvalidKeyType     = "Invalid key type"
	CodeInvalidKeyValue    = "Invalid key value"
	CodeMissingKey         = "Missing key in request"
	CodeParseFailure       = "Not able to parse request"
	CodeRequestTooLarge    = "Request too large"
	CodeMissingFileName    = "Missing file name"
)

// RemoteError is a failure reported by the server for a single command.
// Code is one of the Code* constants above (unknown codes are passed
// through), Cmd is the command that failed, and Detail holds the
// category-specific fields of the error response's data object.
type RemoteError struct {
	Code   string
	Cmd    string
	Detail map[string]any
}

// NewRemoteError decodes the data object of an error response into a
// RemoteError. A missing or malformed data object yields an empty Detail.
func NewRemoteError(code, cmd string, data json.RawMessage) *RemoteError {
	e := &RemoteError{Code: code, Cmd: cmd}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &e.Detail)
	}
	return e
}

func (e *RemoteError) detail(key string) any {
	if e.Detail == nil {
		return ""
	}
	return e.Detail[key]
}

// Error renders the same category-specific details the server reports.
func (e *RemoteError) Error() string {
	switch e.Code {
	case CodeCommandFailure:
		return fmt.Sprintf("%s: %s: %v", e.Cmd, e.Code, e.detail("message"))
	case CodeDeviceNotConnected:
		return fmt.Sprintf("%s: %s: cannot find device with id %q", e.Cmd, e.Code, e.detail("device_id"))
	case CodeInvalidKeyType:
		return fmt.Sprintf("%s: %s: key %q expected %v, received %v",
			e.Cmd, e.Code, e.detail("key"), e.detail("expected_type"), e.detail("received_type"))
	case CodeInvalidKeyValue:
		return fmt.Sprintf("%s: %s: key %q value %v", e.Cmd, e.Code, e.detail("key"), e.detail("value"))
	case CodeMissingKey:
		return fmt.Sprintf("%s: %s: missing key %q", e.Cmd, e.Code, e.detail("key"))
	case CodeParseFailure:
		return fmt.Sprintf("%s: %s: %v", e.Cmd, e.Code, e.detail("parse_error"))
	case CodeRequestTooLarge:
		return fmt.Sprintf("%s: %s: received %v of max %v bytes",
			e.Cmd, e.Code, e.detail("read_size"), e.detail("max_size"))
	case CodeMissingFileName:
		return fmt.Sprintf("%s: %s: save failed, no file name specified", e.Cmd, e.Code)
	case "":
		return fmt.Sprintf("%s: server error", e.Cmd)
	default:
		return fmt.Sprintf("%s: %s", e.Cmd, e.Code)
	}
}

// AsRemote returns the RemoteError in err's chain, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsTimeout reports whether err is a response-wait timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// Is, As and New re-export the standard library helpers so callers of this
// package do not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
