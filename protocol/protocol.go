// Package protocol implements the line-delimited JSON wire protocol spoken
// by the Otii server.
//
// Every message is a single JSON object terminated by CRLF. The "type" field
// tags the message kind; each kind is decoded once, at the framing boundary,
// into its own variant so downstream code can switch on the Go type instead
// of inspecting string fields.
//
// Wire format:
//
//	{"type":"request","cmd":"otii_get_devices","data":{...},"trans_id":"42"}\r\n
//	{"type":"response","trans_id":"42","cmd":"otii_get_devices","data":{...}}\r\n
//	{"type":"error","trans_id":"42","errorcode":"Invalid command","cmd":"...","data":{...}}\r\n
//	{"type":"information","info":"...","data":{...}}\r\n
//	{"type":"progress","cmd":"otii_open_project","progress_value":57}\r\n
//
// Information and progress messages are server-initiated and never carry a
// transaction id to be matched against a pending request.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Delimiter terminates every message on the wire.
const Delimiter = "\r\n"

// Type tags a message kind on the wire.
type Type string

const (
	TypeRequest     Type = "request"
	TypeResponse    Type = "response"
	TypeError       Type = "error"
	TypeInformation Type = "information"
	TypeProgress    Type = "progress"
)

// Message is one decoded unit of protocol traffic. The concrete type is one
// of *Request, *Response, *ErrorResponse, *Information or *Progress.
type Message interface {
	MessageType() Type
}

// Request is a client command. TransID is empty for fire-and-forget
// requests the server is not expected to acknowledge transactionally.
type Request struct {
	Cmd     string
	Data    any
	TransID string
}

// Response is a successful reply to the request with the same TransID.
type Response struct {
	TransID string
	Cmd     string
	Data    json.RawMessage
}

// ErrorResponse is a failed reply. ErrorCode is one of the server's fixed
// error categories; Data carries category-specific detail fields.
type ErrorResponse struct {
	TransID   string
	ErrorCode string
	Cmd       string
	Data      json.RawMessage
}

// Information is an out-of-band connection-lifecycle notice, including the
// greeting the server sends on connect.
type Information struct {
	Info string
	Data json.RawMessage
}

// Progress reports completion of a long-running command such as opening or
// saving a project.
type Progress struct {
	Cmd   string
	Value float64
}

func (*Request) MessageType() Type       { return TypeRequest }
func (*Response) MessageType() Type      { return TypeResponse }
func (*ErrorResponse) MessageType() Type { return TypeError }
func (*Information) MessageType() Type   { return TypeInformation }
func (*Progress) MessageType() Type      { return TypeProgress }

// envelope is the superset of wire fields across all message kinds.
type envelope struct {
	Type          Type            `json:"type"`
	Cmd           string          `json:"cmd,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	TransID       string          `json:"trans_id,omitempty"`
	ErrorCode     string          `json:"errorcode,omitempty"`
	Info          string          `json:"info,omitempty"`
	ProgressValue float64         `json:"progress_value,omitempty"`
}

// requestEnvelope keeps Data as any so callers can pass native Go values.
type requestEnvelope struct {
	Type    Type   `json:"type"`
	Cmd     string `json:"cmd"`
	Data    any    `json:"data,omitempty"`
	TransID string `json:"trans_id,omitempty"`
}

// Encode serializes a request and appends the message delimiter.
func Encode(req *Request) ([]byte, error) {
	b, err := json.Marshal(requestEnvelope{
		Type:    TypeRequest,
		Cmd:     req.Cmd,
		Data:    req.Data,
		TransID: req.TransID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.Cmd, err)
	}
	return append(b, Delimiter...), nil
}

// Decode parses one complete message body (without its delimiter) into the
// variant named by its type tag.
func Decode(line []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case TypeRequest:
		var data any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, fmt.Errorf("decode request data: %w", err)
			}
		}
		return &Request{Cmd: env.Cmd, Data: data, TransID: env.TransID}, nil
	case TypeResponse:
		return &Response{TransID: env.TransID, Cmd: env.Cmd, Data: env.Data}, nil
	case TypeError:
		return &ErrorResponse{TransID: env.TransID, ErrorCode: env.ErrorCode, Cmd: env.Cmd, Data: env.Data}, nil
	case TypeInformation:
		return &Information{Info: env.Info, Data: env.Data}, nil
	case TypeProgress:
		return &Progress{Cmd: env.Cmd, Value: env.ProgressValue}, nil
	default:
		return nil, fmt.Errorf("decode message: unknown type %q", env.Type)
	}
}
