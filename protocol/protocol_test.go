package protocol

import (
	"strings"
	"testing"
)

func TestEncodeRequest(t *testing.T) {
	req := &Request{
		Cmd:     "otii_get_device_id",
		Data:    map[string]any{"device_name": "Arc"},
		TransID: "7",
	}
	b, err := Encode(req)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	line := string(b)
	if !strings.HasSuffix(line, Delimiter) {
		t.Errorf("encoded message missing delimiter: %q", line)
	}
	for _, want := range []string{`"type":"request"`, `"cmd":"otii_get_device_id"`, `"trans_id":"7"`, `"device_name":"Arc"`} {
		if !strings.Contains(line, want) {
			t.Errorf("encoded message missing %s: %q", want, line)
		}
	}
}

func TestEncodeFireAndForgetOmitsTransID(t *testing.T) {
	b, err := Encode(&Request{Cmd: "otii_shutdown"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(b), "trans_id") {
		t.Errorf("fire-and-forget request must not carry a trans_id: %q", b)
	}
}

func TestDecodeResponse(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"response","trans_id":"3","cmd":"otii_get_devices","data":{"devices":[]}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	resp, ok := msg.(*Response)
	if !ok {
		t.Fatalf("expected *Response, got %T", msg)
	}
	if resp.TransID != "3" || resp.Cmd != "otii_get_devices" {
		t.Errorf("unexpected response fields: %+v", resp)
	}
	if string(resp.Data) != `{"devices":[]}` {
		t.Errorf("data not preserved verbatim: %s", resp.Data)
	}
}

func TestDecodeError(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"error","trans_id":"4","errorcode":"Invalid command","cmd":"bogus","data":{}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	e, ok := msg.(*ErrorResponse)
	if !ok {
		t.Fatalf("expected *ErrorResponse, got %T", msg)
	}
	if e.ErrorCode != "Invalid command" || e.TransID != "4" {
		t.Errorf("unexpected error fields: %+v", e)
	}
}

func TestDecodeErrorWithoutTransID(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"error","errorcode":"Not able to parse request","data":{"parse_error":"unexpected token"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	e := msg.(*ErrorResponse)
	if e.TransID != "" {
		t.Errorf("expected empty trans_id, got %q", e.TransID)
	}
}

func TestDecodeInformation(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"information","info":"Otii server","data":{"otii_version":"3.5.6"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	info, ok := msg.(*Information)
	if !ok {
		t.Fatalf("expected *Information, got %T", msg)
	}
	if info.Info != "Otii server" {
		t.Errorf("unexpected info: %q", info.Info)
	}
}

func TestDecodeProgress(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"progress","cmd":"otii_open_project","progress_value":57.5}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	p, ok := msg.(*Progress)
	if !ok {
		t.Fatalf("expected *Progress, got %T", msg)
	}
	if p.Cmd != "otii_open_project" || p.Value != 57.5 {
		t.Errorf("unexpected progress fields: %+v", p)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"heartbeat"}`)); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"response"`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestBufferSplitAcrossReads(t *testing.T) {
	var b Buffer
	b.Feed([]byte(`{"type":"progress","cmd":`))
	if _, ok := b.Next(); ok {
		t.Fatal("Next returned a message from an incomplete read")
	}
	b.Feed([]byte(`"x","progress_value":1}` + Delimiter))
	line, ok := b.Next()
	if !ok {
		t.Fatal("expected a complete message after second read")
	}
	if _, err := Decode(line); err != nil {
		t.Errorf("reassembled message does not decode: %v", err)
	}
	if b.Pending() != 0 {
		t.Errorf("expected empty buffer, %d bytes pending", b.Pending())
	}
}

func TestBufferConcatenatedMessages(t *testing.T) {
	var b Buffer
	b.Feed([]byte(`{"type":"information","info":"a"}` + Delimiter +
		`{"type":"information","info":"b"}` + Delimiter +
		`{"type":"infor`))

	for _, want := range []string{"a", "b"} {
		line, ok := b.Next()
		if !ok {
			t.Fatalf("expected message %q to be complete", want)
		}
		msg, err := Decode(line)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if info := msg.(*Information).Info; info != want {
			t.Errorf("messages out of order: got %q, want %q", info, want)
		}
	}
	if _, ok := b.Next(); ok {
		t.Error("Next returned a message from a partial tail")
	}
	if b.Pending() == 0 {
		t.Error("partial tail must stay buffered")
	}
}
