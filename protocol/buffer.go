package protocol

import "bytes"

// Buffer accumulates raw stream bytes and splits them into complete
// delimiter-terminated message bodies.
//
// A single message may arrive split across many reads, and several messages
// may arrive concatenated in one read. Feed appends whatever arrived; Next
// pops one complete body per call, in arrival order, retaining any bytes
// after the last delimiter for the next read.
type Buffer struct {
	buf []byte
}

// Feed appends raw bytes received from the stream.
func (b *Buffer) Feed(p []byte) {
	b.buf = append(b.buf, p...)
}

// Next returns the next complete message body, without its delimiter.
// It returns false when no complete message is buffered yet.
func (b *Buffer) Next() ([]byte, bool) {
	i := bytes.Index(b.buf, []byte(Delimiter))
	if i < 0 {
		return nil, false
	}
	line := b.buf[:i]
	b.buf = b.buf[i+len(Delimiter):]
	return line, true
}

// Pending returns the number of buffered bytes not yet part of a complete
// message.
func (b *Buffer) Pending() int {
	return len(b.buf)
}
