package httpmsg

import "bytes"

// ByteBuffer is an append-only accumulator for incoming socket bytes,
// with a Consume method that discards a parsed prefix once a framer has
// claimed it. It never shrinks its backing array, favoring a single
// growing allocation over frequent resizes.
type ByteBuffer struct {
	data []byte
}

// NewByteBuffer returns an empty ByteBuffer.
func NewByteBuffer() *ByteBuffer {
	return &ByteBuffer{}
}

// Append adds b to the end of the buffer.
func (bb *ByteBuffer) Append(b []byte) {
	bb.data = append(bb.data, b...)
}

// Bytes returns the buffer's current unconsumed contents. The slice is
// only valid until the next Append or Consume call.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.data
}

// Len returns the number of unconsumed bytes.
func (bb *ByteBuffer) Len() int {
	return len(bb.data)
}

// Consume discards the first n bytes, shifting the remainder to the
// front of the backing array.
func (bb *ByteBuffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(bb.data) {
		bb.data = bb.data[:0]
		return
	}
	bb.data = append(bb.data[:0], bb.data[n:]...)
}

// Index returns the offset of the first occurrence of sep in the
// unconsumed buffer, or -1 if absent.
func (bb *ByteBuffer) Index(sep []byte) int {
	return bytes.Index(bb.data, sep)
}

// Reset empties the buffer for reuse across a keep-alive request boundary.
func (bb *ByteBuffer) Reset() {
	bb.data = bb.data[:0]
}
