package protocol

import (
	"bytes"
	"sync"
)

// bufferPool is a pool of bytes.Buffer objects reused by the envelope encoder.
// Encoded messages are copied out before the buffer returns to the pool.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Buffer{}
	},
}

// getBuffer gets a buffer from the pool
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool
func putBuffer(buf *bytes.Buffer) {
	// Don't pool buffers that are too large to avoid memory waste
	if buf.Cap() > 64*1024 {
		return
	}
	bufferPool.Put(buf)
}

// detach copies the buffer contents so the buffer can be pooled again
func detach(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
