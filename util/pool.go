package util

import "sync"

// ReadBufSize is the most the server reads from a connection in one go.
// A request longer than this is split across reads and will not decode;
// the protocol has no framing to recover from that.
const ReadBufSize = 1024

// BufPool provides reusable read buffers for per-connection readers.
var BufPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReadBufSize)
		return &buf
	},
}

// GetBuf retrieves a buffer from the pool.  Callers must return it
// with [PutBuf] when finished.
func GetBuf() *[]byte {
	return BufPool.Get().(*[]byte)
}

// PutBuf returns a buffer to the pool for reuse.
func PutBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	BufPool.Put(buf)
}
