package pool

import "sync"

// readBufferSize is the slice handed to each connection read loop.
const readBufferSize = 8192

// Read-buffer size classes, smallest first.
var bufferSizes = []int{2048, 8192, 32768}

var bufferPools = func() []*sync.Pool {
	pools := make([]*sync.Pool, len(bufferSizes))
	for i, size := range bufferSizes {
		sz := size
		pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}
	return pools
}()

// getBuffer returns a byte slice of at least size bytes, pooled when a
// size class fits.
func getBuffer(size int) []byte {
	for i, poolSize := range bufferSizes {
		if size <= poolSize {
			bufPtr := bufferPools[i].Get().(*[]byte)
			return (*bufPtr)[:size]
		}
	}
	return make([]byte, size)
}

// putBuffer returns a slice obtained from getBuffer. Foreign slices are
// left to the GC.
func putBuffer(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bufferSizes {
		if capacity == poolSize {
			full := buf[:capacity]
			bufferPools[i].Put(&full)
			return
		}
	}
}
