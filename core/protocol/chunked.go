package protocol

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var ErrBadChunkedLength = errors.New("bad chunked length")

// maxChunkLineScan bounds how many bytes may be buffered while looking for
// the CRLF that terminates a chunk-size line.
const maxChunkLineScan = 1024

// ChunkedDecoder reassembles an RFC 7230 chunked body. Each decoded chunk
// of payload is handed to onData before being discarded, so only the chunk
// currently in flight is held.
type ChunkedDecoder struct {
	// pending bytes owed for the current chunk, trailing CRLF included.
	// Zero means the next bytes are a chunk-size line.
	length int
	buf    []byte
	onData func([]byte)
}

// NewChunkedDecoder creates a decoder delivering payload slices to onData.
// The slices are only valid for the duration of the call.
func NewChunkedDecoder(onData func([]byte)) *ChunkedDecoder {
	return &ChunkedDecoder{onData: onData}
}

// Feed consumes the next piece of the wire stream. It reports done=true
// once the terminating zero-length chunk has been seen.
func (d *ChunkedDecoder) Feed(p []byte) (done bool, err error) {
	d.buf = append(d.buf, p...)
	return d.drain()
}

func (d *ChunkedDecoder) drain() (bool, error) {
	for {
		if d.length == 0 {
			crlf := bytes.Index(d.buf, []byte("\r\n"))
			if crlf == -1 {
				if len(d.buf) > maxChunkLineScan {
					return false, ErrBadChunkedLength
				}
				return false, nil
			}

			line := string(d.buf[:crlf])
			d.buf = d.buf[crlf+2:]

			// Chunk extensions after ';' are ignored.
			if semi := strings.IndexByte(line, ';'); semi != -1 {
				line = line[:semi]
			}
			line = strings.TrimLeft(strings.TrimSpace(line), "0")
			if line == "" {
				return true, nil
			}

			n, err := strconv.ParseInt(line, 16, 64)
			if err != nil || n < 0 {
				return false, ErrBadChunkedLength
			}
			d.length = int(n) + 2 // payload plus its trailing CRLF
		}

		if len(d.buf) < d.length {
			return false, nil
		}

		if d.onData != nil {
			d.onData(d.buf[:d.length-2])
		}
		d.buf = d.buf[d.length:]
		d.length = 0
	}
}
