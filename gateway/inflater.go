package gateway

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// zlibWindowSize is the deflate back-reference window. Messages later in
// the stream may reference up to this many bytes of earlier output.
const zlibWindowSize = 32 * 1024

var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

// Inflater decompresses the gateway's zlib-stream transport. Frames are
// accumulated until one ends with the zlib sync flush suffix, at which
// point the pending bytes form one whole message. Each message is inflated
// as its own deflate chunk seeded with a dictionary of the last window of
// decompressed output, which is equivalent to keeping one decompressor
// alive for the lifetime of the connection.
type Inflater struct {
	compressed bytes.Buffer
	window     []byte
	started    bool
}

// NewInflater creates an inflater for a single connection.
func NewInflater() *Inflater {
	return &Inflater{}
}

// Extend appends raw frame bytes to the pending message.
func (i *Inflater) Extend(frame []byte) {
	i.compressed.Write(frame)
}

// Msg returns the next complete decompressed message, or nil when the
// pending bytes do not yet end on a flush marker.
func (i *Inflater) Msg() ([]byte, error) {
	chunk := i.compressed.Bytes()
	if !bytes.HasSuffix(chunk, zlibSuffix) {
		return nil, nil
	}

	if !i.started {
		// The first message starts with the 2 byte zlib header.
		if len(chunk) < 2 || chunk[0]&0x0f != 0x08 {
			return nil, fmt.Errorf("%w: bad zlib header", ErrDecompressing)
		}

		chunk = chunk[2:]
		i.started = true
	}

	reader := flate.NewReaderDict(bytes.NewReader(chunk), i.window)

	var msg bytes.Buffer
	_, err := io.Copy(&msg, reader)
	reader.Close()

	// The chunk ends mid stream on the sync flush marker, so the reader
	// runs out of input rather than seeing a final block.
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", ErrDecompressing, err)
	}

	i.compressed.Reset()

	out := make([]byte, msg.Len())
	copy(out, msg.Bytes())
	i.extendWindow(out)

	return out, nil
}

// Reset discards all stream state. Must be called between connections.
func (i *Inflater) Reset() {
	i.compressed.Reset()
	i.window = nil
	i.started = false
}

func (i *Inflater) extendWindow(out []byte) {
	i.window = append(i.window, out...)
	if len(i.window) > zlibWindowSize {
		tail := i.window[len(i.window)-zlibWindowSize:]
		i.window = append(i.window[:0:0], tail...)
	}
}
