package httpmsg

import (
	"bytes"
	"fmt"
)

// ChunkedDecoder incrementally decodes an HTTP/1.1 chunked-transfer
// body: each chunk is "hex-size CRLF data CRLF", and a chunk of size
// zero terminates the stream. A truncated tail is not an error; the
// caller keeps feeding bytes as they arrive.
type ChunkedDecoder struct {
	body []byte
	done bool
}

// NewChunkedDecoder returns an empty decoder.
func NewChunkedDecoder() *ChunkedDecoder {
	return &ChunkedDecoder{}
}

// Body returns the concatenation of decoded chunk payloads so far.
func (d *ChunkedDecoder) Body() []byte {
	return d.body
}

// Done reports whether the terminating zero-size chunk has been consumed.
func (d *ChunkedDecoder) Done() bool {
	return d.done
}

// Feed consumes as many complete chunks as data contains, appending their
// payloads to Body. It returns the number of bytes consumed from data;
// the caller should retain data[consumed:] and call Feed again once more
// bytes arrive, unless Done is already true or err is non-nil.
func (d *ChunkedDecoder) Feed(data []byte) (consumed int, err error) {
	pos := 0
	for pos < len(data) && !d.done {
		sizeEnd := bytes.Index(data[pos:], []byte("\r\n"))
		if sizeEnd < 0 {
			return pos, nil // NeedMore: size line not yet fully buffered
		}
		sizeLine := data[pos : pos+sizeEnd]
		if semi := bytes.IndexByte(sizeLine, ';'); semi >= 0 {
			sizeLine = sizeLine[:semi] // drop chunk extensions
		}
		size, err := parseHexSize(sizeLine)
		if err != nil {
			return pos, err
		}

		dataStart := pos + sizeEnd + 2
		if size == 0 {
			// Terminating chunk: still requires a trailing CRLF.
			if len(data) < dataStart+2 {
				return pos, nil // NeedMore
			}
			d.done = true
			return dataStart + 2, nil
		}

		need := dataStart + size + 2
		if len(data) < need {
			return pos, nil // NeedMore: chunk body not fully buffered
		}
		if data[dataStart+size] != '\r' || data[dataStart+size+1] != '\n' {
			return pos, fmt.Errorf("chunked: missing trailing CRLF after %d-byte chunk", size)
		}
		d.body = append(d.body, data[dataStart:dataStart+size]...)
		pos = need
	}
	return pos, nil
}

func parseHexSize(line []byte) (int, error) {
	if len(line) == 0 {
		return 0, fmt.Errorf("chunked: empty chunk-size line")
	}
	size := 0
	for _, c := range line {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return 0, fmt.Errorf("chunked: invalid chunk-size digit %q", c)
		}
		size = size<<4 | v
	}
	return size, nil
}

// EncodeChunk wraps payload in chunked-transfer framing for a single
// chunk: used by tests to exercise the round-trip property and by any
// future streaming encoder.
func EncodeChunk(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("0\r\n\r\n")
	}
	return []byte(fmt.Sprintf("%x\r\n%s\r\n", len(payload), payload))
}
