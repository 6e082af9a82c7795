// Package wire implements the framing used between zdb clients and the zdb
// server.
//
// Requests are a 4 byte little-endian payload length followed by the
// payload bytes, passed through unchanged. Responses are the string "0x", the
// payload length as 8 lowercase hexadecimal digits, and the payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/zdbg/zdb/pkg/logflags"
)

const (
	// HeaderLen is the size of a request header.
	HeaderLen = 4
	// DefaultCapacity is the largest request payload accepted by default.
	DefaultCapacity = 16 << 20

	responseHeaderLen = len("0x") + 8
)

// ErrMessageTooLarge is returned by Framer.Feed when a header announces a
// payload larger than the framer's capacity. The framer can not be used
// afterwards.
var ErrMessageTooLarge = errors.New("message exceeds receive buffer capacity")

// Framer reassembles requests from a byte stream.
type Framer struct {
	buf      []byte
	n        int  // bytes accumulated in buf
	expected int  // total size of the current request, valid if haveHdr
	haveHdr  bool // header of the current request parsed
	broken   bool
	log      logflags.Logger
}

// NewFramer returns a framer accepting payloads of up to capacity bytes.
// A capacity of zero or less selects DefaultCapacity.
func NewFramer(capacity int) *Framer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Framer{buf: make([]byte, HeaderLen+capacity), log: logflags.WireLogger()}
}

// Capacity returns the largest payload f accepts.
func (f *Framer) Capacity() int {
	return len(f.buf) - HeaderLen
}

// Buffered returns the number of bytes received that do not complete a
// request yet.
func (f *Framer) Buffered() int {
	return f.n
}

// Feed appends p to the stream and calls handle once for every request it
// completes, in order. The payload passed to handle does not alias the
// framer's buffer.
func (f *Framer) Feed(p []byte, handle func(payload string)) error {
	if f.broken {
		return ErrMessageTooLarge
	}
	for {
		k := copy(f.buf[f.n:], p)
		f.n += k
		p = p[k:]

		if err := f.drain(handle); err != nil {
			f.broken = true
			return err
		}
		if len(p) == 0 {
			return nil
		}
	}
}

// drain dispatches every complete request in the buffer.
func (f *Framer) drain(handle func(payload string)) error {
	for {
		if !f.haveHdr {
			if f.n < HeaderLen {
				return nil
			}
			size := binary.LittleEndian.Uint32(f.buf[:HeaderLen])
			if uint64(size) > uint64(f.Capacity()) {
				f.log.Errorf("request of %d bytes exceeds capacity %d", size, f.Capacity())
				return ErrMessageTooLarge
			}
			f.expected = HeaderLen + int(size)
			f.haveHdr = true
		}
		if f.n < f.expected {
			return nil
		}
		payload := string(f.buf[HeaderLen:f.expected])
		f.log.Debugf("<- %q", payload)
		f.n = copy(f.buf, f.buf[f.expected:f.n])
		f.haveHdr = false
		f.expected = 0
		handle(payload)
	}
}

// EncodeRequest frames payload as a request.
func EncodeRequest(payload string) []byte {
	b := make([]byte, HeaderLen+len(payload))
	binary.LittleEndian.PutUint32(b, uint32(len(payload)))
	copy(b[HeaderLen:], payload)
	return b
}

// WriteRequest writes payload to w as a request.
func WriteRequest(w io.Writer, payload string) error {
	_, err := w.Write(EncodeRequest(payload))
	return err
}

// EncodeResponse frames msg as a response.
func EncodeResponse(msg string) []byte {
	return []byte(fmt.Sprintf("0x%08x%s", len(msg), msg))
}

// ResponseError is returned by ReadResponse when the peer sends something
// that is not a response.
type ResponseError struct {
	Header string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("malformed response header %q", e.Header)
}

// ReadResponse reads one response from r.
func ReadResponse(r io.Reader) (string, error) {
	var hdr [responseHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	if hdr[0] != '0' || hdr[1] != 'x' {
		return "", &ResponseError{string(hdr[:])}
	}
	size, err := strconv.ParseUint(string(hdr[2:]), 16, 32)
	if err != nil {
		return "", &ResponseError{string(hdr[:])}
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		return "", err
	}
	return string(msg), nil
}
