package ipc

import "github.com/valyala/bytebufferpool"

// Decoder splits a byte stream, read from a pipe for example, into frames.
//
// Frames returned by Next alias the decoder's buffer and are only valid
// until the following call to Feed or Next.
type Decoder struct {
	buf *bytebufferpool.ByteBuffer
	off int
}

func NewDecoder() *Decoder {
	return &Decoder{buf: bytebufferpool.Get()}
}

// Feed appends b to the bytes waiting to be decoded.
func (d *Decoder) Feed(b []byte) {
	if d.off > 0 && d.off == len(d.buf.B) {
		d.buf.Reset()
		d.off = 0
	} else if d.off > len(d.buf.B)/2 {
		n := copy(d.buf.B, d.buf.B[d.off:])
		d.buf.B = d.buf.B[:n]
		d.off = 0
	}
	_, _ = d.buf.Write(b)
}

// Next returns the next complete frame, or ErrNeedMore. ErrBadMagic means
// the stream is desynchronized and should be dropped.
func (d *Decoder) Next() (Frame, error) {
	f, n, err := Decode(d.buf.B[d.off:])
	if err != nil {
		return Frame{}, err
	}
	d.off += n
	return f, nil
}

// Buffered returns the number of bytes fed but not decoded yet.
func (d *Decoder) Buffered() int {
	return len(d.buf.B) - d.off
}

// Release hands the buffer back to the pool. The decoder must not be used
// afterwards.
func (d *Decoder) Release() {
	if d.buf != nil {
		bytebufferpool.Put(d.buf)
		d.buf = nil
	}
}
