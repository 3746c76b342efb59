package ipc

import (
	"encoding/binary"
	"errors"

	"github.com/valyala/bytebufferpool"
)

var (
	ErrNeedMore              = errors.New("need to read more bytes")
	ErrBadMagic              = errors.New("invalid frame magic")
	ErrPayloadLengthOverflow = errors.New("payload length overflows")
)

const (
	// Magic opens every frame, in the host's byte order.
	Magic uint32 = 0x45564950

	Version = 1

	HeaderLen = 16 // bytes

	MaxExtraSize = 1<<16 - 1
	MaxDataSize  = 1024 * 1024 * 1024 // 1GB
)

// Flags of a frame header.
const (
	// FlagInfo marks a frame carrying control information rather than user
	// data.
	FlagInfo uint8 = 1 << 0
)

// Header layout:
//
//	0       4       5         6            8           12         16
//	| magic | flags | version | extra size | data size | reserved |
//
// Integers are in the host's byte order: frames never leave the machine.
const (
	offMagic     = 0
	offFlags     = 4
	offVersion   = 5
	offExtraSize = 6
	offDataSize  = 8
	offReserved  = 12
)

type Header struct {
	Flags     uint8
	Version   uint8
	ExtraSize uint16
	DataSize  uint32
}

func (h Header) Info() bool {
	return h.Flags&FlagInfo != 0
}

// Size returns the length of the frame including the header.
func (h Header) Size() int {
	return HeaderLen + int(h.ExtraSize) + int(h.DataSize)
}

// Frame is a decoded frame. Extra and Data alias the decoded bytes.
type Frame struct {
	Header
	Extra []byte
	Data  []byte
}

// FrameSize returns the encoded size of a frame.
func FrameSize(extra, data int) int {
	return HeaderLen + extra + data
}

func checkSizes(extra, data []byte) error {
	if len(extra) > MaxExtraSize || len(data) > MaxDataSize {
		return ErrPayloadLengthOverflow
	}
	return nil
}

// PutHeader writes h into b, which must hold at least HeaderLen bytes.
func PutHeader(b []byte, h Header) {
	_ = b[HeaderLen-1]
	binary.NativeEndian.PutUint32(b[offMagic:], Magic)
	b[offFlags] = h.Flags
	b[offVersion] = h.Version
	binary.NativeEndian.PutUint16(b[offExtraSize:], h.ExtraSize)
	binary.NativeEndian.PutUint32(b[offDataSize:], h.DataSize)
	binary.NativeEndian.PutUint32(b[offReserved:], 0)
}

// DecodeHeader parses the header at the start of b. A header is only valid
// if its magic matches exactly.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrNeedMore
	}
	if binary.NativeEndian.Uint32(b[offMagic:]) != Magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Flags:     b[offFlags],
		Version:   b[offVersion],
		ExtraSize: binary.NativeEndian.Uint16(b[offExtraSize:]),
		DataSize:  binary.NativeEndian.Uint32(b[offDataSize:]),
	}
	if h.DataSize > MaxDataSize {
		return Header{}, ErrPayloadLengthOverflow
	}
	return h, nil
}

// Put encodes a frame into b, which must hold FrameSize(len(extra),
// len(data)) bytes. It returns the number of bytes written.
func Put(b []byte, flags uint8, extra, data []byte) (int, error) {
	if err := checkSizes(extra, data); err != nil {
		return 0, err
	}
	n := FrameSize(len(extra), len(data))
	if len(b) < n {
		return 0, ErrNeedMore
	}

	PutHeader(b, Header{
		Flags:     flags,
		Version:   Version,
		ExtraSize: uint16(len(extra)),
		DataSize:  uint32(len(data)),
	})
	copy(b[HeaderLen:], extra)
	copy(b[HeaderLen+len(extra):], data)
	return n, nil
}

// Encode appends a frame to dst.
func Encode(dst *bytebufferpool.ByteBuffer, flags uint8, extra, data []byte) error {
	if err := checkSizes(extra, data); err != nil {
		return err
	}

	n := FrameSize(len(extra), len(data))
	from := len(dst.B)
	if cap(dst.B)-from < n {
		grown := make([]byte, from, from+n)
		copy(grown, dst.B)
		dst.B = grown
	}
	dst.B = dst.B[:from+n]

	_, err := Put(dst.B[from:], flags, extra, data)
	return err
}

// EncodePooled encodes a frame into a buffer taken from the pool. Hand the
// buffer back with bytebufferpool.Put once written out.
func EncodePooled(flags uint8, extra, data []byte) (*bytebufferpool.ByteBuffer, error) {
	b := bytebufferpool.Get()
	if err := Encode(b, flags, extra, data); err != nil {
		bytebufferpool.Put(b)
		return nil, err
	}
	return b, nil
}

// Decode parses the frame at the start of b and returns the number of bytes
// it spans. The frame aliases b.
func Decode(b []byte) (Frame, int, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, 0, err
	}
	n := h.Size()
	if len(b) < n {
		return Frame{}, 0, ErrNeedMore
	}
	extraEnd := HeaderLen + int(h.ExtraSize)
	return Frame{
		Header: h,
		Extra:  b[HeaderLen:extraEnd:extraEnd],
		Data:   b[extraEnd:n:n],
	}, n, nil
}
