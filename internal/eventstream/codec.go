// Package eventstream implements the binary event-stream framing used by the
// streaming transcription service.
//
// Wire layout, all integers big-endian:
//
//	[total-length:4][headers-length:4][prelude-crc:4][headers][payload][message-crc:4]
//
// The prelude CRC covers the first 8 bytes, the message CRC covers everything
// before it. Both are CRC-32 (IEEE).
package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	preludeLen = 8
	crcLen     = 4

	// MinFrameLen is the size of a frame with no headers and no payload
	MinFrameLen = preludeLen + crcLen + crcLen

	// MaxFrameLen is the largest total frame size the service accepts
	MaxFrameLen = 16 * 1024 * 1024

	// MaxHeadersLen is the largest header block the service accepts
	MaxHeadersLen = 128 * 1024
)

var (
	// ErrIncomplete means the buffer holds only part of a frame. It is a
	// signal to read more bytes and try again, not a failure.
	ErrIncomplete = errors.New("eventstream: incomplete frame")

	// ErrChecksumMismatch means a CRC did not match its byte range. Frame
	// boundaries cannot be trusted after it.
	ErrChecksumMismatch = errors.New("eventstream: checksum mismatch")

	ErrFrameTooLarge   = errors.New("eventstream: frame too large")
	ErrInvalidFrame    = errors.New("eventstream: invalid frame")
	ErrInvalidHeader   = errors.New("eventstream: invalid header")
	ErrDuplicateHeader = errors.New("eventstream: duplicate header")
)

// Frame is one decoded event-stream message
type Frame struct {
	Headers Headers
	Payload []byte
}

// Encode serializes a frame into its wire form
func Encode(f Frame) ([]byte, error) {
	if err := f.Headers.validate(); err != nil {
		return nil, err
	}

	headersLen := f.Headers.encodedLen()
	if headersLen > MaxHeadersLen {
		return nil, fmt.Errorf("%w: header block is %d bytes, max %d", ErrFrameTooLarge, headersLen, MaxHeadersLen)
	}
	totalLen := MinFrameLen + headersLen + len(f.Payload)
	if totalLen > MaxFrameLen {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFrameTooLarge, totalLen, MaxFrameLen)
	}

	buf := make([]byte, totalLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(totalLen))
	binary.BigEndian.PutUint32(buf[4:8], uint32(headersLen))
	binary.BigEndian.PutUint32(buf[8:12], crc32.ChecksumIEEE(buf[:preludeLen]))

	off := preludeLen + crcLen
	f.Headers.put(buf[off : off+headersLen])
	off += headersLen
	off += copy(buf[off:], f.Payload)

	binary.BigEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf, nil
}

// FrameLen reads the total length declared by a frame prelude. It does not
// verify the prelude checksum.
func FrameLen(prelude []byte) (int, error) {
	if len(prelude) < 4 {
		return 0, ErrIncomplete
	}
	n := int(binary.BigEndian.Uint32(prelude))
	if n < MinFrameLen {
		return 0, fmt.Errorf("%w: declared length %d", ErrInvalidFrame, n)
	}
	if n > MaxFrameLen {
		return 0, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, n)
	}
	return n, nil
}

// DecodeFrame decodes the frame at the start of buf and returns it with the
// number of bytes it occupied. It returns ErrIncomplete when buf does not yet
// hold the whole frame.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < preludeLen+crcLen {
		return Frame{}, 0, ErrIncomplete
	}

	// The prelude checksum is verified before trusting the lengths so a
	// corrupted length fails now instead of waiting for bytes that never come.
	if got, want := crc32.ChecksumIEEE(buf[:preludeLen]), binary.BigEndian.Uint32(buf[8:12]); got != want {
		return Frame{}, 0, fmt.Errorf("%w: prelude crc %08x, expected %08x", ErrChecksumMismatch, got, want)
	}

	totalLen, err := FrameLen(buf)
	if err != nil {
		return Frame{}, 0, err
	}
	headersLen := int(binary.BigEndian.Uint32(buf[4:8]))
	if headersLen > MaxHeadersLen || headersLen > totalLen-MinFrameLen {
		return Frame{}, 0, fmt.Errorf("%w: header block length %d in %d byte frame", ErrInvalidFrame, headersLen, totalLen)
	}
	if len(buf) < totalLen {
		return Frame{}, 0, ErrIncomplete
	}

	msgEnd := totalLen - crcLen
	if got, want := crc32.ChecksumIEEE(buf[:msgEnd]), binary.BigEndian.Uint32(buf[msgEnd:totalLen]); got != want {
		return Frame{}, 0, fmt.Errorf("%w: message crc %08x, expected %08x", ErrChecksumMismatch, got, want)
	}

	off := preludeLen + crcLen
	headers, err := decodeHeaders(buf[off : off+headersLen])
	if err != nil {
		return Frame{}, 0, err
	}
	off += headersLen

	payload := make([]byte, msgEnd-off)
	copy(payload, buf[off:msgEnd])

	return Frame{Headers: headers, Payload: payload}, totalLen, nil
}

// Decode consumes every complete frame at the start of buf. The caller keeps
// buf[consumed:] and prepends it to the next read. Decode holds no state
// between calls.
func Decode(buf []byte) (frames []Frame, consumed int, err error) {
	for {
		f, n, err := DecodeFrame(buf[consumed:])
		if errors.Is(err, ErrIncomplete) {
			return frames, consumed, nil
		}
		if err != nil {
			return frames, consumed, err
		}
		frames = append(frames, f)
		consumed += n
	}
}
