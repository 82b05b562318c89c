package eventstream

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allTypesFrame() Frame {
	return Frame{
		Headers: Headers{
			{Name: "true", Value: BoolValue(true)},
			{Name: "false", Value: BoolValue(false)},
			{Name: "byte", Value: ByteValue(-7)},
			{Name: "short", Value: ShortValue(-1234)},
			{Name: "int", Value: IntValue(123456789)},
			{Name: "long", Value: LongValue(-9876543210)},
			{Name: "bytes", Value: BytesValue{0x00, 0xff, 0x10}},
			{Name: ":event-type", Value: StringValue("AudioEvent")},
			{Name: "timestamp", Value: TimestampValue(time.UnixMilli(1700000000123))},
			{Name: "uuid", Value: UUIDValue(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))},
		},
		Payload: []byte(`{"Transcript":{"Results":[]}}`),
	}
}

func TestEncode_EmptyFrame(t *testing.T) {
	data, err := Encode(Frame{})
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x00, 0x00, 0x10, // total length
		0x00, 0x00, 0x00, 0x00, // headers length
		0x05, 0xc2, 0x48, 0xeb, // prelude crc
		0x7d, 0x98, 0xc8, 0xff, // message crc
	}
	assert.Equal(t, expected, data)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"all header types", allTypesFrame()},
		{"no headers", Frame{Payload: []byte("payload only")}},
		{"no payload", Frame{Headers: Headers{{Name: ":message-type", Value: StringValue("event")}}}},
		{"binary payload", Frame{Payload: bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 4096)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.frame)
			require.NoError(t, err)

			frames, consumed, err := Decode(data)
			require.NoError(t, err)
			require.Len(t, frames, 1)
			assert.Equal(t, len(data), consumed)

			got := frames[0]
			require.Len(t, got.Headers, len(tt.frame.Headers))
			for i, want := range tt.frame.Headers {
				assert.Equal(t, want.Name, got.Headers[i].Name)
				assert.Equal(t, want.Value.Type(), got.Headers[i].Value.Type())
				assert.Equal(t, want.Value.String(), got.Headers[i].Value.String())
			}
			assert.Equal(t, len(tt.frame.Payload), len(got.Payload))
			if len(tt.frame.Payload) > 0 {
				assert.Equal(t, tt.frame.Payload, got.Payload)
			}
		})
	}
}

func TestDecode_TimestampAndUUID(t *testing.T) {
	data, err := Encode(allTypesFrame())
	require.NoError(t, err)

	f, _, err := DecodeFrame(data)
	require.NoError(t, err)

	ts, ok := f.Headers.Get("timestamp")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123), time.Time(ts.(TimestampValue)).UnixMilli())

	id, ok := f.Headers.Get("uuid")
	require.True(t, ok)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())

	assert.Equal(t, "AudioEvent", f.Headers.String(":event-type"))
	assert.Equal(t, "", f.Headers.String("int"), "non-string header reads as empty")
	assert.Equal(t, "", f.Headers.String("missing"))
}

func TestDecode_OneByteAtATime(t *testing.T) {
	data, err := Encode(allTypesFrame())
	require.NoError(t, err)

	for i := 0; i < len(data); i++ {
		frames, consumed, err := Decode(data[:i])
		require.NoError(t, err, "prefix of %d bytes", i)
		assert.Empty(t, frames, "prefix of %d bytes", i)
		assert.Equal(t, 0, consumed, "prefix of %d bytes", i)
	}

	frames, consumed, err := Decode(data)
	require.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.Equal(t, len(data), consumed)
}

func TestDecode_MultipleFramesWithRemainder(t *testing.T) {
	var stream []byte
	for _, p := range []string{"one", "two", "three"} {
		data, err := Encode(Frame{Payload: []byte(p)})
		require.NoError(t, err)
		stream = append(stream, data...)
	}
	partial, err := Encode(Frame{Payload: []byte("four")})
	require.NoError(t, err)
	full := len(stream)
	stream = append(stream, partial[:5]...)

	frames, consumed, err := Decode(stream)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, full, consumed)
	assert.Equal(t, "one", string(frames[0].Payload))
	assert.Equal(t, "two", string(frames[1].Payload))
	assert.Equal(t, "three", string(frames[2].Payload))

	rest := append(stream[consumed:], partial[5:]...)
	frames, consumed, err = Decode(rest)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, len(rest), consumed)
	assert.Equal(t, "four", string(frames[0].Payload))
}

func TestDecodeFrame_Incomplete(t *testing.T) {
	data, err := Encode(Frame{Payload: []byte("hello")})
	require.NoError(t, err)

	_, _, err = DecodeFrame(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrIncomplete)

	_, _, err = DecodeFrame(nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	f := Frame{
		Headers: Headers{{Name: ":message-type", Value: StringValue("event")}},
		Payload: []byte("audio"),
	}
	data, err := Encode(f)
	require.NoError(t, err)

	flip := func(byteIdx int, bit uint) []byte {
		corrupted := append([]byte(nil), data...)
		corrupted[byteIdx] ^= 1 << bit
		return corrupted
	}

	headerNameIdx := 12 + 1 // first byte of the first header name
	payloadIdx := len(data) - 4 - 1

	t.Run("payload bit", func(t *testing.T) {
		_, _, err := Decode(flip(payloadIdx, 3))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("header name bit", func(t *testing.T) {
		_, _, err := Decode(flip(headerNameIdx, 0))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("length bit", func(t *testing.T) {
		_, _, err := Decode(flip(3, 1))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("every bit", func(t *testing.T) {
		for i := range data {
			for bit := uint(0); bit < 8; bit++ {
				_, _, err := Decode(flip(i, bit))
				assert.ErrorIs(t, err, ErrChecksumMismatch, "byte %d bit %d", i, bit)
			}
		}
	})
}

func TestEncode_FrameTooLarge(t *testing.T) {
	_, err := Encode(Frame{Payload: make([]byte, MaxFrameLen)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = Encode(Frame{Payload: make([]byte, MaxFrameLen-MinFrameLen)})
	assert.NoError(t, err)
}

func TestEncode_InvalidHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers Headers
		want    error
	}{
		{"duplicate", Headers{{Name: "a", Value: IntValue(1)}, {Name: "a", Value: IntValue(2)}}, ErrDuplicateHeader},
		{"empty name", Headers{{Name: "", Value: IntValue(1)}}, ErrInvalidHeader},
		{"long name", Headers{{Name: string(bytes.Repeat([]byte("n"), 256)), Value: IntValue(1)}}, ErrInvalidHeader},
		{"nil value", Headers{{Name: "a"}}, ErrInvalidHeader},
		{"long string", Headers{{Name: "a", Value: StringValue(bytes.Repeat([]byte("v"), 32768))}}, ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(Frame{Headers: tt.headers})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHeaders_Set(t *testing.T) {
	var h Headers
	h.Set(":message-type", StringValue("event"))
	h.Set(":event-type", StringValue("AudioEvent"))
	h.Set(":message-type", StringValue("exception"))

	require.Len(t, h, 2)
	assert.Equal(t, ":message-type", h[0].Name)
	assert.Equal(t, "exception", h.String(":message-type"))
}

func TestFrameLen(t *testing.T) {
	data, err := Encode(Frame{Payload: []byte("abc")})
	require.NoError(t, err)

	n, err := FrameLen(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	_, err = FrameLen(data[:3])
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = FrameLen([]byte{0, 0, 0, 4})
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
