package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-stream/internal/audio"
)

// errEmptyChunk mirrors the stream rejecting an empty audio event
var errEmptyChunk = errors.New("empty audio chunk")

type recordingSink struct {
	chunks [][]byte
	closed bool
	err    error
}

func (s *recordingSink) SendAudio(_ context.Context, chunk []byte) error {
	if s.err != nil {
		return s.err
	}
	if len(chunk) == 0 {
		return errEmptyChunk
	}
	s.chunks = append(s.chunks, append([]byte(nil), chunk...))
	return nil
}

func (s *recordingSink) CloseSend(context.Context) error {
	s.closed = true
	return nil
}

func pcmSamples(n int, amplitude int16) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func TestAudioSender_ChunksPCM(t *testing.T) {
	s := &audioSender{encoding: audio.EncodingPCM, sampleRate: 16000, chunkSize: 100, logger: zerolog.Nop()}
	sink := &recordingSink{}

	// 250 bytes plus a dangling odd byte
	input := append(pcmSamples(125, 1000), 0x01)
	require.NoError(t, s.run(context.Background(), sink, bytes.NewReader(input)))

	require.Len(t, sink.chunks, 3)
	assert.Len(t, sink.chunks[0], 100)
	assert.Len(t, sink.chunks[1], 100)
	assert.Len(t, sink.chunks[2], 50)
	assert.Equal(t, input[:250], bytes.Join(sink.chunks, nil))
	assert.True(t, sink.closed)
}

func TestAudioSender_ConvertsMulaw(t *testing.T) {
	s := &audioSender{encoding: audio.EncodingMulaw, sampleRate: 8000, chunkSize: 8, logger: zerolog.Nop()}
	sink := &recordingSink{}

	require.NoError(t, s.run(context.Background(), sink, bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x80})))

	require.Len(t, sink.chunks, 2)
	assert.Equal(t, make([]byte, 8), sink.chunks[0])
	assert.Len(t, sink.chunks[1], 2)
	assert.True(t, sink.closed)
}

func TestAudioSender_Resamples(t *testing.T) {
	s := &audioSender{encoding: audio.EncodingPCM, inputRate: 8000, sampleRate: 16000, chunkSize: 200, logger: zerolog.Nop()}
	assert.Equal(t, 100, s.inputChunkSize())

	sink := &recordingSink{}
	require.NoError(t, s.run(context.Background(), sink, bytes.NewReader(pcmSamples(50, 100))))
	require.Len(t, sink.chunks, 1)
	assert.Len(t, sink.chunks[0], 200)
}

func TestAudioSender_SkipsEmptyResampledTail(t *testing.T) {
	s := &audioSender{encoding: audio.EncodingPCM, inputRate: 48000, sampleRate: 8000, chunkSize: 200, logger: zerolog.Nop()}
	require.Equal(t, 1200, s.inputChunkSize())
	sink := &recordingSink{}

	// one full chunk plus a single sample that resamples to nothing
	input := pcmSamples(601, 100)
	require.NoError(t, s.run(context.Background(), sink, bytes.NewReader(input)))

	require.Len(t, sink.chunks, 1)
	assert.Len(t, sink.chunks[0], 200)
	assert.True(t, sink.closed)
}

func TestAudioSender_InputChunkSize(t *testing.T) {
	tests := []struct {
		name string
		s    audioSender
		want int
	}{
		{"pcm", audioSender{encoding: audio.EncodingPCM, sampleRate: 16000, chunkSize: 3200}, 3200},
		{"mulaw", audioSender{encoding: audio.EncodingMulaw, sampleRate: 8000, chunkSize: 3200}, 1600},
		{"downsample keeps samples whole", audioSender{encoding: audio.EncodingPCM, inputRate: 11025, sampleRate: 16000, chunkSize: 3200}, 2204},
		{"minimum", audioSender{encoding: audio.EncodingMulaw, sampleRate: 8000, chunkSize: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.inputChunkSize())
		})
	}
}

func TestAudioSender_StopsAfterSilence(t *testing.T) {
	vad := audio.DefaultVADConfig(8000)
	vad.Hangover = 100 * time.Millisecond
	s := &audioSender{
		encoding:   audio.EncodingPCM,
		sampleRate: 8000,
		chunkSize:  800, // 50ms
		vad:        audio.NewVADDetector(vad),
		logger:     zerolog.Nop(),
	}

	var input []byte
	input = append(input, pcmSamples(400, 8000)...) // speech
	input = append(input, make([]byte, 800*10)...) // 500ms of silence
	sink := &recordingSink{}
	require.NoError(t, s.run(context.Background(), sink, bytes.NewReader(input)))

	assert.Less(t, len(sink.chunks), 11, "sender should stop before the input ends")
	assert.True(t, sink.closed)
}

func TestAudioSender_SendError(t *testing.T) {
	boom := errors.New("send failed")
	s := &audioSender{encoding: audio.EncodingPCM, sampleRate: 16000, chunkSize: 100, logger: zerolog.Nop()}
	sink := &recordingSink{err: boom}

	err := s.run(context.Background(), sink, bytes.NewReader(pcmSamples(100, 1)))
	assert.ErrorIs(t, err, boom)
	assert.False(t, sink.closed)
}

func TestAudioSender_RealtimeCanceled(t *testing.T) {
	s := &audioSender{encoding: audio.EncodingPCM, sampleRate: 16000, chunkSize: 100, interval: time.Hour, logger: zerolog.Nop()}
	sink := &recordingSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.run(ctx, sink, bytes.NewReader(pcmSamples(200, 1)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, sink.chunks, 1)
}
