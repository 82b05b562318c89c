package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-stream/internal/audio"
)

type audioSink interface {
	SendAudio(ctx context.Context, chunk []byte) error
	CloseSend(ctx context.Context) error
}

// audioSender reads input audio, converts it to PCM at the stream's sample
// rate and sends it in fixed-size chunks
type audioSender struct {
	encoding   audio.Encoding
	inputRate  int
	sampleRate int
	chunkSize  int
	interval   time.Duration
	vad        *audio.VADDetector
	logger     zerolog.Logger
}

// inputChunkSize is the number of input bytes that convert to about
// chunkSize bytes of PCM
func (s *audioSender) inputChunkSize() int {
	n := s.chunkSize
	if s.inputRate > 0 && s.sampleRate > 0 && s.inputRate != s.sampleRate {
		n = n * s.inputRate / s.sampleRate
	}
	if s.encoding == audio.EncodingMulaw {
		n /= 2
	} else {
		n &^= 1
	}
	return max(n, 2)
}

func (s *audioSender) convert(data []byte) ([]byte, error) {
	pcm, err := audio.ToPCM(s.encoding, data)
	if err != nil {
		return nil, err
	}
	if s.inputRate > 0 && s.inputRate != s.sampleRate {
		return audio.Resample(pcm, s.inputRate, s.sampleRate)
	}
	return pcm, nil
}

func (s *audioSender) run(ctx context.Context, sink audioSink, r io.Reader) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	buf := make([]byte, s.inputChunkSize())
	sent := 0
	for {
		n, err := io.ReadFull(r, buf)
		if s.encoding == audio.EncodingPCM {
			// a trailing odd byte is half a sample
			n &^= 1
		}
		var pcm []byte
		if n > 0 {
			var cerr error
			if pcm, cerr = s.convert(buf[:n]); cerr != nil {
				return fmt.Errorf("convert audio: %w", cerr)
			}
		}
		// downsampling a short tail can leave nothing to send
		if len(pcm) > 0 {
			if err := sink.SendAudio(ctx, pcm); err != nil {
				return err
			}
			sent += len(pcm)

			if s.vad != nil && s.vad.Observe(pcm) {
				s.logger.Info().Msg("Silence after speech, ending stream")
				break
			}
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read audio input: %w", err)
		}
	}

	s.logger.Info().Int("bytes", sent).Msg("Audio input finished")
	return sink.CloseSend(ctx)
}
