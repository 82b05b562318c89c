package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-stream/internal/eventstream"
	"github.com/lexiqai/transcribe-stream/internal/stream"
	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

func testRequest() *transcribe.StreamRequest {
	return &transcribe.StreamRequest{
		LanguageCode:      "en-US",
		MediaSampleRateHz: 16000,
		MediaEncoding:     "pcm",
	}
}

// transcriptFrame encodes a TranscriptEvent with one final result
func transcriptFrame(t *testing.T, text string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"Transcript": map[string]any{
			"Results": []any{map[string]any{
				"ResultId":     "r1",
				"IsPartial":    false,
				"Alternatives": []any{map[string]any{"Transcript": text}},
			}},
		},
	})
	require.NoError(t, err)

	b, err := eventstream.Encode(eventstream.Frame{
		Headers: eventstream.Headers{
			{Name: transcribe.HeaderMessageType, Value: eventstream.StringValue(transcribe.MessageTypeEvent)},
			{Name: transcribe.HeaderEventType, Value: eventstream.StringValue(transcribe.EventTypeTranscript)},
			{Name: transcribe.HeaderContentType, Value: eventstream.StringValue(transcribe.ContentTypeJSON)},
		},
		Payload: payload,
	})
	require.NoError(t, err)
	return b
}

// collectTranscripts drains d and returns the first alternative of each event
func collectTranscripts(ctx context.Context, d *stream.Duplex) ([]string, error) {
	var texts []string
	for ev, err := range d.Events(ctx) {
		if err != nil {
			return texts, err
		}
		te, ok := ev.(*transcribe.TranscriptEvent)
		if !ok || len(te.Transcript.Results) == 0 || len(te.Transcript.Results[0].Alternatives) == 0 {
			continue
		}
		if alt := te.Transcript.Results[0].Alternatives[0].Transcript; alt != nil {
			texts = append(texts, *alt)
		}
	}
	return texts, nil
}
