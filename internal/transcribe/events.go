package transcribe

import (
	"encoding/json"
	"fmt"

	"github.com/lexiqai/transcribe-stream/internal/eventstream"
)

const (
	EventTypeAudio         = "AudioEvent"
	EventTypeConfiguration = "ConfigurationEvent"

	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeJSON        = "application/json"

	// MaxAudioChunkSize is the largest audio chunk the service accepts in
	// one AudioEvent
	MaxAudioChunkSize = 32 * 1024
)

// ChannelDefinition assigns a participant role to an audio channel
type ChannelDefinition struct {
	ChannelID       int    `json:"ChannelId"`
	ParticipantRole string `json:"ParticipantRole"`
}

type PostCallAnalyticsSettings struct {
	OutputLocation           string  `json:"OutputLocation"`
	DataAccessRoleArn        string  `json:"DataAccessRoleArn"`
	OutputEncryptionKMSKeyID *string `json:"OutputEncryptionKMSKeyId,omitempty"`
	ContentRedactionOutput   *string `json:"ContentRedactionOutput,omitempty"`
}

// ConfigurationEvent is sent once, before any audio, on call analytics streams
type ConfigurationEvent struct {
	ChannelDefinitions        []ChannelDefinition        `json:"ChannelDefinitions"`
	PostCallAnalyticsSettings *PostCallAnalyticsSettings `json:"PostCallAnalyticsSettings,omitempty"`
}

// EncodeAudioEvent builds the frame for one audio chunk. An empty chunk is
// the end-of-stream marker.
func EncodeAudioEvent(chunk []byte) eventstream.Frame {
	return eventstream.Frame{
		Headers: eventHeaders(EventTypeAudio, ContentTypeOctetStream),
		Payload: chunk,
	}
}

// EncodeConfigurationEvent builds the frame for a configuration event
func EncodeConfigurationEvent(cfg ConfigurationEvent) (eventstream.Frame, error) {
	if cfg.ChannelDefinitions == nil {
		cfg.ChannelDefinitions = []ChannelDefinition{}
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return eventstream.Frame{}, fmt.Errorf("failed to marshal configuration event: %w", err)
	}
	return eventstream.Frame{
		Headers: eventHeaders(EventTypeConfiguration, ContentTypeJSON),
		Payload: payload,
	}, nil
}

func eventHeaders(eventType, contentType string) eventstream.Headers {
	return eventstream.Headers{
		{Name: HeaderMessageType, Value: eventstream.StringValue(MessageTypeEvent)},
		{Name: HeaderEventType, Value: eventstream.StringValue(eventType)},
		{Name: HeaderContentType, Value: eventstream.StringValue(contentType)},
	}
}
