package transcribe

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	PathStreamTranscription              = "/stream-transcription"
	PathCallAnalyticsStreamTranscription = "/call-analytics-stream-transcription"

	headerPrefix = "x-amzn-transcribe-"
)

// StreamRequest holds the parameters sent as HTTP headers when a stream is
// opened. Empty and nil fields are not sent. Values are passed through as
// given.
type StreamRequest struct {
	// CallAnalytics selects the call analytics endpoint, which emits
	// UtteranceEvent and CategoryEvent instead of TranscriptEvent
	CallAnalytics bool

	LanguageCode      string
	MediaSampleRateHz int
	MediaEncoding     string
	SessionID         string

	VocabularyName            string
	VocabularyFilterName      string
	VocabularyFilterMethod    string
	LanguageModelName         string
	ShowSpeakerLabel          *bool
	EnableChannelID           *bool
	NumberOfChannels          int
	EnablePartialStability    *bool
	PartialResultsStability   string
	ContentIdentificationType string
	ContentRedactionType      string
	PIIEntityTypes            string
	IdentifyLanguage          *bool
	LanguageOptions           string
	PreferredLanguage         string
}

// Path returns the request path for the endpoint the request targets
func (r *StreamRequest) Path() string {
	if r.CallAnalytics {
		return PathCallAnalyticsStreamTranscription
	}
	return PathStreamTranscription
}

// Header returns the request parameters as HTTP headers
func (r *StreamRequest) Header() http.Header {
	h := http.Header{}
	setStr := func(name, v string) {
		if v != "" {
			h.Set(headerPrefix+name, v)
		}
	}
	setInt := func(name string, v int) {
		if v != 0 {
			h.Set(headerPrefix+name, strconv.Itoa(v))
		}
	}
	setBool := func(name string, v *bool) {
		if v != nil {
			h.Set(headerPrefix+name, strconv.FormatBool(*v))
		}
	}

	setStr("language-code", r.LanguageCode)
	setInt("sample-rate", r.MediaSampleRateHz)
	setStr("media-encoding", r.MediaEncoding)
	setStr("session-id", r.SessionID)
	setStr("vocabulary-name", r.VocabularyName)
	setStr("vocabulary-filter-name", r.VocabularyFilterName)
	setStr("vocabulary-filter-method", r.VocabularyFilterMethod)
	setStr("language-model-name", r.LanguageModelName)
	setBool("enable-partial-results-stabilization", r.EnablePartialStability)
	setStr("partial-results-stability", r.PartialResultsStability)
	setStr("content-identification-type", r.ContentIdentificationType)
	setStr("content-redaction-type", r.ContentRedactionType)
	setStr("pii-entity-types", r.PIIEntityTypes)

	// Not accepted by the call analytics endpoint
	if !r.CallAnalytics {
		setBool("show-speaker-label", r.ShowSpeakerLabel)
		setBool("enable-channel-identification", r.EnableChannelID)
		setInt("number-of-channels", r.NumberOfChannels)
		setBool("identify-language", r.IdentifyLanguage)
		setStr("language-options", r.LanguageOptions)
		setStr("preferred-language", r.PreferredLanguage)
	}

	h.Set("Content-Type", ContentTypeOctetStream)
	return h
}

// WebsocketPath returns the request path for the websocket form of the endpoint
func (r *StreamRequest) WebsocketPath() string {
	return r.Path() + "-websocket"
}

// Query returns the request parameters in the query string form used by the
// websocket endpoint: the header names without their prefix
func (r *StreamRequest) Query() url.Values {
	q := url.Values{}
	for name, values := range r.Header() {
		name = strings.ToLower(name)
		if !strings.HasPrefix(name, headerPrefix) {
			continue
		}
		q[strings.TrimPrefix(name, headerPrefix)] = values
	}
	return q
}

// Metadata is what the service echoes back in the response headers when a
// stream is accepted
type Metadata struct {
	RequestID                 string
	SessionID                 string
	LanguageCode              string
	MediaSampleRateHz         *int
	MediaEncoding             string
	VocabularyName            string
	VocabularyFilterName      string
	VocabularyFilterMethod    string
	LanguageModelName         string
	ShowSpeakerLabel          *bool
	EnableChannelID           *bool
	NumberOfChannels          *int
	EnablePartialStability    *bool
	PartialResultsStability   string
	ContentIdentificationType string
	ContentRedactionType      string
	PIIEntityTypes            string
}

// ParseResponseMetadata reads stream metadata from response headers.
// Numeric and boolean headers that do not parse are left unset.
func ParseResponseMetadata(h http.Header) Metadata {
	get := func(name string) string { return h.Get(headerPrefix + name) }

	return Metadata{
		RequestID:                 h.Get("x-amzn-request-id"),
		SessionID:                 get("session-id"),
		LanguageCode:              get("language-code"),
		MediaSampleRateHz:         parseIntHeader(get("sample-rate")),
		MediaEncoding:             get("media-encoding"),
		VocabularyName:            get("vocabulary-name"),
		VocabularyFilterName:      get("vocabulary-filter-name"),
		VocabularyFilterMethod:    get("vocabulary-filter-method"),
		LanguageModelName:         get("language-model-name"),
		ShowSpeakerLabel:          parseBoolHeader(get("show-speaker-label")),
		EnableChannelID:           parseBoolHeader(get("enable-channel-identification")),
		NumberOfChannels:          parseIntHeader(get("number-of-channels")),
		EnablePartialStability:    parseBoolHeader(get("enable-partial-results-stabilization")),
		PartialResultsStability:   get("partial-results-stability"),
		ContentIdentificationType: get("content-identification-type"),
		ContentRedactionType:      get("content-redaction-type"),
		PIIEntityTypes:            get("pii-entity-types"),
	}
}

func parseIntHeader(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func parseBoolHeader(v string) *bool {
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}
