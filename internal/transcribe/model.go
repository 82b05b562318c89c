package transcribe

// Event is a typed inbound event. It is implemented by *TranscriptEvent,
// *UtteranceEvent and *CategoryEvent only.
type Event interface {
	// EventType is the :event-type header value the event was decoded from
	EventType() string
	isEvent()
}

const (
	EventTypeTranscript = "TranscriptEvent"
	EventTypeUtterance  = "UtteranceEvent"
	EventTypeCategory   = "CategoryEvent"
)

// Optional fields are pointers: nil means the key was absent on the wire.
// Optional lists are nil when absent and non-nil (possibly empty) when present.

// TranscriptEvent carries results from a standard transcription stream
type TranscriptEvent struct {
	Transcript Transcript `json:"Transcript"`
}

func (*TranscriptEvent) EventType() string { return EventTypeTranscript }
func (*TranscriptEvent) isEvent()          {}

type Transcript struct {
	Results []Result `json:"Results"`
}

// Result is one transcribed audio segment
type Result struct {
	ResultID               *string             `json:"ResultId"`
	StartTime              *float64            `json:"StartTime"`
	EndTime                *float64            `json:"EndTime"`
	IsPartial              *bool               `json:"IsPartial"`
	ChannelID              *string             `json:"ChannelId"`
	Alternatives           []Alternative       `json:"Alternatives"`
	LanguageCode           *string             `json:"LanguageCode"`
	LanguageIdentification []LanguageWithScore `json:"LanguageIdentification"`
}

// Alternative is one possible transcription of a segment. Items is never nil.
type Alternative struct {
	Transcript *string  `json:"Transcript"`
	Items      []Item   `json:"Items"`
	Entities   []Entity `json:"Entities"`
}

// Item is a word or punctuation mark
type Item struct {
	StartTime             *float64 `json:"StartTime"`
	EndTime               *float64 `json:"EndTime"`
	Type                  *string  `json:"Type"`
	Content               *string  `json:"Content"`
	VocabularyFilterMatch *bool    `json:"VocabularyFilterMatch"`
	Speaker               *string  `json:"Speaker"`
	Confidence            *float64 `json:"Confidence"`
	Stable                *bool    `json:"Stable"`
}

// Entity is a span of identified PII
type Entity struct {
	StartTime  *float64 `json:"StartTime"`
	EndTime    *float64 `json:"EndTime"`
	Category   *string  `json:"Category"`
	Type       *string  `json:"Type"`
	Content    *string  `json:"Content"`
	Confidence *float64 `json:"Confidence"`
}

type LanguageWithScore struct {
	LanguageCode *string  `json:"LanguageCode"`
	Score        *float64 `json:"Score"`
}

// UtteranceEvent carries one call analytics utterance
type UtteranceEvent struct {
	UtteranceID       *string               `json:"UtteranceId"`
	IsPartial         *bool                 `json:"IsPartial"`
	ParticipantRole   *string               `json:"ParticipantRole"`
	BeginOffsetMillis *int64                `json:"BeginOffsetMillis"`
	EndOffsetMillis   *int64                `json:"EndOffsetMillis"`
	Transcript        *string               `json:"Transcript"`
	Items             []CallAnalyticsItem   `json:"Items"`
	Entities          []CallAnalyticsEntity `json:"Entities"`
	Sentiment         *string               `json:"Sentiment"`
	IssuesDetected    []IssueDetected       `json:"IssuesDetected"`
}

func (*UtteranceEvent) EventType() string { return EventTypeUtterance }
func (*UtteranceEvent) isEvent()          {}

type CallAnalyticsItem struct {
	BeginOffsetMillis     *int64   `json:"BeginOffsetMillis"`
	EndOffsetMillis       *int64   `json:"EndOffsetMillis"`
	Type                  *string  `json:"Type"`
	Content               *string  `json:"Content"`
	Confidence            *float64 `json:"Confidence"`
	VocabularyFilterMatch *bool    `json:"VocabularyFilterMatch"`
	Stable                *bool    `json:"Stable"`
}

type CallAnalyticsEntity struct {
	BeginOffsetMillis *int64   `json:"BeginOffsetMillis"`
	EndOffsetMillis   *int64   `json:"EndOffsetMillis"`
	Category          *string  `json:"Category"`
	Type              *string  `json:"Type"`
	Content           *string  `json:"Content"`
	Confidence        *float64 `json:"Confidence"`
}

// IssueDetected points at the part of an utterance transcript that
// describes an issue
type IssueDetected struct {
	CharacterOffsets *CharacterOffsets `json:"CharacterOffsets"`
}

type CharacterOffsets struct {
	Begin *int64 `json:"Begin"`
	End   *int64 `json:"End"`
}

// CategoryEvent reports call analytics categories matched so far
type CategoryEvent struct {
	MatchedCategories []string                    `json:"MatchedCategories"`
	MatchedDetails    map[string]PointsOfInterest `json:"MatchedDetails"`
}

func (*CategoryEvent) EventType() string { return EventTypeCategory }
func (*CategoryEvent) isEvent()          {}

type PointsOfInterest struct {
	TimestampRanges []TimestampRange `json:"TimestampRanges"`
}

type TimestampRange struct {
	BeginOffsetMillis *int64 `json:"BeginOffsetMillis"`
	EndOffsetMillis   *int64 `json:"EndOffsetMillis"`
}
