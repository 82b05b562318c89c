package transcribe

import (
	"encoding/json"
	"fmt"

	"github.com/lexiqai/transcribe-stream/internal/eventstream"
)

// Reserved frame headers
const (
	HeaderMessageType   = ":message-type"
	HeaderEventType     = ":event-type"
	HeaderExceptionType = ":exception-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"
	HeaderContentType   = ":content-type"
)

const (
	MessageTypeEvent     = "event"
	MessageTypeError     = "error"
	MessageTypeException = "exception"
)

// Dispatch turns a decoded frame into an Event. Exception and error frames
// are returned as a *ServiceException error. Frames for event types this
// client does not know return (nil, nil).
func Dispatch(frame eventstream.Frame) (Event, error) {
	switch frame.Headers.String(HeaderMessageType) {
	case MessageTypeException:
		return nil, exceptionFromFrame(frame)
	case MessageTypeError:
		return nil, errorFromFrame(frame)
	case MessageTypeEvent:
		return parseEvent(frame.Headers.String(HeaderEventType), frame.Payload)
	default:
		return nil, nil
	}
}

func parseEvent(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case EventTypeTranscript:
		var ev TranscriptEvent
		if err := unmarshalEvent(eventType, payload, &ev); err != nil {
			return nil, err
		}
		normalizeTranscript(&ev.Transcript)
		return &ev, nil

	case EventTypeUtterance:
		var ev UtteranceEvent
		if err := unmarshalEvent(eventType, payload, &ev); err != nil {
			return nil, err
		}
		return &ev, nil

	case EventTypeCategory:
		var ev CategoryEvent
		if err := unmarshalEvent(eventType, payload, &ev); err != nil {
			return nil, err
		}
		if ev.MatchedCategories == nil {
			ev.MatchedCategories = []string{}
		}
		if ev.MatchedDetails == nil {
			ev.MatchedDetails = map[string]PointsOfInterest{}
		}
		for key, poi := range ev.MatchedDetails {
			if poi.TimestampRanges == nil {
				poi.TimestampRanges = []TimestampRange{}
				ev.MatchedDetails[key] = poi
			}
		}
		return &ev, nil

	default:
		return nil, nil
	}
}

// unmarshalEvent decodes an event payload. A payload that is not a JSON
// object is a serialization failure on the service side.
func unmarshalEvent(eventType string, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &ServiceException{
			Kind:    KindSerialization,
			Message: fmt.Sprintf("malformed %s payload: %v", eventType, err),
		}
	}
	return nil
}

// normalizeTranscript applies the list rules json.Unmarshal cannot express:
// Results and Alternative.Items are always present, while Alternatives,
// Entities and LanguageIdentification keep nil for "absent".
func normalizeTranscript(t *Transcript) {
	if t.Results == nil {
		t.Results = []Result{}
	}
	for i := range t.Results {
		for j := range t.Results[i].Alternatives {
			alt := &t.Results[i].Alternatives[j]
			if alt.Items == nil {
				alt.Items = []Item{}
			}
		}
	}
}

func exceptionFromFrame(frame eventstream.Frame) *ServiceException {
	name := frame.Headers.String(HeaderExceptionType)
	if name == "" {
		name = "ServiceException"
	}
	return newFrameException(name, messageFromBody(frame.Payload, genericExceptionMessage))
}

func errorFromFrame(frame eventstream.Frame) *ServiceException {
	code := frame.Headers.String(HeaderErrorCode)
	if code == "" {
		code = frame.Headers.String(HeaderExceptionType)
	}
	if code == "" {
		code = "ServiceException"
	}
	msg := frame.Headers.String(HeaderErrorMessage)
	if msg == "" {
		msg = messageFromBody(frame.Payload, genericExceptionMessage)
	}
	return newFrameException(code, msg)
}

func newFrameException(name, msg string) *ServiceException {
	kind := ParseExceptionKind(name)
	exc := &ServiceException{Kind: kind, Message: msg}
	if kind == KindUnknown {
		exc.Code = name
	}
	return exc
}
