package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// printer writes events to the terminal. Text output shows final results
// only unless partials is set; JSON output writes every event.
type printer struct {
	w        io.Writer
	format   string
	partials bool
	enc      *json.Encoder
}

func newPrinter(w io.Writer, format string, partials bool) *printer {
	return &printer{w: w, format: format, partials: partials, enc: json.NewEncoder(w)}
}

type jsonLine struct {
	Type  string           `json:"type"`
	Event transcribe.Event `json:"event"`
}

func (p *printer) writeJSON(ev transcribe.Event) error {
	return p.enc.Encode(jsonLine{Type: ev.EventType(), Event: ev})
}

func (p *printer) HandleTranscriptEvent(_ context.Context, ev *transcribe.TranscriptEvent) error {
	if p.format == outputJSON {
		return p.writeJSON(ev)
	}
	for _, r := range ev.Transcript.Results {
		partial := r.IsPartial != nil && *r.IsPartial
		if partial && !p.partials {
			continue
		}
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == nil {
			continue
		}

		var b strings.Builder
		if r.StartTime != nil {
			fmt.Fprintf(&b, "%8.2fs ", *r.StartTime)
		}
		if r.ChannelID != nil {
			fmt.Fprintf(&b, "[%s] ", *r.ChannelID)
		}
		if partial {
			b.WriteString("~ ")
		}
		b.WriteString(*r.Alternatives[0].Transcript)
		if _, err := fmt.Fprintln(p.w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) HandleUtteranceEvent(_ context.Context, ev *transcribe.UtteranceEvent) error {
	if p.format == outputJSON {
		return p.writeJSON(ev)
	}
	partial := ev.IsPartial != nil && *ev.IsPartial
	if (partial && !p.partials) || ev.Transcript == nil {
		return nil
	}

	role := "UNKNOWN"
	if ev.ParticipantRole != nil {
		role = *ev.ParticipantRole
	}
	line := fmt.Sprintf("%s: %s", role, *ev.Transcript)
	if ev.Sentiment != nil {
		line += fmt.Sprintf(" (%s)", strings.ToLower(*ev.Sentiment))
	}
	if partial {
		line = "~ " + line
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *printer) HandleCategoryEvent(_ context.Context, ev *transcribe.CategoryEvent) error {
	if p.format == outputJSON {
		return p.writeJSON(ev)
	}
	if len(ev.MatchedCategories) == 0 {
		return nil
	}
	_, err := fmt.Fprintf(p.w, "categories: %s\n", strings.Join(ev.MatchedCategories, ", "))
	return err
}
