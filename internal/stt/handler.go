package stt

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

// ErrUnhandledEvent is returned when an event arrives that the handler has
// no function for
var ErrUnhandledEvent = errors.New("stt: no handler for event")

// EventHandler receives the events of one stream. Standard streams produce
// transcript events only; call analytics streams produce utterance and
// category events.
type EventHandler interface {
	HandleTranscriptEvent(ctx context.Context, ev *transcribe.TranscriptEvent) error
	HandleUtteranceEvent(ctx context.Context, ev *transcribe.UtteranceEvent) error
	HandleCategoryEvent(ctx context.Context, ev *transcribe.CategoryEvent) error
}

// HandlerFuncs adapts plain functions to EventHandler. An event whose
// function is nil fails with ErrUnhandledEvent.
type HandlerFuncs struct {
	Transcript func(ctx context.Context, ev *transcribe.TranscriptEvent) error
	Utterance  func(ctx context.Context, ev *transcribe.UtteranceEvent) error
	Category   func(ctx context.Context, ev *transcribe.CategoryEvent) error
}

func (h HandlerFuncs) HandleTranscriptEvent(ctx context.Context, ev *transcribe.TranscriptEvent) error {
	if h.Transcript == nil {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.EventType())
	}
	return h.Transcript(ctx, ev)
}

func (h HandlerFuncs) HandleUtteranceEvent(ctx context.Context, ev *transcribe.UtteranceEvent) error {
	if h.Utterance == nil {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.EventType())
	}
	return h.Utterance(ctx, ev)
}

func (h HandlerFuncs) HandleCategoryEvent(ctx context.Context, ev *transcribe.CategoryEvent) error {
	if h.Category == nil {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, ev.EventType())
	}
	return h.Category(ctx, ev)
}

// HandleEvents delivers each event to the matching handler method until the
// sequence ends. It stops at the first stream or handler error, or when ctx
// is done.
func HandleEvents(ctx context.Context, events iter.Seq2[transcribe.Event, error], h EventHandler) error {
	for ev, err := range events {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		switch ev := ev.(type) {
		case *transcribe.TranscriptEvent:
			err = h.HandleTranscriptEvent(ctx, ev)
		case *transcribe.UtteranceEvent:
			err = h.HandleUtteranceEvent(ctx, ev)
		case *transcribe.CategoryEvent:
			err = h.HandleCategoryEvent(ctx, ev)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
