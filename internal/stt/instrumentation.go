package stt

import "go.opentelemetry.io/otel"

const scopeName = "github.com/lexiqai/transcribe-stream/internal/stt"

var tracer = otel.Tracer(scopeName)
