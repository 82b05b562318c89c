package stream

import (
	"context"

	"github.com/rs/zerolog"
)

// Conn is the transport a Duplex runs over. WriteBytes is only called from
// one goroutine and ReadChunk from another, so implementations need not
// serialize either method against itself.
type Conn interface {
	// WriteBytes sends one encoded frame
	WriteBytes(ctx context.Context, p []byte) error
	// ReadChunk returns the next chunk of inbound bytes, which may hold
	// partial or multiple frames. It returns io.EOF when the peer closes
	// cleanly.
	ReadChunk(ctx context.Context) ([]byte, error)
	// CloseWrite signals that no more frames will be written
	CloseWrite() error
	// Close releases the connection. It unblocks pending reads and writes.
	Close() error
}

// Metrics receives per-stream counters. observability.StreamMetrics
// implements it.
type Metrics interface {
	RecordFrame(direction string, size int)
	RecordEvent(eventType string)
	RecordException(kind string)
	RecordChecksumFailure()
}

type nopMetrics struct{}

func (nopMetrics) RecordFrame(string, int) {}
func (nopMetrics) RecordEvent(string)      {}
func (nopMetrics) RecordException(string)  {}
func (nopMetrics) RecordChecksumFailure()  {}

// DefaultBufferSize is the outbound transfer buffer capacity
const DefaultBufferSize = 64 * 1024

type options struct {
	bufferSize int
	logger     zerolog.Logger
	metrics    Metrics
}

// Option configures a Duplex
type Option func(*options)

// WithBufferSize sets the outbound buffer capacity in bytes. Sends block
// once this much encoded audio is waiting for the network.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithLogger sets the stream logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
