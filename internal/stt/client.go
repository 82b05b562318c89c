// Package stt opens transcription streams against the configured endpoint
// and hands their events to typed handlers.
package stt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lexiqai/transcribe-stream/internal/config"
	"github.com/lexiqai/transcribe-stream/internal/observability"
	"github.com/lexiqai/transcribe-stream/internal/resilience"
	"github.com/lexiqai/transcribe-stream/internal/stream"
	"github.com/lexiqai/transcribe-stream/internal/transcribe"
	"github.com/lexiqai/transcribe-stream/internal/transport"
)

const breakerName = "transcribe"

// DialFunc opens the connection a stream runs over
type DialFunc func(ctx context.Context, endpoint string, req *transcribe.StreamRequest, opts ...transport.Option) (stream.Conn, transcribe.Metadata, error)

// DialHTTP adapts transport.DialHTTP to DialFunc
func DialHTTP(ctx context.Context, endpoint string, req *transcribe.StreamRequest, opts ...transport.Option) (stream.Conn, transcribe.Metadata, error) {
	conn, md, err := transport.DialHTTP(ctx, endpoint, req, opts...)
	if err != nil {
		return nil, md, err
	}
	return conn, md, nil
}

// DialWebsocket adapts transport.DialWebsocket to DialFunc
func DialWebsocket(ctx context.Context, endpoint string, req *transcribe.StreamRequest, opts ...transport.Option) (stream.Conn, transcribe.Metadata, error) {
	conn, md, err := transport.DialWebsocket(ctx, endpoint, req, opts...)
	if err != nil {
		return nil, md, err
	}
	return conn, md, nil
}

// Client opens streams. Opening is retried with backoff and guarded by a
// circuit breaker shared by every stream the client opens.
type Client struct {
	cfg      *config.Config
	dial     DialFunc
	dialOpts []transport.Option
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithDialer replaces the dialer chosen from the configured transport
func WithDialer(dial DialFunc) ClientOption {
	return func(c *Client) { c.dial = dial }
}

// WithTransportOptions adds options passed to every dial
func WithTransportOptions(opts ...transport.Option) ClientOption {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for cfg
func NewClient(cfg *config.Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg: cfg,
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        time.Duration(cfg.RetryMaxBackoff) * time.Millisecond,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		breaker: resilience.NewCircuitBreaker(
			breakerName,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		logger: observability.GetLogger(),
	}

	switch cfg.Transport {
	case config.TransportWebsocket:
		c.dial = DialWebsocket
	default:
		c.dial = DialHTTP
	}
	if cfg.AuthToken != "" {
		c.dialOpts = append(c.dialOpts, transport.WithSigner(transport.BearerToken(cfg.AuthToken)))
	}

	for _, opt := range opts {
		opt(c)
	}
	c.dialOpts = append(c.dialOpts, transport.WithLogger(c.logger))
	return c
}

// Breaker returns the circuit breaker guarding stream opens
func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

// Session is an open stream and the metadata the service returned for it
type Session struct {
	*stream.Duplex
	Metadata transcribe.Metadata

	id      string
	metrics *observability.StreamMetrics
	logger  zerolog.Logger
}

// ID returns the session id sent when the stream was opened
func (s *Session) ID() string {
	return s.id
}

// Logger returns a logger tagged with the session id
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// Close tears down the stream and records how it ended
func (s *Session) Close() error {
	err := s.Duplex.Close()
	s.metrics.RecordStreamEnd(s.Completed())
	s.logger.Info().Bool("completed", s.Completed()).Msg("Stream closed")
	return err
}

// StartStream opens a stream for req. The request is not modified; a
// session id is generated when req has none.
func (c *Client) StartStream(ctx context.Context, req transcribe.StreamRequest) (*Session, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	logger := c.logger.With().Str("session_id", req.SessionID).Logger()

	ctx, span := tracer.Start(ctx, "open transcription stream", trace.WithAttributes(
		attribute.String("transcribe.session_id", req.SessionID),
		attribute.String("transcribe.language_code", req.LanguageCode),
		attribute.Bool("transcribe.call_analytics", req.CallAnalytics),
		attribute.String("transcribe.transport", c.cfg.Transport),
	))
	defer span.End()

	start := time.Now()
	var (
		conn stream.Conn
		md   transcribe.Metadata
	)
	err := resilience.RetryWithLogger(ctx, func(ctx context.Context) error {
		err := c.breaker.Call(ctx, func(ctx context.Context) error {
			dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeoutDuration())
			defer cancel()

			var err error
			conn, md, err = c.dial(dialCtx, c.cfg.Endpoint, &req, c.dialOpts...)
			return err
		}, countsAgainstBreaker)
		observability.RecordOpenAttempt(err == nil)
		return err
	}, c.retry, isRetryable, logger)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Failed to open stream")
		return nil, fmt.Errorf("stt: open stream: %w", err)
	}
	observability.RecordOpenLatency(time.Since(start))
	span.SetAttributes(attribute.String("transcribe.request_id", md.RequestID))

	logger.Info().
		Str("request_id", md.RequestID).
		Str("language_code", req.LanguageCode).
		Int("sample_rate", req.MediaSampleRateHz).
		Dur("open_latency", time.Since(start)).
		Msg("Stream opened")

	metrics := observability.NewStreamMetrics(req.SessionID)
	metrics.RecordStreamStart()

	d := stream.New(conn,
		stream.WithBufferSize(c.cfg.StreamBufferSize),
		stream.WithLogger(logger),
		stream.WithMetrics(metrics),
	)
	return &Session{
		Duplex:   d,
		Metadata: md,
		id:       req.SessionID,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// isRetryable decides whether opening again may succeed
func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var exc *transcribe.ServiceException
	if errors.As(err, &exc) {
		return exc.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return resilience.IsRetryable(err) || resilience.IsRetryableNetworkError(err)
}

// countsAgainstBreaker is false for failures that say nothing about the
// service's health: cancellation and rejected requests
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var exc *transcribe.ServiceException
	if errors.As(err, &exc) {
		return exc.Retryable()
	}
	return true
}
