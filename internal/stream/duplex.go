// Package stream runs one bidirectional transcription session over a Conn:
// audio and configuration events go out through a bounded buffer and inbound
// frames come back as typed events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-stream/internal/audio"
	"github.com/lexiqai/transcribe-stream/internal/eventstream"
	"github.com/lexiqai/transcribe-stream/internal/observability"
	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

var (
	// ErrSendClosed is returned by sends after CloseSend
	ErrSendClosed = errors.New("stream: send half closed")
	// ErrClosed is returned by operations after Close
	ErrClosed = errors.New("stream: closed")
	// ErrTruncated means the peer closed the connection in the middle of a frame
	ErrTruncated = errors.New("stream: connection closed mid-frame")
	// ErrEmptyAudio is returned by SendAudio for an empty chunk. The empty
	// AudioEvent is the end-of-stream marker and is only sent by CloseSend.
	ErrEmptyAudio = errors.New("stream: empty audio chunk")
)

// Duplex is one transcription stream. The send methods may be called from
// one goroutine while another calls Next or ranges over Events.
type Duplex struct {
	conn    Conn
	buf     *audio.TransferStream
	logger  zerolog.Logger
	metrics Metrics

	// ctx is canceled when the stream is aborted
	ctx    context.Context
	cancel context.CancelFunc

	sendMu     sync.Mutex
	sendClosed bool

	pumpDone chan struct{}
	pumpErr  error

	recvMu    sync.Mutex
	pending   []byte
	frames    []eventstream.Frame
	decodeErr error
	recvErr   error
	recvEOF   atomic.Bool

	abortOnce sync.Once
	abortMu   sync.Mutex
	abortErr  error
}

// New starts a stream over conn. The caller must eventually call Close.
func New(conn Conn, opts ...Option) *Duplex {
	o := options{
		bufferSize: DefaultBufferSize,
		logger:     zerolog.Nop(),
		metrics:    nopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Duplex{
		conn:     conn,
		buf:      audio.NewTransferStream(o.bufferSize),
		logger:   o.logger,
		metrics:  o.metrics,
		ctx:      ctx,
		cancel:   cancel,
		pumpDone: make(chan struct{}),
	}
	go d.pump()
	return d
}

// SendAudio queues one chunk of audio. Chunks larger than
// transcribe.MaxAudioChunkSize are split across several events. SendAudio
// blocks while the outbound buffer is full. If ctx is canceled while
// blocked the whole stream is aborted.
func (d *Duplex) SendAudio(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return ErrEmptyAudio
	}
	for len(chunk) > 0 {
		n := min(len(chunk), transcribe.MaxAudioChunkSize)
		if err := d.send(ctx, transcribe.EncodeAudioEvent(chunk[:n])); err != nil {
			return err
		}
		chunk = chunk[n:]
	}
	return nil
}

// SendConfiguration queues a configuration event. Call analytics streams
// expect it before any audio.
func (d *Duplex) SendConfiguration(ctx context.Context, cfg transcribe.ConfigurationEvent) error {
	frame, err := transcribe.EncodeConfigurationEvent(cfg)
	if err != nil {
		return err
	}
	return d.send(ctx, frame)
}

// CloseSend sends the end-of-stream marker, closes the send half and waits
// until every queued frame has been handed to the connection. Inbound events
// keep flowing afterwards. Calling it again only waits.
func (d *Duplex) CloseSend(ctx context.Context) error {
	d.sendMu.Lock()
	if !d.sendClosed {
		err := d.writeLocked(ctx, transcribe.EncodeAudioEvent(nil))
		d.sendClosed = true
		d.buf.Close()
		if err != nil {
			d.sendMu.Unlock()
			return err
		}
		d.logger.Debug().Msg("Send half closed")
	}
	d.sendMu.Unlock()

	select {
	case <-d.pumpDone:
		return d.pumpErr
	case <-ctx.Done():
		d.abort(ctx.Err())
		return ctx.Err()
	}
}

func (d *Duplex) send(ctx context.Context, frame eventstream.Frame) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	if d.sendClosed {
		return ErrSendClosed
	}
	return d.writeLocked(ctx, frame)
}

// writeLocked encodes frame and writes it whole into the buffer. Caller
// holds sendMu, so frames never interleave.
func (d *Duplex) writeLocked(ctx context.Context, frame eventstream.Frame) error {
	b, err := eventstream.Encode(frame)
	if err != nil {
		return err
	}
	if err := d.terminalErr(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		d.abort(err)
		return err
	}

	stop := context.AfterFunc(ctx, func() { d.abort(ctx.Err()) })
	defer stop()

	_, err = d.buf.Write(b)
	return err
}

// pump moves whole frames from the buffer to the connection
func (d *Duplex) pump() {
	defer close(d.pumpDone)

	prelude := make([]byte, 4)
	for {
		if _, err := io.ReadFull(d.buf, prelude); err != nil {
			if errors.Is(err, io.EOF) {
				d.pumpErr = d.conn.CloseWrite()
				if d.pumpErr != nil {
					d.logger.Warn().Err(d.pumpErr).Msg("Failed to close write half")
				}
				return
			}
			d.pumpErr = err
			return
		}

		n, err := eventstream.FrameLen(prelude)
		if err != nil {
			d.pumpErr = err
			d.abort(err)
			return
		}
		frame := make([]byte, n)
		copy(frame, prelude)
		if _, err := io.ReadFull(d.buf, frame[len(prelude):]); err != nil {
			d.pumpErr = err
			return
		}

		if err := d.conn.WriteBytes(d.ctx, frame); err != nil {
			err = fmt.Errorf("stream: write: %w", err)
			d.logger.Error().Err(err).Msg("Outbound write failed")
			d.pumpErr = err
			d.buf.CloseWithError(err)
			return
		}
		d.metrics.RecordFrame(observability.DirectionOutbound, n)
	}
}

// Next returns the next inbound event. It returns io.EOF once the peer has
// closed cleanly. Any other error is terminal and is returned again by every
// later call. Frames for unknown event types are skipped.
func (d *Duplex) Next(ctx context.Context) (transcribe.Event, error) {
	d.recvMu.Lock()
	defer d.recvMu.Unlock()

	if d.recvErr != nil {
		return nil, d.recvErr
	}

	for {
		for len(d.frames) > 0 {
			frame := d.frames[0]
			d.frames = d.frames[1:]

			ev, err := transcribe.Dispatch(frame)
			if err != nil {
				var exc *transcribe.ServiceException
				if errors.As(err, &exc) {
					d.metrics.RecordException(exc.Kind.String())
				}
				return nil, d.failRecv(err)
			}
			if ev == nil {
				d.logger.Debug().
					Str("message_type", frame.Headers.String(transcribe.HeaderMessageType)).
					Str("event_type", frame.Headers.String(transcribe.HeaderEventType)).
					Msg("Skipping unrecognized frame")
				continue
			}
			d.metrics.RecordEvent(ev.EventType())
			return ev, nil
		}

		if d.decodeErr != nil {
			if errors.Is(d.decodeErr, eventstream.ErrChecksumMismatch) {
				d.metrics.RecordChecksumFailure()
			}
			return nil, d.failRecv(fmt.Errorf("stream: decode: %w", d.decodeErr))
		}

		chunk, err := d.read(ctx)
		if err != nil {
			return nil, d.failRecv(err)
		}
		d.decode(chunk)
	}
}

// read pulls one chunk, translating the ways a read can end
func (d *Duplex) read(ctx context.Context) ([]byte, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()

	chunk, err := d.conn.ReadChunk(rctx)
	if err == nil {
		return chunk, nil
	}

	switch {
	case errors.Is(err, io.EOF):
		if len(d.pending) > 0 {
			return nil, fmt.Errorf("%w: %d bytes pending", ErrTruncated, len(d.pending))
		}
		return nil, io.EOF
	case ctx.Err() != nil:
		d.abort(ctx.Err())
		return nil, ctx.Err()
	}
	if aerr := d.terminalErr(); aerr != nil {
		return nil, aerr
	}
	return nil, fmt.Errorf("stream: read: %w", err)
}

func (d *Duplex) decode(chunk []byte) {
	d.pending = append(d.pending, chunk...)
	frames, consumed, err := eventstream.Decode(d.pending)

	off := 0
	for range frames {
		n, _ := eventstream.FrameLen(d.pending[off:])
		d.metrics.RecordFrame(observability.DirectionInbound, n)
		off += n
	}

	d.frames = append(d.frames, frames...)
	d.decodeErr = err
	if consumed > 0 {
		d.pending = append([]byte(nil), d.pending[consumed:]...)
	}
}

// failRecv makes err the sticky receive result. Anything but a clean EOF
// also aborts the stream.
func (d *Duplex) failRecv(err error) error {
	d.recvErr = err
	if errors.Is(err, io.EOF) {
		d.recvEOF.Store(true)
		d.logger.Debug().Msg("Inbound stream ended")
		return err
	}
	d.logger.Error().Err(err).Msg("Inbound stream failed")
	d.abort(err)
	return err
}

// Events returns a single-pass sequence over inbound events. It ends after
// a clean EOF or after yielding exactly one terminal error.
func (d *Duplex) Events(ctx context.Context) iter.Seq2[transcribe.Event, error] {
	return func(yield func(transcribe.Event, error) bool) {
		for {
			ev, err := d.Next(ctx)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Err returns the outbound error once the send pump has stopped, or nil
// while it is still running
func (d *Duplex) Err() error {
	select {
	case <-d.pumpDone:
		return d.pumpErr
	default:
		return nil
	}
}

// Completed reports whether the peer ended the inbound half cleanly
func (d *Duplex) Completed() bool {
	return d.recvEOF.Load()
}

// Close aborts both halves and releases the connection
func (d *Duplex) Close() error {
	d.abort(ErrClosed)
	<-d.pumpDone
	return nil
}

// abort makes the stream terminal. The first error wins.
func (d *Duplex) abort(err error) {
	d.abortOnce.Do(func() {
		d.abortMu.Lock()
		d.abortErr = err
		d.abortMu.Unlock()

		d.buf.CloseWithError(err)
		d.cancel()
		if cerr := d.conn.Close(); cerr != nil {
			d.logger.Debug().Err(cerr).Msg("Connection close failed")
		}
	})
}

func (d *Duplex) terminalErr() error {
	d.abortMu.Lock()
	defer d.abortMu.Unlock()
	return d.abortErr
}
