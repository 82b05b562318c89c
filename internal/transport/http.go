package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

// HTTPConn is a stream over one long-lived HTTP request: frames are written
// to the request body and read from the response body. Over HTTP/2 both
// directions are open at once.
type HTTPConn struct {
	body   io.ReadCloser
	pw     *io.PipeWriter
	cancel context.CancelFunc
	buf    []byte

	closeOnce sync.Once
}

// DialHTTP opens a stream at endpoint. ctx bounds the dial only; the
// returned connection lives until Close. A non-2xx response is returned as a
// *transcribe.ServiceException.
func DialHTTP(ctx context.Context, endpoint string, req *transcribe.StreamRequest, opts ...Option) (*HTTPConn, transcribe.Metadata, error) {
	o := newDialOptions(opts)

	u, err := url.JoinPath(endpoint, req.Path())
	if err != nil {
		return nil, transcribe.Metadata{}, fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	httpReq, err := http.NewRequestWithContext(connCtx, http.MethodPost, u, pr)
	if err != nil {
		cancel()
		return nil, transcribe.Metadata{}, fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header = req.Header()
	if err := o.sign(httpReq); err != nil {
		cancel()
		return nil, transcribe.Metadata{}, fmt.Errorf("transport: sign request: %w", err)
	}

	stop := context.AfterFunc(ctx, cancel)
	resp, err := tracedClient(o.client).Do(httpReq)
	if !stop() {
		// ctx ended during the dial and canceled the connection
		if resp != nil {
			resp.Body.Close()
		}
		pw.CloseWithError(ctx.Err())
		return nil, transcribe.Metadata{}, ctx.Err()
	}
	if err != nil {
		cancel()
		pw.CloseWithError(err)
		return nil, transcribe.Metadata{}, fmt.Errorf("transport: dial %s: %w", u, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readErrorBody(resp.Body)
		resp.Body.Close()
		cancel()
		pw.Close()
		return nil, transcribe.Metadata{}, transcribe.ParseHTTPError(resp.StatusCode, resp.Header, body)
	}

	o.logger.Debug().
		Str("url", u).
		Str("proto", resp.Proto).
		Msg("HTTP stream opened")

	return &HTTPConn{
		body:   resp.Body,
		pw:     pw,
		cancel: cancel,
		buf:    make([]byte, readChunkSize),
	}, transcribe.ParseResponseMetadata(resp.Header), nil
}

// tracedClient returns a copy of c with a tracing transport and no overall
// timeout, which would cut a long stream short
func tracedClient(c *http.Client) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	traced := *c
	base := traced.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	traced.Transport = otelhttp.NewTransport(base)
	traced.Timeout = 0
	return &traced
}

// WriteBytes writes one frame to the request body. It blocks until the
// server has read it.
func (c *HTTPConn) WriteBytes(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.pw.CloseWithError(ctx.Err()) })
	defer stop()

	if _, err := c.pw.Write(p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// ReadChunk reads the next chunk of the response body. Canceling ctx
// closes the body, since a pending HTTP/2 body read does not observe the
// request context once headers have arrived. The connection is unusable
// afterwards.
func (c *HTTPConn) ReadChunk(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.cancel()
		c.body.Close()
	})
	defer stop()

	for {
		n, err := c.body.Read(c.buf)
		if n > 0 {
			return append([]byte(nil), c.buf[:n]...), nil
		}
		switch {
		case err == nil:
			continue
		case err == io.EOF:
			return nil, io.EOF
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("transport: read: %w", err)
		}
	}
}

// CloseWrite ends the request body
func (c *HTTPConn) CloseWrite() error {
	return c.pw.Close()
}

// Close tears down the request in both directions
func (c *HTTPConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.pw.CloseWithError(ErrClosed)
		c.cancel()
		err = c.body.Close()
	})
	return err
}
