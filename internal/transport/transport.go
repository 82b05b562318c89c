// Package transport provides stream.Conn implementations over HTTP/2
// streaming bodies and websockets.
package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of a failed response body is read
const maxErrorBody = 64 * 1024

// readChunkSize is the buffer size for inbound body reads
const readChunkSize = 32 * 1024

// ErrClosed is returned by operations on a closed connection
var ErrClosed = errors.New("transport: connection closed")

// Signer adds authentication to an outgoing request. Credential handling
// lives behind this interface.
type Signer interface {
	Sign(r *http.Request) error
}

// SignerFunc adapts a function to Signer
type SignerFunc func(r *http.Request) error

func (f SignerFunc) Sign(r *http.Request) error { return f(r) }

// BearerToken signs requests with a static bearer token
type BearerToken string

func (t BearerToken) Sign(r *http.Request) error {
	if t != "" {
		r.Header.Set("Authorization", "Bearer "+string(t))
	}
	return nil
}

type dialOptions struct {
	client *http.Client
	signer Signer
	logger zerolog.Logger
}

// Option configures a dial
type Option func(*dialOptions)

// WithHTTPClient sets the client used by DialHTTP. Its transport is wrapped
// for tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(o *dialOptions) { o.client = c }
}

// WithSigner sets the request signer
func WithSigner(s Signer) Option {
	return func(o *dialOptions) { o.signer = s }
}

// WithLogger sets the transport logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *dialOptions) { o.logger = logger }
}

func newDialOptions(opts []Option) dialOptions {
	o := dialOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o dialOptions) sign(r *http.Request) error {
	if o.signer == nil {
		return nil
	}
	return o.signer.Sign(r)
}

func readErrorBody(body io.Reader) []byte {
	b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return b
}
