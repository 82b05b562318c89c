package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

const (
	handshakeTimeout = 45 * time.Second
	closeGracePeriod = time.Second
)

// WebsocketConn carries one frame per binary message
type WebsocketConn struct {
	ws     *websocket.Conn
	logger zerolog.Logger

	closeOnce sync.Once
}

// DialWebsocket opens a stream over a websocket. Request parameters travel
// in the query string. http and https endpoints are dialed as ws and wss.
func DialWebsocket(ctx context.Context, endpoint string, req *transcribe.StreamRequest, opts ...Option) (*WebsocketConn, transcribe.Metadata, error) {
	o := newDialOptions(opts)

	u, err := websocketURL(endpoint, req)
	if err != nil {
		return nil, transcribe.Metadata{}, err
	}

	header := http.Header{}
	if o.signer != nil {
		signReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, transcribe.Metadata{}, fmt.Errorf("transport: build request: %w", err)
		}
		if err := o.sign(signReq); err != nil {
			return nil, transcribe.Metadata{}, fmt.Errorf("transport: sign request: %w", err)
		}
		header = signReq.Header
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	if o.client != nil {
		if t, ok := o.client.Transport.(*http.Transport); ok {
			dialer.TLSClientConfig = t.TLSClientConfig
		}
	}

	ws, resp, err := dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			body := readErrorBody(resp.Body)
			resp.Body.Close()
			return nil, transcribe.Metadata{}, transcribe.ParseHTTPError(resp.StatusCode, resp.Header, body)
		}
		if ctx.Err() != nil {
			return nil, transcribe.Metadata{}, ctx.Err()
		}
		return nil, transcribe.Metadata{}, fmt.Errorf("transport: websocket dial %s: %w", u, err)
	}

	o.logger.Debug().Str("url", u).Msg("Websocket stream opened")

	return &WebsocketConn{ws: ws, logger: o.logger}, transcribe.ParseResponseMetadata(resp.Header), nil
}

func websocketURL(endpoint string, req *transcribe.StreamRequest) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("transport: invalid endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("transport: unsupported endpoint scheme %q", u.Scheme)
	}
	u.Path = path.Join("/", u.Path, req.WebsocketPath())
	u.RawQuery = req.Query().Encode()
	return u.String(), nil
}

// WriteBytes sends p as one binary message. Canceling ctx tears down the
// connection.
func (c *WebsocketConn) WriteBytes(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.ws.NetConn().Close() })
	defer stop()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("transport: websocket write: %w", err)
	}
	return nil
}

// ReadChunk returns the next binary message. Text messages are skipped. A
// normal close from the peer is io.EOF.
func (c *WebsocketConn) ReadChunk(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { c.ws.NetConn().Close() })
	defer stop()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("transport: websocket read: %w", err)
		}
		if mt != websocket.BinaryMessage {
			c.logger.Debug().Int("message_type", mt).Msg("Skipping non-binary message")
			continue
		}
		return data, nil
	}
}

// CloseWrite is a no-op: the end of audio is signalled in-band by the empty
// AudioEvent and the socket must stay open for the remaining results.
func (c *WebsocketConn) CloseWrite() error {
	return nil
}

// Close sends a close message and drops the connection
func (c *WebsocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = c.ws.Close()
	})
	return err
}
