package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/transcribe-stream/internal/eventstream"
	"github.com/lexiqai/transcribe-stream/internal/stream"
	"github.com/lexiqai/transcribe-stream/internal/transcribe"
)

// echoTranscriber replies to every inbound frame with a transcript of its
// payload
func echoTranscriber(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, transcribe.PathStreamTranscription, r.URL.Path)
		assert.Equal(t, "en-US", r.Header.Get("x-amzn-transcribe-language-code"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("x-amzn-request-id", "req-1")
		w.Header().Set("x-amzn-transcribe-language-code", "en-US")
		w.Header().Set("x-amzn-transcribe-sample-rate", "16000")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()

		var pending []byte
		buf := make([]byte, 4096)
		for {
			n, err := r.Body.Read(buf)
			pending = append(pending, buf[:n]...)
			frames, consumed, derr := eventstream.Decode(pending)
			assert.NoError(t, derr)
			pending = pending[consumed:]
			for _, f := range frames {
				_, _ = w.Write(transcriptFrame(t, string(f.Payload)))
				w.(http.Flusher).Flush()
			}
			if err != nil {
				return
			}
		}
	}
}

func newHTTP2Server(t *testing.T, h http.Handler) *httptest.Server {
	srv := httptest.NewUnstartedServer(h)
	srv.EnableHTTP2 = true
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestDialHTTP_RoundTrip(t *testing.T) {
	srv := newHTTP2Server(t, echoTranscriber(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, md, err := DialHTTP(ctx, srv.URL, testRequest(),
		WithHTTPClient(srv.Client()),
		WithSigner(BearerToken("secret")),
	)
	require.NoError(t, err)
	assert.Equal(t, "req-1", md.RequestID)
	assert.Equal(t, "en-US", md.LanguageCode)
	require.NotNil(t, md.MediaSampleRateHz)
	assert.Equal(t, 16000, *md.MediaSampleRateHz)

	d := stream.New(conn)
	defer d.Close()

	require.NoError(t, d.SendAudio(ctx, []byte("hello")))
	require.NoError(t, d.SendAudio(ctx, []byte("world")))
	require.NoError(t, d.CloseSend(ctx))

	texts, err := collectTranscripts(ctx, d)
	require.NoError(t, err)
	// the empty end-of-stream marker is echoed as an empty transcript
	assert.Equal(t, []string{"hello", "world", ""}, texts)
}

func TestDialHTTP_ServiceError(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-amzn-errortype", "BadRequestException:http://internal.example/")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Message":"sample rate not supported"}`))
	}))

	conn, _, err := DialHTTP(context.Background(), srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	require.Error(t, err)
	assert.Nil(t, conn)

	var exc *transcribe.ServiceException
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, transcribe.KindBadRequest, exc.Kind)
	assert.Equal(t, "sample rate not supported", exc.Message)
	assert.ErrorIs(t, err, transcribe.ErrBadRequest)
}

func TestDialHTTP_UnknownStatus(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, _, err := DialHTTP(context.Background(), srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	var exc *transcribe.ServiceException
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, transcribe.KindUnknown, exc.Kind)
	require.NotNil(t, exc.HTTPStatus)
	assert.Equal(t, http.StatusForbidden, *exc.HTTPStatus)
}

func TestDialHTTP_CanceledContext(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := DialHTTP(ctx, srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPConn_CloseUnblocksRead(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	conn, _, err := DialHTTP(context.Background(), srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.ReadChunk(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, conn.Close())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock ReadChunk")
	}
}

func TestHTTPConn_ReadCanceled(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	conn, _, err := DialHTTP(context.Background(), srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = conn.ReadChunk(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDuplex_NextCanceledOverHTTP(t *testing.T) {
	srv := newHTTP2Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	conn, _, err := DialHTTP(context.Background(), srv.URL, testRequest(), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	d := stream.New(conn)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := d.Next(ctx)
		errc <- err
	}()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after its context expired")
	}

	// Cancellation is terminal
	_, err = d.Next(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
