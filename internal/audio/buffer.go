package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrStreamClosed is returned by Write after Close
var ErrStreamClosed = errors.New("audio: transfer stream closed")

// TransferStream is a bounded, thread-safe ring buffer between a producer
// and a consumer. Write blocks while the buffer is full and Read blocks
// while it is empty and still open.
type TransferStream struct {
	buffer []byte
	size   int
	read   int
	count  int
	closed bool
	err    error

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// NewTransferStream creates a transfer stream holding at most capacity bytes
func NewTransferStream(capacity int) *TransferStream {
	if capacity <= 0 {
		capacity = 1
	}
	ts := &TransferStream{
		buffer: make([]byte, capacity),
		size:   capacity,
	}
	ts.notEmpty = sync.NewCond(&ts.mu)
	ts.notFull = sync.NewCond(&ts.mu)
	return ts
}

// Write copies all of data into the buffer, blocking whenever it is full.
// If the stream is closed before everything is copied, Write returns the
// number of bytes accepted and ErrStreamClosed (or the CloseWithError error).
func (ts *TransferStream) Write(data []byte) (int, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	written := 0
	for {
		if ts.closed {
			return written, ts.writeErr()
		}
		if written == len(data) {
			return written, nil
		}
		for ts.count == ts.size && !ts.closed {
			ts.notFull.Wait()
		}
		if ts.closed {
			continue
		}

		n := ts.put(data[written:])
		written += n
		ts.notEmpty.Broadcast()
	}
}

// put copies as much of data as fits. Caller holds mu.
func (ts *TransferStream) put(data []byte) int {
	written := 0
	for written < len(data) && ts.count < ts.size {
		write := (ts.read + ts.count) % ts.size
		end := ts.size
		if ts.read > write {
			end = ts.read
		}
		n := copy(ts.buffer[write:end], data[written:])
		ts.count += n
		written += n
	}
	return written
}

// Read copies buffered bytes into data, blocking until at least one byte is
// available. Once the stream is closed and drained Read returns io.EOF.
func (ts *TransferStream) Read(data []byte) (int, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for ts.count == 0 && !ts.closed {
		ts.notEmpty.Wait()
	}
	if ts.err != nil {
		return 0, ts.err
	}
	if ts.count == 0 {
		return 0, io.EOF
	}
	if len(data) == 0 {
		return 0, nil
	}

	read := 0
	for read < len(data) && ts.count > 0 {
		end := ts.read + ts.count
		if end > ts.size {
			end = ts.size
		}
		n := copy(data[read:], ts.buffer[ts.read:end])
		ts.read = (ts.read + n) % ts.size
		ts.count -= n
		read += n
	}
	if ts.count == 0 {
		ts.read = 0
	}
	ts.notFull.Broadcast()
	return read, nil
}

// Close signals that no more data will be written. Buffered bytes stay
// readable. Close is idempotent.
func (ts *TransferStream) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	ts.notEmpty.Broadcast()
	ts.notFull.Broadcast()
	return nil
}

// CloseWithError aborts the stream: buffered bytes are discarded and both
// Read and Write return err from now on. A nil err behaves like Close.
func (ts *TransferStream) CloseWithError(err error) {
	if err == nil {
		ts.Close()
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.err == nil {
		ts.err = err
	}
	ts.closed = true
	ts.count = 0
	ts.read = 0
	ts.notEmpty.Broadcast()
	ts.notFull.Broadcast()
}

func (ts *TransferStream) writeErr() error {
	if ts.err != nil {
		return ts.err
	}
	return ErrStreamClosed
}

// Len returns the number of bytes available to read
func (ts *TransferStream) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.count
}

// Cap returns the buffer capacity
func (ts *TransferStream) Cap() int {
	return ts.size
}

// Space returns the number of bytes that can be written without blocking
func (ts *TransferStream) Space() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.size - ts.count
}

// IsClosed reports whether Close or CloseWithError has been called
func (ts *TransferStream) IsClosed() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.closed
}
