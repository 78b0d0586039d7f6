package nfc

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrUnavailable is returned when no reader hardware can be used.
	ErrUnavailable = errors.New("nfc: reading not available")
	// ErrNoRecordsFound is returned when a detected tag carries no records.
	ErrNoRecordsFound = errors.New("nfc: no records found")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("nfc: reader closed")
)

// Record is one NDEF record; only the payload is kept.
type Record struct {
	Payload []byte
}

// Message is one NDEF message read from a tag.
type Message struct {
	Records []Record
}

// Reader reads NDEF messages from a tag. Read blocks until a tag is
// detected, the reader fails, or ctx is done.
type Reader interface {
	Available() bool
	Read(ctx context.Context) ([]Message, error)
	Close() error
}

// FirstPayload returns the payload of the first record of the first message.
func FirstPayload(msgs []Message) ([]byte, error) {
	if len(msgs) == 0 || len(msgs[0].Records) == 0 {
		return nil, ErrNoRecordsFound
	}
	return msgs[0].Records[0].Payload, nil
}

// StaticReader hands out a fixed detection once. It backs payloads that
// were read elsewhere, such as a phone submitting over HTTP.
type StaticReader struct {
	mu     sync.Mutex
	msgs   []Message
	used   bool
	closed bool
}

// NewStaticReader creates a reader that detects msgs on the first Read.
func NewStaticReader(msgs ...Message) *StaticReader {
	return &StaticReader{msgs: msgs}
}

// NewPayloadReader wraps a single record payload.
func NewPayloadReader(payload []byte) *StaticReader {
	return NewStaticReader(Message{Records: []Record{{Payload: payload}}})
}

func (r *StaticReader) Available() bool { return true }

// Read returns the fixed messages; later reads block until ctx is done.
func (r *StaticReader) Read(ctx context.Context) ([]Message, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if !r.used {
		r.used = true
		msgs := r.msgs
		r.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return msgs, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *StaticReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
