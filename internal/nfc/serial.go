package nfc

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"attendease/internal/logger"
)

// Serial reads tags from a UART/USB NFC reader. The reader firmware prints
// one line per detected tag:
//
//	 D N<records> V<hex payload> [V<hex payload> ...]
//
// Every V field is one record of the detected message. Other lines are
// status output and are skipped.
type Serial struct {
	mu     sync.Mutex
	port   io.ReadCloser
	device string
	buf    []byte
	closed bool
	log    zerolog.Logger
}

// NewSerial opens device at baud.
func NewSerial(device string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w: %v", device, ErrUnavailable, err)
	}
	return newSerial(port, device), nil
}

func newSerial(port io.ReadCloser, device string) *Serial {
	return &Serial{
		port:   port,
		device: device,
		log:    logger.Get().With().Str("device", device).Logger(),
	}
}

// Available reports whether the port is open.
func (s *Serial) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil && !s.closed
}

// Read blocks until a detection line arrives or ctx is done.
func (s *Serial) Read(ctx context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil || s.closed {
		return nil, ErrClosed
	}

	chunk := make([]byte, 256)
	for {
		for {
			i := bytes.IndexByte(s.buf, '\n')
			if i < 0 {
				break
			}
			line := string(s.buf[:i])
			s.buf = s.buf[i+1:]
			if msg, ok := s.parseDetection(line); ok {
				return []Message{msg}, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := s.port.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			continue
		}
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read %s: %w", s.device, err)
		}
		// Timeout with nothing read.
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *Serial) parseDetection(line string) (Message, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, " D") {
		return Message{}, false
	}
	count := -1
	var msg Message
	for _, part := range strings.Fields(line[2:]) {
		switch part[0] {
		case 'N':
			n, err := strconv.Atoi(part[1:])
			if err != nil {
				s.log.Warn().Err(err).Msg("record count decoding failed")
				continue
			}
			count = n
		case 'V':
			data, err := hex.DecodeString(part[1:])
			if err != nil {
				s.log.Warn().Err(err).Msg("record payload decoding failed")
				continue
			}
			msg.Records = append(msg.Records, Record{Payload: data})
		}
	}
	if count != -1 && count != len(msg.Records) {
		s.log.Warn().Int("wanted", count).Int("got", len(msg.Records)).Msg("record count mismatch")
	}
	return msg, true
}

// Close releases the port. It does not interrupt a Read in progress; cancel
// the Read context for that.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.port == nil {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
