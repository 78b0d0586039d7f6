package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"attendease/internal/logger"
	"attendease/internal/metrics"
	"attendease/internal/nfc"
)

// ErrInvalidSelection is returned by Begin without a course or identity.
var ErrInvalidSelection = errors.New("course and user identity required")

// Controller runs scan sessions. Each user identity has at most one active
// session; beginning another supersedes it.
type Controller struct {
	pipeline    *Pipeline
	scanTimeout time.Duration
	onResult    func(Result)
	log         zerolog.Logger

	mu     sync.Mutex
	active map[string]*Session
}

// NewController creates a controller. scanTimeout bounds a whole session
// (zero means no bound); onResult, if set, receives every finished result.
func NewController(p *Pipeline, scanTimeout time.Duration, onResult func(Result)) *Controller {
	return &Controller{
		pipeline:    p,
		scanTimeout: scanTimeout,
		onResult:    onResult,
		log:         logger.Get().With().Str("component", "scan_controller").Logger(),
		active:      make(map[string]*Session),
	}
}

// Begin starts a session reading from reader. The controller owns reader
// from here on and closes it when the session ends.
func (c *Controller) Begin(ctx context.Context, sel Selection, reader nfc.Reader) (*Session, error) {
	if sel.CourseID == "" || sel.UserIdentity == "" {
		if reader != nil {
			_ = reader.Close()
		}
		return nil, ErrInvalidSelection
	}
	if reader == nil || !reader.Available() {
		if reader != nil {
			_ = reader.Close()
		}
		metrics.ScansTotal.WithLabelValues(string(ReasonReaderUnavailable)).Inc()
		return nil, fail(ReasonReaderUnavailable, nfc.ErrUnavailable)
	}

	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if c.scanTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, c.scanTimeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	s := newSession(sctx, cancel, sel, c.pipeline)
	s.onFinish = c.finished

	c.mu.Lock()
	if prev, ok := c.active[sel.UserIdentity]; ok {
		c.log.Info().Str("superseded", prev.ID()).Str("session_id", s.ID()).Msg("new scan supersedes active session")
		prev.Cancel()
	}
	c.active[sel.UserIdentity] = s
	c.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.begin()
	go c.run(s, reader)
	return s, nil
}

func (c *Controller) run(s *Session, reader nfc.Reader) {
	defer reader.Close()
	msgs, err := reader.Read(s.ctx)
	if err != nil {
		s.OnSessionError(err)
		return
	}
	s.OnTagsDetected(msgs)
}

func (c *Controller) finished(s *Session) {
	c.mu.Lock()
	if c.active[s.sel.UserIdentity] == s {
		delete(c.active, s.sel.UserIdentity)
	}
	c.mu.Unlock()
	metrics.ActiveSessions.Dec()

	if c.onResult != nil {
		c.onResult(s.Result())
	}
}

// Active returns the running session of identity, if any.
func (c *Controller) Active(identity string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[identity]
	return s, ok
}

// Cancel cancels the running session of identity. It reports whether one
// was running.
func (c *Controller) Cancel(identity string) bool {
	s, ok := c.Active(identity)
	if ok {
		s.Cancel()
	}
	return ok
}

// CancelAll cancels every running session.
func (c *Controller) CancelAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.active))
	for _, s := range c.active {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()
	for _, s := range sessions {
		s.Cancel()
	}
}

// Scan begins a session and waits for its result.
func (c *Controller) Scan(ctx context.Context, sel Selection, reader nfc.Reader) Result {
	s, err := c.Begin(ctx, sel, reader)
	if err != nil {
		return Result{Selection: sel, Err: err, Message: UserMessage(err)}
	}
	<-s.Done()
	return s.Result()
}
