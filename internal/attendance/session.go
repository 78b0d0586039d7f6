package attendance

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendease/internal/logger"
	"attendease/internal/metrics"
	"attendease/internal/nfc"
)

// State is a step of a scan session.
type State int

const (
	StateIdle State = iota
	StateAwaitingScan
	StatePayloadParsed
	StateCourseMatched
	StateProfessorValidated
	StateStudentResolved
	StateRecordWritten
	StateFailed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateAwaitingScan:       "awaiting_scan",
	StatePayloadParsed:      "payload_parsed",
	StateCourseMatched:      "course_matched",
	StateProfessorValidated: "professor_validated",
	StateStudentResolved:    "student_resolved",
	StateRecordWritten:      "record_written",
	StateFailed:             "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateRecordWritten || s == StateFailed
}

// Result is what the presentation layer gets for a finished session:
// either Record or Err, and Message to show in both cases.
type Result struct {
	SessionID string
	Selection Selection
	Record    *Record
	Err       error
	Message   string
}

// Session is one scan attempt. It acts on the first tag detection only.
type Session struct {
	id       string
	sel      Selection
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
	onFinish func(*Session)

	mu      sync.Mutex
	state   State
	history []State
	read    bool
	result  Result
	done    chan struct{}
}

func newSession(ctx context.Context, cancel context.CancelFunc, sel Selection, p *Pipeline) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		sel:      sel,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
		log: logger.Get().With().
			Str("session_id", id).
			Str("course_id", sel.CourseID).
			Logger(),
		state:   StateIdle,
		history: []State{StateIdle},
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Selection() Selection { return s.sel }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns every state the session went through, in order.
func (s *Session) Transitions() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// Done is closed when the session reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the outcome; it is only complete after Done is closed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Wait blocks until the session finished or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the session at its next step boundary. A lookup already in
// flight is allowed to return but its result is discarded.
func (s *Session) Cancel() {
	s.cancel()
}

// OnTagsDetected feeds the reader's detection into the pipeline. Only the
// first call has an effect.
func (s *Session) OnTagsDetected(msgs []nfc.Message) {
	if !s.claimRead() {
		return
	}
	payload, err := nfc.FirstPayload(msgs)
	if err != nil {
		s.finish(Record{}, fail(ReasonNoRecordsFound, err))
		return
	}
	rec, err := s.pipeline.validate(s.ctx, s, payload)
	s.finish(rec, err)
}

// OnSessionError ends a session whose reader failed before a detection.
func (s *Session) OnSessionError(err error) {
	if !s.claimRead() {
		return
	}
	s.finish(Record{}, readerError(err))
}

func (s *Session) begin() {
	s.advance(StateAwaitingScan)
	s.log.Info().Msg("hold the device near the professor's course card")
}

func (s *Session) claimRead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.read || s.state.Terminal() {
		return false
	}
	s.read = true
	return true
}

func (s *Session) advance(to State) {
	s.mu.Lock()
	s.state = to
	s.history = append(s.history, to)
	s.mu.Unlock()
	s.log.Debug().Stringer("state", to).Msg("scan session advanced")
}

func (s *Session) finish(rec Record, err error) {
	s.mu.Lock()
	if s.result.SessionID != "" {
		s.mu.Unlock()
		return
	}
	s.result = Result{SessionID: s.id, Selection: s.sel}
	if err != nil {
		s.state = StateFailed
		s.history = append(s.history, StateFailed)
		s.result.Err = err
		s.result.Message = UserMessage(err)
	} else {
		s.result.Record = &rec
		s.result.Message = "Attendance recorded for " + rec.StudentName
	}
	s.mu.Unlock()

	s.cancel()
	close(s.done)

	if err != nil {
		metrics.ScansTotal.WithLabelValues(string(ReasonOf(err))).Inc()
		s.log.Warn().Err(err).Str("reason", string(ReasonOf(err))).Msg("scan failed")
	} else {
		metrics.ScansTotal.WithLabelValues("ok").Inc()
		s.log.Info().
			Str("student", rec.StudentName).
			Str("professor", rec.ProfessorName).
			Str("timestamp", rec.Timestamp).
			Msg("attendance recorded")
	}
	if s.onFinish != nil {
		s.onFinish(s)
	}
}
