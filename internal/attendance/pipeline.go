package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"attendease/internal/card"
	"attendease/internal/logger"
	"attendease/internal/metrics"
)

// ProfessorStore looks up professor card registrations.
type ProfessorStore interface {
	FindProfessors(ctx context.Context, courseID, professorID string) ([]Professor, error)
}

// StudentStore looks up students by email.
type StudentStore interface {
	FindStudents(ctx context.Context, email string) ([]Student, error)
}

// Writer persists a validated record.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, rec Record) error

func (f WriterFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// Options tune a Pipeline.
type Options struct {
	// LookupTimeout bounds each store lookup.
	LookupTimeout time.Duration
	// WriteTimeout bounds the record write.
	WriteTimeout time.Duration
	// SyncWrite makes the write finish before success is reported. When
	// false the write is submitted in the background and its failure is
	// only logged.
	SyncWrite   bool
	Timestamper *Timestamper
	Now         func() time.Time
	NewID       func() string
}

// Pipeline validates a card payload against the selected course and the
// professor and student stores, then hands the record to the writer.
type Pipeline struct {
	professors ProfessorStore
	students   StudentStore
	writer     Writer
	opts       Options
	writes     sync.WaitGroup
	log        zerolog.Logger
}

// NewPipeline wires the stores and writer.
func NewPipeline(professors ProfessorStore, students StudentStore, writer Writer, opts Options) *Pipeline {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Timestamper == nil {
		opts.Timestamper, _ = NewTimestamper("en_US", time.Local)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Pipeline{
		professors: professors,
		students:   students,
		writer:     writer,
		opts:       opts,
		log:        logger.Get().With().Str("component", "pipeline").Logger(),
	}
}

// Wait blocks until background writes have finished.
func (p *Pipeline) Wait() {
	p.writes.Wait()
}

// validate runs the steps after a payload was read, advancing s through
// its states. A cancelled ctx stops it at the next step boundary.
func (p *Pipeline) validate(ctx context.Context, s *Session, raw []byte) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, sessionError(err)
	}
	payload, err := card.Parse(raw)
	if err != nil {
		return Record{}, parseError(err)
	}
	s.advance(StatePayloadParsed)

	sel := s.Selection()
	if payload.CourseToken != sel.CourseID {
		return Record{}, &ScanError{Reason: ReasonCourseMismatch, Scanned: payload.CourseToken, Selected: sel.CourseID}
	}
	s.advance(StateCourseMatched)

	var professors []Professor
	err = p.lookup(ctx, LookupProfessor, func(ctx context.Context) (err error) {
		professors, err = p.professors.FindProfessors(ctx, sel.CourseID, payload.ProfessorID)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	if len(professors) == 0 {
		return Record{}, fail(ReasonUnknownProfessorCard, nil)
	}
	professorName := professors[0].ProfessorName
	if professorName == "" {
		professorName = UnknownProfessor
	}
	s.advance(StateProfessorValidated)

	var students []Student
	err = p.lookup(ctx, LookupStudent, func(ctx context.Context) (err error) {
		students, err = p.students.FindStudents(ctx, sel.UserIdentity)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	if len(students) == 0 {
		return Record{}, fail(ReasonStudentNotFound, nil)
	}
	student := students[0]
	s.advance(StateStudentResolved)

	now := p.opts.Now()
	rec := Record{
		ID:            p.opts.NewID(),
		CourseID:      sel.CourseID,
		StudentEmail:  sel.UserIdentity,
		StudentID:     student.StudentID,
		StudentName:   student.StudentName,
		ProfessorID:   payload.ProfessorID,
		ProfessorName: professorName,
		Timestamp:     p.opts.Timestamper.Format(now),
		RecordedAt:    now.UTC(),
	}
	if err := ctx.Err(); err != nil {
		return Record{}, sessionError(err)
	}
	if err := p.submit(ctx, s.log, rec); err != nil {
		return Record{}, err
	}
	s.advance(StateRecordWritten)
	return rec, nil
}

// lookup runs fn under the lookup timeout. A result arriving after ctx
// ended is discarded.
func (p *Pipeline) lookup(ctx context.Context, store string, fn func(ctx context.Context) error) error {
	lctx, cancel := context.WithTimeout(ctx, p.opts.LookupTimeout)
	defer cancel()

	start := time.Now()
	err := fn(lctx)
	metrics.LookupDuration.WithLabelValues(store).Observe(time.Since(start).Seconds())

	if cerr := ctx.Err(); cerr != nil {
		return sessionError(cerr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lctx.Err(), context.DeadlineExceeded) {
			err = ErrLookupTimeout
		}
		return &ScanError{Reason: ReasonLookupFailed, Lookup: store, Err: err}
	}
	return nil
}

// submit hands rec to the writer. Once called the write is not tied to
// the session any more: cancelling the session does not abort it.
func (p *Pipeline) submit(ctx context.Context, log zerolog.Logger, rec Record) error {
	if p.opts.SyncWrite {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.WriteTimeout)
		defer cancel()
		if err := p.write(wctx, log, rec); err != nil {
			return fail(ReasonWriteFailed, err)
		}
		return nil
	}

	p.writes.Add(1)
	go func() {
		defer p.writes.Done()
		wctx, cancel := context.WithTimeout(context.Background(), p.opts.WriteTimeout)
		defer cancel()
		// failure is logged only; success was already reported
		_ = p.write(wctx, log, rec)
	}()
	return nil
}

func (p *Pipeline) write(ctx context.Context, log zerolog.Logger, rec Record) error {
	err := p.writer.Write(ctx, rec)
	switch {
	case err == nil:
		metrics.WritesTotal.WithLabelValues("ok").Inc()
		log.Info().Str("record_id", rec.ID).Msg("attendance record saved")
		return nil
	case errors.Is(err, ErrDuplicateRecord):
		metrics.WritesTotal.WithLabelValues("duplicate").Inc()
		log.Info().Str("record_id", rec.ID).Msg("attendance already recorded today, write skipped")
		return nil
	default:
		metrics.WritesTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("record_id", rec.ID).Msg("saving attendance record failed")
		return err
	}
}
