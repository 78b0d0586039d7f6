package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"attendease/internal/logger"
	"attendease/internal/queue"
)

// ErrDuplicateRecord is returned by DailyDedup when the student already
// has a record for the course that day.
var ErrDuplicateRecord = errors.New("attendance already recorded for this day")

// QueueWriter publishes records for the worker to persist.
type QueueWriter struct {
	q queue.Queue
}

func NewQueueWriter(q queue.Queue) *QueueWriter {
	return &QueueWriter{q: q}
}

func (w *QueueWriter) Write(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.q.Publish(ctx, queue.Message{Type: queue.TypeAttendanceWrite, Body: body})
}

// DecodeRecord extracts the record from a queued attendance write.
func DecodeRecord(msg queue.Message) (Record, error) {
	if msg.Type != queue.TypeAttendanceWrite {
		return Record{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var rec Record
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.ID == "" || rec.CourseID == "" || rec.StudentEmail == "" {
		return Record{}, errors.New("decode record: missing id, course or student")
	}
	return rec, nil
}

// Claimer claims idempotency keys, e.g. store.Redis.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// DailyDedup lets at most one record per (course, student, day) through
// to the wrapped writer.
type DailyDedup struct {
	next    Writer
	claimer Claimer
	loc     *time.Location
	ttl     time.Duration
	log     zerolog.Logger
}

// NewDailyDedup wraps next. Days are calendar days in loc.
func NewDailyDedup(next Writer, claimer Claimer, loc *time.Location) *DailyDedup {
	if loc == nil {
		loc = time.Local
	}
	return &DailyDedup{
		next:    next,
		claimer: claimer,
		loc:     loc,
		ttl:     36 * time.Hour,
		log:     logger.Get().With().Str("component", "daily_dedup").Logger(),
	}
}

// Key is the idempotency key of rec.
func (d *DailyDedup) Key(rec Record) string {
	return fmt.Sprintf("attendance:dedup:%s:%s:%s", rec.CourseID, rec.StudentEmail, rec.RecordedAt.In(d.loc).Format("2006-01-02"))
}

func (d *DailyDedup) Write(ctx context.Context, rec Record) error {
	key := d.Key(rec)
	claimed, err := d.claimer.Claim(ctx, key, d.ttl)
	if err != nil {
		// keep recording when the key store is down
		d.log.Warn().Err(err).Str("key", key).Msg("dedup claim failed, writing anyway")
		return d.next.Write(ctx, rec)
	}
	if !claimed {
		return ErrDuplicateRecord
	}
	if err := d.next.Write(ctx, rec); err != nil {
		if rerr := d.claimer.Release(ctx, key); rerr != nil {
			d.log.Warn().Err(rerr).Str("key", key).Msg("dedup release failed")
		}
		return err
	}
	return nil
}
