package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendease/internal/queue"
)

type fakeClaimer struct {
	err error

	mu   sync.Mutex
	keys map[string]bool
}

func (c *fakeClaimer) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]bool)
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *fakeClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func sampleRecord(id string, at time.Time) Record {
	return Record{
		ID:            id,
		CourseID:      "380",
		StudentEmail:  "ada@uni.edu",
		StudentID:     "S-1",
		StudentName:   "Ada Lovelace",
		ProfessorID:   "17",
		ProfessorName: "Dr. Hopper",
		Timestamp:     "12/4/24, 3:15 PM",
		RecordedAt:    at,
	}
}

func TestQueueWriterRoundTrip(t *testing.T) {
	q := queue.NewInMemory(1)
	w := NewQueueWriter(q)
	rec := sampleRecord("rec-1", scanTime)

	require.NoError(t, w.Write(context.Background(), rec))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, queue.TypeAttendanceWrite, msg.Type)

	got, err := DecodeRecord(msg)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestDecodeRecordRejects(t *testing.T) {
	body, err := json.Marshal(Record{ID: "rec-1"})
	require.NoError(t, err)

	tests := []struct {
		name string
		msg  queue.Message
	}{
		{name: "wrong type", msg: queue.Message{Type: "other", Body: body}},
		{name: "bad json", msg: queue.Message{Type: queue.TypeAttendanceWrite, Body: json.RawMessage(`{`)}},
		{name: "missing fields", msg: queue.Message{Type: queue.TypeAttendanceWrite, Body: body}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(tt.msg)
			assert.Error(t, err)
		})
	}
}

func TestDailyDedup(t *testing.T) {
	next := &recordingWriter{}
	d := NewDailyDedup(next, &fakeClaimer{}, time.UTC)
	ctx := context.Background()

	require.NoError(t, d.Write(ctx, sampleRecord("a", scanTime)))
	assert.ErrorIs(t, d.Write(ctx, sampleRecord("b", scanTime.Add(2*time.Hour))), ErrDuplicateRecord)
	require.NoError(t, d.Write(ctx, sampleRecord("c", scanTime.Add(24*time.Hour))))

	other := sampleRecord("d", scanTime)
	other.CourseID = "235"
	require.NoError(t, d.Write(ctx, other))

	assert.Len(t, next.Records(), 3)
	assert.Equal(t, "attendance:dedup:380:ada@uni.edu:2024-12-04", d.Key(sampleRecord("a", scanTime)))
}

func TestDailyDedupReleasesOnFailure(t *testing.T) {
	next := &recordingWriter{err: errors.New("disk full")}
	d := NewDailyDedup(next, &fakeClaimer{}, time.UTC)
	ctx := context.Background()

	assert.EqualError(t, d.Write(ctx, sampleRecord("a", scanTime)), "disk full")
	next.err = nil
	assert.NoError(t, d.Write(ctx, sampleRecord("b", scanTime)))
}

func TestDailyDedupClaimErrorStillWrites(t *testing.T) {
	next := &recordingWriter{}
	d := NewDailyDedup(next, &fakeClaimer{err: errors.New("redis down")}, time.UTC)

	require.NoError(t, d.Write(context.Background(), sampleRecord("a", scanTime)))
	require.NoError(t, d.Write(context.Background(), sampleRecord("b", scanTime)))
	assert.Len(t, next.Records(), 2)
}
