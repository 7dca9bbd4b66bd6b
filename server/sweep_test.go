package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server/storage"
	"github.com/cyp0633/librecur/server/storage/memory"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingSink keeps every handoff
type recordingSink struct {
	mu      sync.Mutex
	handoff map[string][]time.Time
	err     error
}

func (s *recordingSink) Handoff(_ context.Context, sched *storage.Schedule, instances []recurrence.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.handoff == nil {
		s.handoff = make(map[string][]time.Time)
	}
	for _, inst := range instances {
		s.handoff[sched.ID] = append(s.handoff[sched.ID], inst.Scheduled)
	}
	return nil
}

func putSchedule(t *testing.T, store storage.Storage, id string, p recurrence.Patch, last mo.Option[time.Time]) {
	t.Helper()
	p.Enabled = mo.Some(true)
	p.Hour = mo.Some(9)
	p.Timezone = mo.Some("UTC")
	_, err := store.PutSchedule(context.Background(), &storage.Schedule{
		ID:            id,
		UserID:        "alice",
		Config:        recurrence.New(p),
		LastScheduled: last,
	}, storage.PutOptions{})
	require.NoError(t, err)
}

func jan(d int) time.Time {
	return time.Date(2025, 1, d, 9, 0, 0, 0, time.UTC)
}

func TestSweeper_Sweep(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	putSchedule(t, store, "daily", recurrence.Patch{
		Frequency:      mo.Some(recurrence.FrequencyDaily),
		LookaheadCount: mo.Some(3),
		CatchUpLimit:   mo.Some(2),
		DaysBeforeDue:  mo.Some(1),
	}, mo.Some(jan(2)))
	putSchedule(t, store, "waits", recurrence.Patch{
		Frequency:      mo.Some(recurrence.FrequencyDaily),
		GenerationMode: mo.Some(recurrence.GenerateOnPrevComplete),
		DaysBeforeDue:  mo.Some(1),
	}, mo.None[time.Time]())
	_, err := store.PutSchedule(ctx, &storage.Schedule{ID: "off", UserID: "bob", Config: recurrence.Default()}, storage.PutOptions{})
	require.NoError(t, err)

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	sink := &recordingSink{}
	engine := recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig)
	defer engine.Close()

	sweeper, err := NewSweeper(store, engine, WithSink(sink), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Schedules)
	assert.Equal(t, 0, res.Failed)

	// Two overdue kept by the catch-up limit, then the lookahead instance due
	// for creation a day early; Jan 8 is not ready yet.
	assert.Equal(t, []time.Time{jan(5), jan(6), jan(7)}, sink.handoff["daily"])
	// on_prev_complete hands off a single instance
	assert.Equal(t, []time.Time{jan(7)}, sink.handoff["waits"])
	assert.NotContains(t, sink.handoff, "off")
	assert.Equal(t, 4, res.HandedOff)

	daily, err := store.GetSchedule(ctx, "alice", "daily")
	require.NoError(t, err)
	assert.Equal(t, mo.Some(jan(7)), daily.LastScheduled)
	assert.False(t, daily.PreviousOpen)

	waits, err := store.GetSchedule(ctx, "alice", "waits")
	require.NoError(t, err)
	assert.True(t, waits.PreviousOpen)

	// A second pass at the same instant has nothing new to hand off
	sink.handoff = nil
	res, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.HandedOff)
	assert.Empty(t, sink.handoff)

	// Completing the open instance releases the next one
	waits.PreviousOpen = false
	_, err = store.PutSchedule(ctx, waits, storage.PutOptions{IfMatch: waits.ETag})
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	res, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(8)}, sink.handoff["waits"])
}

func TestSweeper_NewScheduleWithDefaultLeadTime(t *testing.T) {
	created := time.Date(2025, 1, 6, 8, 59, 30, 0, time.UTC)
	now := created
	store := memory.New(memory.WithClock(func() time.Time { return created }))
	ctx := context.Background()

	// Default config: created the moment it is due, never ahead of time
	putSchedule(t, store, "daily", recurrence.Patch{Frequency: mo.Some(recurrence.FrequencyDaily)}, mo.None[time.Time]())

	sink := &recordingSink{}
	engine := recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig)
	defer engine.Close()
	sweeper, err := NewSweeper(store, engine, WithSink(sink), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for i := 0; i < 72; i++ {
		now = created.Add(time.Duration(i) * time.Hour)
		_, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []time.Time{jan(6), jan(7), jan(8)}, sink.handoff["daily"])
	sched, err := store.GetSchedule(ctx, "alice", "daily")
	require.NoError(t, err)
	assert.Equal(t, mo.Some(jan(8)), sched.LastScheduled)
}

func TestSweeper_SinkFailureKeepsSchedule(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	putSchedule(t, store, "daily", recurrence.Patch{Frequency: mo.Some(recurrence.FrequencyDaily)}, mo.Some(jan(5)))

	var buf bytes.Buffer
	sweeper, err := NewSweeper(store, nil,
		WithSink(&recordingSink{err: errors.New("queue full")}),
		WithClock(func() time.Time { return time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC) }),
		WithSweepLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, buf.String(), "queue full")

	sched, _ := store.GetSchedule(ctx, "alice", "daily")
	assert.Equal(t, mo.Some(jan(5)), sched.LastScheduled)
}

func TestSweeper_ConcurrentEditIsReported(t *testing.T) {
	mockStorage := &storage.MockStorage{}
	sched := storage.NewMockSchedule("alice", "daily", "Daily", recurrence.New(recurrence.Patch{
		Enabled:       mo.Some(true),
		Frequency:     mo.Some(recurrence.FrequencyDaily),
		Timezone:      mo.Some("UTC"),
		DaysBeforeDue: mo.Some(1),
	}))
	mockStorage.On("ListAllSchedules").Return([]*storage.Schedule{sched}, nil)
	mockStorage.On("PutSchedule", mock.Anything, storage.PutOptions{IfMatch: `"etag-daily-1"`}).
		Return("", &storage.Error{Type: storage.ErrPreconditionFailed, Message: "etag mismatch"})

	sweeper, err := NewSweeper(mockStorage, nil, WithSink(&recordingSink{}),
		WithClock(func() time.Time { return time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	res, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	mockStorage.AssertExpectations(t)
}

func TestSweeper_ListFailure(t *testing.T) {
	mockStorage := &storage.MockStorage{}
	mockStorage.On("ListAllSchedules").Return([]*storage.Schedule(nil), errors.New("db down"))

	sweeper, err := NewSweeper(mockStorage, nil)
	require.NoError(t, err)

	_, err = sweeper.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestNewSweeper_Spec(t *testing.T) {
	_, err := NewSweeper(memory.New(), nil, WithSweepSpec("every now and then"))
	assert.Error(t, err)

	_, err = NewSweeper(nil, nil)
	assert.Error(t, err)

	sweeper, err := NewSweeper(memory.New(), nil, WithSweepSpec("*/5 * * * *"))
	require.NoError(t, err)
	sweeper.Start()
	assert.NoError(t, sweeper.Stop(context.Background()))
}
