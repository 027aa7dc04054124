package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/simlog"
	"github.com/jeffcaljr/Unix-Message-Passing-and-Operating-System-Simulator/internal/vclock"
)

func testRun(id string, started time.Time) Run {
	return Run{
		ID:          id,
		StartedAt:   started,
		Workers:     5,
		ClockLimit:  2,
		SpawnLimit:  100,
		MaxDuration: 20 * time.Second,
	}
}

func TestBeginRun_ReadRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	started := time.Unix(1_700_000_000, 42)

	require.NoError(t, s.BeginRun(ctx, testRun("run-1", started)))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 5, got.Workers)
	assert.EqualValues(t, 2, got.ClockLimit)
	assert.Equal(t, 100, got.SpawnLimit)
	assert.Equal(t, 20*time.Second, got.MaxDuration)
	assert.Equal(t, RunRunning, got.Status)
	assert.Nil(t, got.FinishedAt)
}

func TestBeginRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Now())))
	assert.Error(t, s.BeginRun(ctx, testRun("run-1", time.Now())))
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Unix(100, 0))))

	finished := time.Unix(120, 0)
	require.NoError(t, s.FinishRun(ctx, "run-1", RunSummary{
		StopReason:   "spawn limit",
		TotalSpawned: 101,
		Completions:  96,
		FinalClock:   vclock.Time{Seconds: 0, Nanoseconds: 731000},
		FinishedAt:   finished,
	}))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunFinished, got.Status)
	assert.Equal(t, "spawn limit", got.StopReason)
	assert.Equal(t, 101, got.TotalSpawned)
	assert.Equal(t, 96, got.Completions)
	assert.Equal(t, vclock.Time{Nanoseconds: 731000}, got.FinalClock)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestFinishRun_Unknown(t *testing.T) {
	s := createTestStore(t)
	err := s.FinishRun(context.Background(), "ghost", RunSummary{FinishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BeginRun(ctx, testRun("older", time.Unix(100, 0))))
	require.NoError(t, s.BeginRun(ctx, testRun("newer", time.Unix(200, 0))))

	got, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.ID)
}

func TestWriteEvent_ReadEventsOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Now())))

	// Written out of order; read back by seq.
	require.NoError(t, s.WriteEvent(ctx, "run-1", 2, simlog.Event{
		Kind:         simlog.KindCompletion,
		Worker:       1,
		MasterClock:  vclock.Time{Nanoseconds: 48000},
		WorkerClock:  vclock.Time{Nanoseconds: 47000},
		TotalSpawned: 1,
		Live:         0,
	}))
	require.NoError(t, s.WriteEvent(ctx, "run-1", 1, simlog.Event{
		Kind:         simlog.KindSpawn,
		Worker:       1,
		TotalSpawned: 1,
		Live:         1,
	}))
	require.NoError(t, s.WriteEvent(ctx, "run-1", 3, simlog.Event{
		Kind:   simlog.KindStop,
		Reason: "clock limit",
	}))

	events, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.EqualValues(t, 1, events[0].Seq)
	assert.Equal(t, simlog.KindSpawn, events[0].Kind)
	assert.Equal(t, simlog.KindCompletion, events[1].Kind)
	assert.Equal(t, vclock.Time{Nanoseconds: 47000}, events[1].WorkerClock)
	assert.Equal(t, "clock limit", events[2].Reason)

	ev := events[1].Event()
	assert.EqualValues(t, 1, ev.Worker)
	assert.Equal(t, vclock.Time{Nanoseconds: 48000}, ev.MasterClock)
}

func TestWriteEvent_DuplicateSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Now())))

	require.NoError(t, s.WriteEvent(ctx, "run-1", 1, simlog.Event{Kind: simlog.KindSpawn}))
	assert.Error(t, s.WriteEvent(ctx, "run-1", 1, simlog.Event{Kind: simlog.KindSpawn}))
}

func TestWriteEvent_UnknownRun(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteEvent(context.Background(), "ghost", 1, simlog.Event{Kind: simlog.KindSpawn})
	assert.Error(t, err, "foreign key should reject events for unknown runs")
}

func TestReadEvents_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	events, err := s.ReadEvents(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestRecorder_ConcurrentWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BeginRun(ctx, testRun("run-1", time.Now())))

	rec := NewRecorder(ctx, s, "run-1")
	var sink simlog.Sink = rec

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, sink.Record(simlog.Event{Kind: simlog.KindSpawn}))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 100, rec.Written())
	events, err := s.ReadEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.EqualValues(t, i+1, ev.Seq)
	}
}

func TestSequence(t *testing.T) {
	seq := NewSequence()
	assert.Zero(t, seq.Current())
	assert.EqualValues(t, 1, seq.Next())
	assert.EqualValues(t, 2, seq.Next())

	resumed := NewSequenceAt(41)
	assert.EqualValues(t, 42, resumed.Next())
}

func TestGenerators(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)

	fixed := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", fixed.Generate())
	assert.Equal(t, "run-2", fixed.Generate())
	assert.Panics(t, func() { fixed.Generate() })
}
