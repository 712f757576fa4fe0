package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/pitchtrace/internal/store"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

func TestRecorder_SessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	rec := store.NewRecorder(st, store.WithBatchSize(2), store.WithFlushInterval(time.Hour))
	defer rec.Close()

	started := time.UnixMilli(1_700_000_000_000)
	id, err := rec.Begin(ctx, "browser", started)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "session id should be a uuid")

	for i := range 5 {
		require.True(t, rec.Record(id, tracker.Point{Elapsed: float64(i) * 0.128, Value: 200 + float64(i)}))
	}
	require.NoError(t, rec.End(ctx, id, started.Add(time.Second)))

	pts, err := st.Points(ctx, id)
	require.NoError(t, err)
	require.Len(t, pts, 5)
	assert.Equal(t, 204.0, pts[4].Value)

	sessions, err := st.Sessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Ended.IsZero())
}

func TestRecorder_FlushesOnInterval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	rec := store.NewRecorder(st, store.WithBatchSize(1000), store.WithFlushInterval(20*time.Millisecond))
	defer rec.Close()

	id, err := rec.Begin(ctx, "browser", time.Now())
	require.NoError(t, err)
	rec.Record(id, tracker.Point{Elapsed: 0.1, Value: 300})

	assert.Eventually(t, func() bool {
		pts, err := st.Points(ctx, id)
		return err == nil && len(pts) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorder_CloseWritesBuffered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openStore(t)
	rec := store.NewRecorder(st, store.WithBatchSize(1000), store.WithFlushInterval(time.Hour))

	id, err := rec.Begin(ctx, "browser", time.Now())
	require.NoError(t, err)
	rec.Record(id, tracker.Point{Elapsed: 0.1, Value: 300})
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	pts, err := st.Points(ctx, id)
	require.NoError(t, err)
	assert.Len(t, pts, 1)

	assert.False(t, rec.Record(id, tracker.Point{Elapsed: 0.2, Value: 1}), "closed recorder must reject points")
	assert.NoError(t, rec.Flush(ctx))
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	st := openStore(t)
	// A one-slot queue cannot always keep up with a tight loop.
	rec := store.NewRecorder(st, store.WithQueueSize(1), store.WithFlushInterval(time.Hour))
	defer rec.Close()

	id, err := rec.Begin(context.Background(), "browser", time.Now())
	require.NoError(t, err)

	accepted := 0
	for i := range 10_000 {
		if rec.Record(id, tracker.Point{Elapsed: float64(i), Value: 1}) {
			accepted++
		}
	}
	assert.Positive(t, accepted)
	assert.Equal(t, int64(10_000-accepted), rec.Dropped())
}
