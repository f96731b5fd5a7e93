package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndReplay(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	sid, err := r.Begin(ctx, "ocean")
	require.NoError(t, err)
	require.NotEmpty(t, sid)

	now := time.Now()
	events := []Event{
		{Seq: 0, At: now, Kind: "stepEnter", StepIndex: 0, Direction: "down"},
		{Seq: 1, At: now, Kind: "stepProgress", StepIndex: 0, Direction: "down", Progress: 0.25},
		{Seq: 2, At: now, Kind: "stepExit", StepIndex: 0, Direction: "down", Progress: 1},
		{Seq: 3, At: now, Kind: "containerExit", StepIndex: -1, Direction: "down"},
	}
	for _, ev := range events {
		require.NoError(t, r.Record(ctx, sid, ev))
	}

	got, err := r.Events(ctx, sid)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "stepEnter", got[0].Kind)
	assert.Equal(t, 0.25, got[1].Progress)
	assert.Equal(t, -1, got[3].StepIndex)
}

func TestDuplicateSeqRejected(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	sid, err := r.Begin(ctx, "ocean")
	require.NoError(t, err)

	ev := Event{Seq: 0, At: time.Now(), Kind: "stepEnter", Direction: "down"}
	require.NoError(t, r.Record(ctx, sid, ev))
	assert.Error(t, r.Record(ctx, sid, ev), "the (session, seq) key is unique")
}

func TestSessionsNewestFirst(t *testing.T) {
	r := openTestRecorder(t)
	ctx := context.Background()

	first, err := r.Begin(ctx, "ocean")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := r.Begin(ctx, "ocean")
	require.NoError(t, err)
	_, err = r.Begin(ctx, "other-story")
	require.NoError(t, err)

	ids, err := r.Sessions(ctx, "ocean")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, second, ids[0])
	assert.Equal(t, first, ids[1])
}
