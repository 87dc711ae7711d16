package history

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAppendAndRead(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 4, 5, 0, time.UTC)
	log := New(t.TempDir(), WithClock(fixedClock(now)))

	e, err := log.Append(types.HistoryEvent{
		Event:     types.EventLessonApplied,
		JourneyID: "JRN-001",
		LessonID:  "L001",
		Success:   types.BoolPtr(true),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.True(t, e.Timestamp.Equal(now))

	_, err = log.Append(types.HistoryEvent{Event: types.EventComponentUsed, ComponentID: "C001", Success: types.BoolPtr(false)})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(log.Dir(), "2026-05-10.jsonl"))

	events, err := log.Read(now)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventLessonApplied, events[0].Event)
	assert.Equal(t, "JRN-001", events[0].JourneyID)
	require.NotNil(t, events[1].Success)
	assert.False(t, *events[1].Success)
}

func TestAppendRejectsInvalidEvent(t *testing.T) {
	log := New(t.TempDir())
	_, err := log.Append(types.HistoryEvent{Event: "bogus"})
	assert.Error(t, err)

	days, err := log.Days()
	require.NoError(t, err)
	assert.Empty(t, days)
}

func TestAppendIsAppendOnly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	log := New(dir, WithClock(fixedClock(now)))

	_, err := log.Append(types.HistoryEvent{Event: types.EventDiscoveryRun})
	require.NoError(t, err)
	first, err := os.ReadFile(log.PathFor(now))
	require.NoError(t, err)

	_, err = log.Append(types.HistoryEvent{Event: types.EventDiscoveryRun})
	require.NoError(t, err)
	second, err := os.ReadFile(log.PathFor(now))
	require.NoError(t, err)

	assert.Equal(t, first, second[:len(first)])
}

func TestConcurrentAppends(t *testing.T) {
	log := New(t.TempDir())
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Append(types.HistoryEvent{Event: types.EventPatternApplied})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := log.ReadRange(time.Now().Add(-48*time.Hour), time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, n)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	content := `{"id":"1","event":"lesson_applied","timestamp":"2026-01-02T10:00:00Z"}
not json

{"id":"2","event":"component_used","timestamp":"2026-01-02T11:00:00Z"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-01-02.jsonl"), []byte(content), 0644))

	events, err := New(dir).Read(day)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[1].ID)
}

func TestReadRangeAndDays(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []time.Time{
		time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	} {
		_, err := New(dir, WithClock(fixedClock(d))).Append(types.HistoryEvent{Event: types.EventDiscoveryRun})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	log := New(dir)
	days, err := log.Days()
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 1, days[0].Day())

	events, err := log.ReadRange(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, events, 2)

	oldest, err := log.Oldest()
	require.NoError(t, err)
	assert.Equal(t, days[0], oldest)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -100)
	recent := now.AddDate(0, 0, -5)
	for _, d := range []time.Time{old, recent, now} {
		_, err := New(dir, WithClock(fixedClock(d))).Append(types.HistoryEvent{Event: types.EventLessonApplied, LessonID: "L1"})
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		archive bool
	}{
		{"delete only", false},
		{"archive", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := t.TempDir()
			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				data, err := os.ReadFile(filepath.Join(dir, e.Name()))
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(filepath.Join(work, e.Name()), data, 0644))
			}

			log := New(work, WithClock(fixedClock(now)))
			result, err := log.Prune(90, tt.archive)
			require.NoError(t, err)
			assert.Len(t, result.Removed, 1)
			assert.Equal(t, 2, result.Kept)
			assert.NoFileExists(t, log.PathFor(old))
			assert.FileExists(t, log.PathFor(recent))

			if !tt.archive {
				assert.Empty(t, result.Archived)
				return
			}
			require.Len(t, result.Archived, 1)
			events, err := log.ReadArchive(result.Archived[0])
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, "L1", events[0].LessonID)

			archived, err := os.ReadDir(filepath.Join(work, ArchiveDir))
			require.NoError(t, err)
			require.Len(t, archived, 1, "no temp files left beside the archive")
			assert.Equal(t, filepath.Base(result.Archived[0]), archived[0].Name())
		})
	}
}

func TestPruneRejectsNonPositiveRetention(t *testing.T) {
	_, err := New(t.TempDir()).Prune(0, false)
	assert.Error(t, err)
}
