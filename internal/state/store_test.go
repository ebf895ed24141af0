package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provisor-io/provisor/internal/ir"
)

func testRun(id string, startedAt time.Time) *ir.Run {
	return &ir.Run{
		ID:        id,
		Manifest:  "protect-server",
		State:     ir.RunInProgress,
		StartedAt: startedAt,
		Outcomes: []*ir.StepOutcome{
			{Step: "install_db", State: ir.StateSucceeded, Attempts: 1},
			{Step: "secure_db", State: ir.StatePending},
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "runs"))
	run := testRun("r1", time.Now().UTC().Truncate(time.Second))

	require.NoError(t, store.Save(run))

	loaded, err := store.Load("r1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, run.Manifest, loaded.Manifest)
	require.Len(t, loaded.Outcomes, 2)
	assert.Equal(t, ir.StateSucceeded, loaded.Outcome("install_db").State)
	assert.True(t, run.StartedAt.Equal(loaded.StartedAt))
}

func TestStore_LoadUnknownRun(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_FilesAreInspectable(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testRun("r1", time.Now())))

	raw, err := os.ReadFile(filepath.Join(dir, "r1.json"))
	require.NoError(t, err)

	// Pretty-printed with a trailing newline, for operators with less(1).
	assert.Contains(t, string(raw), "\n  \"manifest\": \"protect-server\"")
	assert.True(t, strings.HasSuffix(string(raw), "\n"))
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testRun("r1", time.Now())))
	require.NoError(t, store.Save(testRun("r1", time.Now())))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1.json", entries[0].Name())
}

func TestStore_AppendReplacesExistingOutcome(t *testing.T) {
	store := NewStore(t.TempDir())
	run := testRun("r1", time.Now())
	require.NoError(t, store.Save(run))

	require.NoError(t, store.Append(run, &ir.StepOutcome{
		Step: "secure_db", State: ir.StateSucceeded, Attempts: 2,
	}))

	loaded, err := store.Load("r1")
	require.NoError(t, err)
	require.Len(t, loaded.Outcomes, 2, "replaced in place, not duplicated")
	assert.Equal(t, ir.StateSucceeded, loaded.Outcome("secure_db").State)
	assert.Equal(t, 2, loaded.Outcome("secure_db").Attempts)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := NewStore(t.TempDir())
	base := time.Now().UTC()
	require.NoError(t, store.Save(testRun("old", base.Add(-2*time.Hour))))
	require.NoError(t, store.Save(testRun("new", base)))
	require.NoError(t, store.Save(testRun("mid", base.Add(-time.Hour))))

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
	assert.Equal(t, "old", runs[2].ID)
}

func TestStore_ListEmptyDirectory(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never-created"))
	runs, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_ListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, store.Save(testRun("good", time.Now())))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{truncated"), 0644))

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "good", runs[0].ID)
}
