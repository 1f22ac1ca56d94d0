package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsFreshState(t *testing.T) {
	st := NewStore(t.TempDir())

	s := st.Load("dev@example.com")
	assert.False(t, s.FirstRunCompleted)
	assert.Nil(t, s.LastRunUTC)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := NewStore(t.TempDir())
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.Save("Dev@Example.com", AccountState{
		FirstRunCompleted: true,
		LastRunUTC:        &now,
	}))

	s := st.Load("dev@example.com")
	assert.True(t, s.FirstRunCompleted)
	require.NotNil(t, s.LastRunUTC)
	assert.True(t, now.Equal(*s.LastRunUTC))
}

func TestLoadCorruptFileFailsOpen(t *testing.T) {
	root := t.TempDir()
	st := NewStore(root)

	dir, err := st.AccountDir("dev@example.com")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0o644))

	s := st.Load("dev@example.com")
	assert.False(t, s.FirstRunCompleted)
	assert.Nil(t, s.LastRunUTC)
}

func TestLookbackDays(t *testing.T) {
	var s AccountState
	assert.Equal(t, 60, s.LookbackDays(60, 3), "no prior run uses initial window")

	now := time.Now().UTC()
	s.LastRunUTC = &now
	assert.Equal(t, 3, s.LookbackDays(60, 3), "prior run uses incremental window")
}

func TestAccountDirNaming(t *testing.T) {
	root := t.TempDir()
	st := NewStore(root)

	dir, err := st.AccountDir("Dev@Example.com")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dev_at_example.com"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
