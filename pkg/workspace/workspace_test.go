package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PrepareAndCleanup(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	dir, err := m.Prepare("job1")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, m.Cleanup(dir))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_CleanupRefusesOutsideRoot(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	other := t.TempDir()
	assert.Error(t, m.Cleanup(other))
	assert.Error(t, m.Cleanup(filepath.Join(m.root, "..")))
	assert.NoError(t, m.Cleanup(""))
}

func TestManager_PrepareIsolatesJobs(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	a, err := m.Prepare("job")
	require.NoError(t, err)
	b, err := m.Prepare("job")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRunStep_Success(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RunStep(context.Background(), dir, "test", "true", time.Minute))
}

func TestRunStep_EmptyCommandIsNoop(t *testing.T) {
	assert.NoError(t, RunStep(context.Background(), t.TempDir(), "setup", "   ", time.Minute))
}

func TestRunStep_FailureCarriesOutput(t *testing.T) {
	dir := t.TempDir()
	err := RunStep(context.Background(), dir, "test", "ls does-not-exist-anywhere", time.Minute)
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "test", cmdErr.Step)
	assert.False(t, cmdErr.TimedOut)
	assert.NotEmpty(t, cmdErr.Output)
}

func TestRunStep_Timeout(t *testing.T) {
	dir := t.TempDir()
	err := RunStep(context.Background(), dir, "test", "sleep 5", 50*time.Millisecond)
	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.True(t, cmdErr.TimedOut)
}
