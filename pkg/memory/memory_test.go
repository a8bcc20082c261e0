package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, r.Record(Note{Kind: KindHold, Repo: "acme/widgets", SHA: "aaa", Reason: "high_risk_no_approval"}))
	require.NoError(t, r.Record(Note{Kind: KindDeployFailure, Repo: "acme/widgets", SHA: "bbb", Reason: "failure"}))
	require.NoError(t, r.Record(Note{Kind: KindHold, Repo: "acme/other", SHA: "ccc", Reason: "rate_limit"}))

	notes, err := r.Recent("acme/widgets", 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "aaa", notes[0].SHA)
	assert.Equal(t, "bbb", notes[1].SHA)
	assert.NotEmpty(t, notes[0].CreatedAt)

	other, err := r.Recent("acme/other", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRecent_Limit(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Record(Note{Kind: KindHold, Repo: "acme/widgets", SHA: "s", Reason: "cooldown"}))
	}
	notes, err := r.Recent("acme/widgets", 2)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestRecent_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	require.NoError(t, err)

	require.NoError(t, r.Record(Note{Kind: KindHold, Repo: "acme/widgets", SHA: "aaa"}))

	f, err := os.OpenFile(filepath.Join(dir, "acme__widgets.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, r.Record(Note{Kind: KindHold, Repo: "acme/widgets", SHA: "bbb"}))

	notes, err := r.Recent("acme/widgets", 10)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "aaa", notes[0].SHA)
	assert.Equal(t, "bbb", notes[1].SHA)
}

func TestRecent_NoFile(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	notes, err := r.Recent("acme/none", 10)
	require.NoError(t, err)
	assert.Nil(t, notes)
}
