package risk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootyhq/booty/pkg/types"
)

// fakeOverrideSource serves a scripted override after a set number of polls.
type fakeOverrideSource struct {
	mu        sync.Mutex
	polls     int
	available *types.SecurityOverride
	afterPoll int
}

func (f *fakeOverrideSource) GetOverride(repo, sha string) (*types.SecurityOverride, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.available != nil && f.polls > f.afterPoll {
		return f.available, true, nil
	}
	return nil, false, nil
}

func TestAwaitOverride_ImmediateHit(t *testing.T) {
	src := &fakeOverrideSource{available: &types.SecurityOverride{RiskOverride: types.RiskHigh, SHA: "abc"}}

	o, err := AwaitOverride(context.Background(), src, "owner/repo", "abc", time.Second, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, types.RiskHigh, o.RiskOverride)
}

func TestAwaitOverride_AppearsWithinWindow(t *testing.T) {
	src := &fakeOverrideSource{
		available: &types.SecurityOverride{RiskOverride: types.RiskHigh, SHA: "abc"},
		afterPoll: 3,
	}

	o, err := AwaitOverride(context.Background(), src, "owner/repo", "abc", time.Second, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, o)
}

func TestAwaitOverride_FailsOpenOnDeadline(t *testing.T) {
	src := &fakeOverrideSource{}

	o, err := AwaitOverride(context.Background(), src, "owner/repo", "abc", 20*time.Millisecond, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestAwaitOverride_ContextCancelled(t *testing.T) {
	src := &fakeOverrideSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AwaitOverride(ctx, src, "owner/repo", "abc", time.Second, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
