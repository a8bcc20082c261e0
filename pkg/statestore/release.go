package statestore

import (
	"github.com/bootyhq/booty/pkg/types"
)

// LoadRelease returns the persisted release state for repo, or a zero state
// when none exists yet.
func (s *Store) LoadRelease(repo string) (*types.ReleaseState, error) {
	path, err := s.docPath(repo, releaseFile)
	if err != nil {
		return nil, err
	}
	state := &types.ReleaseState{}
	if _, err := s.readDoc(path, state); err != nil {
		return nil, err
	}
	return state, nil
}

// SaveRelease persists the release state for repo.
func (s *Store) SaveRelease(repo string, state *types.ReleaseState) error {
	path, err := s.docPath(repo, releaseFile)
	if err != nil {
		return err
	}
	return s.writeDoc(path, state)
}

// UpdateRelease applies mutate to the current release state and persists the
// result under one exclusive lock, so two webhook deliveries updating the
// same repository cannot lose each other's writes.
func (s *Store) UpdateRelease(repo string, mutate func(*types.ReleaseState) error) error {
	path, err := s.docPath(repo, releaseFile)
	if err != nil {
		return err
	}
	state := &types.ReleaseState{}
	return s.updateDoc(path, state, func(bool) (bool, error) {
		if err := mutate(state); err != nil {
			return false, err
		}
		return true, nil
	})
}
