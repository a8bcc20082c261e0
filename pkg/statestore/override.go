package statestore

import (
	"fmt"

	"github.com/bootyhq/booty/pkg/types"
)

// OverrideKey identifies a security override for a commit.
func OverrideKey(repo, sha string) string {
	return fmt.Sprintf("%s:%s", repo, sha)
}

// GetOverride returns the non-expired security override for (repo, sha), if
// one exists. Expired entries encountered along the way are pruned and the
// document rewritten, so the file self-cleans under normal read traffic.
func (s *Store) GetOverride(repo, sha string) (*types.SecurityOverride, bool, error) {
	path, err := s.docPath(repo, overrideFile)
	if err != nil {
		return nil, false, err
	}
	overrides := map[string]types.SecurityOverride{}
	var found *types.SecurityOverride
	err = s.updateDoc(path, &overrides, func(existed bool) (bool, error) {
		if !existed {
			return false, nil
		}
		now := s.now().UTC()
		pruned := false
		for key, o := range overrides {
			if o.Expired(now) {
				delete(overrides, key)
				pruned = true
			}
		}
		if o, ok := overrides[OverrideKey(repo, sha)]; ok {
			found = &o
		}
		return pruned, nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// PutOverride records a security override. The security scanning agent is
// the normal writer; the governor only reads.
func (s *Store) PutOverride(repo string, override types.SecurityOverride) error {
	if override.SHA == "" {
		return fmt.Errorf("statestore: override sha cannot be empty")
	}
	path, err := s.docPath(repo, overrideFile)
	if err != nil {
		return err
	}
	overrides := map[string]types.SecurityOverride{}
	return s.updateDoc(path, &overrides, func(bool) (bool, error) {
		if override.CreatedAt == "" {
			override.CreatedAt = s.now().UTC().Format(timeFormat)
		}
		overrides[OverrideKey(repo, override.SHA)] = override
		return true, nil
	})
}

// ListOverrides returns all live overrides for repo, pruning expired ones.
func (s *Store) ListOverrides(repo string) ([]types.SecurityOverride, error) {
	path, err := s.docPath(repo, overrideFile)
	if err != nil {
		return nil, err
	}
	overrides := map[string]types.SecurityOverride{}
	var live []types.SecurityOverride
	err = s.updateDoc(path, &overrides, func(existed bool) (bool, error) {
		if !existed {
			return false, nil
		}
		now := s.now().UTC()
		pruned := false
		for key, o := range overrides {
			if o.Expired(now) {
				delete(overrides, key)
				pruned = true
				continue
			}
			live = append(live, o)
		}
		return pruned, nil
	})
	if err != nil {
		return nil, err
	}
	return live, nil
}
