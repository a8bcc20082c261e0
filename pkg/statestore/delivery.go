package statestore

import (
	"fmt"
	"sort"
)

// DeliveryCacheCap bounds the on-disk delivery-id cache. The source design
// never expired these records; we cap the map and evict the entries with
// the oldest seen_at timestamps on save instead of growing without bound.
const DeliveryCacheCap = 4096

// deliveryRecord is one processed-webhook marker.
type deliveryRecord struct {
	DeliveryID string `json:"delivery_id"`
	SeenAt     string `json:"seen_at"`
}

// VerificationKey identifies a main-branch verification delivery.
func VerificationKey(repo, sha string) string {
	return fmt.Sprintf("%s:main:%s", repo, sha)
}

// DeployRunKey identifies a deploy workflow_run completion delivery.
func DeployRunKey(runID int64) string {
	return fmt.Sprintf("deploy_run_%d", runID)
}

// SeenDelivery reports whether key has already been fully processed, and by
// which webhook delivery.
func (s *Store) SeenDelivery(repo, key string) (string, bool, error) {
	path, err := s.docPath(repo, deliveryFile)
	if err != nil {
		return "", false, err
	}
	cache := map[string]deliveryRecord{}
	if _, err := s.readDoc(path, &cache); err != nil {
		return "", false, err
	}
	rec, ok := cache[key]
	return rec.DeliveryID, ok, nil
}

// RecordDelivery marks key as fully processed by deliveryID. Recording the
// same key again overwrites the marker, which is harmless: the marker only
// exists to suppress reprocessing.
func (s *Store) RecordDelivery(repo, key, deliveryID string) error {
	path, err := s.docPath(repo, deliveryFile)
	if err != nil {
		return err
	}
	cache := map[string]deliveryRecord{}
	return s.updateDoc(path, &cache, func(bool) (bool, error) {
		cache[key] = deliveryRecord{
			DeliveryID: deliveryID,
			SeenAt:     s.now().UTC().Format(timeFormat),
		}
		evictOldest(cache, DeliveryCacheCap)
		return true, nil
	})
}

// evictOldest trims cache down to limit, dropping the oldest seen_at
// entries first. Records with unparseable timestamps sort oldest.
func evictOldest(cache map[string]deliveryRecord, limit int) {
	if len(cache) <= limit {
		return
	}
	type keyed struct {
		key string
		at  string
	}
	entries := make([]keyed, 0, len(cache))
	for k, rec := range cache {
		entries = append(entries, keyed{key: k, at: rec.SeenAt})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at < entries[j].at })
	for _, e := range entries[:len(entries)-limit] {
		delete(cache, e.key)
	}
}
