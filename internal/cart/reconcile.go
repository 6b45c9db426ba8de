package cart

import "sort"

// Reconcile sweeps the whole cart and merges near-duplicate entries
// that slipped past the per-add duplicate filter, which only compares
// against keys present at insertion time. Two entries merge when both
// their name and brand similarity exceed the threshold. The pass is
// idempotent: running it on its own output changes nothing.
func (s *Store) Reconcile() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	reconciled := make(map[string]*Item, len(s.items))
	merged := 0

	for _, key := range keys {
		candidate := s.items[key]
		targetKey := s.findMatchingKey(reconciled, candidate)
		if targetKey == "" {
			copied := *candidate
			reconciled[key] = &copied
			continue
		}
		mergeInto(reconciled[targetKey], candidate)
		merged++
	}

	if merged > 0 {
		s.log.Info("reconciled cart entries", "merged", merged, "remaining", len(reconciled))
	}
	s.items = reconciled
	return merged
}

// findMatchingKey returns the key of an already-reconciled entry that
// the candidate should merge into, or "" when the candidate is unique.
func (s *Store) findMatchingKey(reconciled map[string]*Item, candidate *Item) string {
	keys := make([]string, 0, len(reconciled))
	for key := range reconciled {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		existing := reconciled[key]
		nameSim := NameSimilarity(candidate.Name, existing.Name)
		brandSim := NameSimilarity(candidate.Brand, existing.Brand)
		if nameSim > s.similarityThreshold && brandSim > s.similarityThreshold {
			return key
		}
	}
	return ""
}

// mergeInto folds the candidate into the canonical entry: counts sum,
// confidence and last-seen take the max, the most recently merged deal
// analysis wins, the first non-nil price sticks, and the most recent
// non-empty image path wins.
func mergeInto(target, candidate *Item) {
	target.Count += candidate.Count
	if candidate.Confidence > target.Confidence {
		target.Confidence = candidate.Confidence
	}
	if candidate.LastSeen.After(target.LastSeen) {
		target.LastSeen = candidate.LastSeen
	}
	if candidate.DealAnalysis != nil {
		target.DealAnalysis = candidate.DealAnalysis
	}
	if candidate.Price != nil && target.Price == nil {
		target.Price = candidate.Price
	}
	if candidate.ImagePath != "" {
		target.ImagePath = candidate.ImagePath
	}
}
