package cache

import "sort"

// rankHits orders document ids by matched term count, ties broken by id,
// and keeps at most k
func rankHits(hits map[string]int, k int) []string {
	if k <= 0 || len(hits) == 0 {
		return nil
	}

	ids := make([]string, 0, len(hits))
	for id, n := range hits {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}
