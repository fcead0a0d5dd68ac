package series

import (
	"cmp"
	"slices"

	"github.com/atmx/parity-engine/internal/model"
)

// OrderMarkets returns ids deduplicated and sorted for display. The reference
// market comes first, the rest follow catalog order, and ids missing from
// the catalog keep their relative order at the end.
func OrderMarkets(ids []string, catalog []model.Market, referenceID string) []string {
	rank := make(map[string]int, len(catalog))
	for i, m := range catalog {
		rank[m.ID] = i
	}
	unknown := len(catalog)
	rankOf := func(id string) int {
		if id == referenceID {
			return -1
		}
		if r, ok := rank[id]; ok {
			return r
		}
		return unknown
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return cmp.Compare(rankOf(a), rankOf(b))
	})
	return out
}
