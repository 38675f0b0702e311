package where

import (
	"slices"

	"github.com/roach88/entitydb/internal/entity"
)

func sortBy(es []*entity.Entity, cmp Comparator) {
	slices.SortStableFunc(es, cmp)
}

func ids(es []*entity.Entity) []int64 {
	out := make([]int64, len(es))
	for i, e := range es {
		out[i], _ = e.ID().AsInt()
	}
	return out
}
