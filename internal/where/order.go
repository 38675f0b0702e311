package where

import (
	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
	"github.com/roach88/entitydb/internal/value"
)

// Comparator orders entities in a query result.
type Comparator func(a, b *entity.Entity) int

// ByID orders entities by identity.
func ByID(a, b *entity.Entity) int {
	return identity.Compare(a.ID(), b.ID())
}

// Ascending orders entities by a scalar field. Null values sort first and
// ties fall back to identity order.
func Ascending(field string) Comparator {
	return func(a, b *entity.Entity) int {
		if c := compareField(a.Get(field), b.Get(field)); c != 0 {
			return c
		}
		return ByID(a, b)
	}
}

// Descending is the reverse of Ascending, with identity ties still
// ascending.
func Descending(field string) Comparator {
	return func(a, b *entity.Entity) int {
		if c := compareField(b.Get(field), a.Get(field)); c != 0 {
			return c
		}
		return ByID(a, b)
	}
}

func compareField(a, b value.Value) int {
	an, bn := value.IsNull(a), value.IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	c, _ := value.Compare(a, b)
	return c
}
