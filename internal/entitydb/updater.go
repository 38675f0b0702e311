package entitydb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entitydb/internal/entity"
	"github.com/roach88/entitydb/internal/identity"
)

// Result counts what SaveOrUpdate applied.
type Result struct {
	Inserted int
	Updated  int
	Deleted  int
	Skipped  int
}

// Updater batches inserts, updates and deletes against one table and
// applies them in a single transaction.
type Updater struct {
	db      *Database
	table   *Table
	save    []*entity.Entity
	deletes []identity.ID
}

// NewUpdater creates an empty batch for table.
func NewUpdater(db *Database, table *Table) *Updater {
	return &Updater{db: db, table: table}
}

// Add queues entities. Entities without identity are inserted, the rest
// updated.
func (u *Updater) Add(es ...*entity.Entity) *Updater {
	u.save = append(u.save, es...)
	return u
}

// Delete queues identities for deletion. Zero identities are skipped.
func (u *Updater) Delete(ids ...identity.ID) *Updater {
	u.deletes = append(u.deletes, ids...)
	return u
}

// Len returns the number of queued operations.
func (u *Updater) Len() int {
	return len(u.save) + len(u.deletes)
}

// SaveOrUpdate applies the batch, saves before deletes, in queue order.
// The first failure stops the batch, leaves the transaction unmarked and
// is returned along with what was applied before it. The queue is
// cleared once the batch succeeds.
func (u *Updater) SaveOrUpdate(ctx context.Context) (Result, error) {
	var res Result
	ctx = u.table.Lock(ctx)
	defer u.table.Unlock(ctx)

	err := u.db.RunInTransaction(ctx, func(ctx context.Context) error {
		for i, e := range u.save {
			if e.ID().IsZero() {
				if err := u.table.Insert(ctx, e); err != nil {
					return fmt.Errorf("insert #%d: %w", i, err)
				}
				res.Inserted++
				continue
			}
			if err := u.table.Update(ctx, e); err != nil {
				return fmt.Errorf("update %s: %w", e.ID(), err)
			}
			res.Updated++
		}
		for _, id := range u.deletes {
			if id.IsZero() {
				res.Skipped++
				continue
			}
			ok, err := u.table.Delete(ctx, id)
			if err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			if ok {
				res.Deleted++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	u.save, u.deletes = nil, nil
	slog.Debug("batch applied", "table", u.table.name,
		"inserted", res.Inserted, "updated", res.Updated, "deleted", res.Deleted, "skipped", res.Skipped)
	return res, nil
}
