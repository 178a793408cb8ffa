package ranking

import (
	"context"
	"sort"
	"sync"

	"github.com/rankboard/leaderboard-backend/internal/broadcast"
	"github.com/rankboard/leaderboard-backend/internal/store"
)

// Engine assigns every user a 1-based rank from the canonical ordering:
// higher totals first, earlier-created user first on equal totals.
type Engine struct {
	ledger *store.Ledger

	// recomputation touches every row, so only one may run at a time;
	// seq is assigned under the same lock so snapshot sequence order
	// matches commit order
	mu  sync.Mutex
	seq uint64
}

func NewEngine(ledger *store.Ledger) *Engine {
	return &Engine{ledger: ledger}
}

// RecomputeRanks reloads all users, sorts them, writes back every rank
// that changed and returns a sequenced snapshot of the users in rank
// order. Rank writes go through SaveRank only: a total that committed
// after the snapshot read is left untouched and picked up by the next
// recompute. The writes share one transaction: a failed rank update
// rolls the whole pass back.
func (e *Engine) RecomputeRanks(ctx context.Context) (broadcast.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var snap broadcast.Snapshot
	err := e.ledger.Transaction(ctx, func(tx *store.Ledger) error {
		users, err := tx.AllUsers(ctx)
		if err != nil {
			return err
		}

		// stable sort keeps enumeration order for users with equal
		// totals and creation times
		sort.SliceStable(users, func(i, j int) bool {
			if users[i].TotalPoints != users[j].TotalPoints {
				return users[i].TotalPoints > users[j].TotalPoints
			}
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		})

		for i := range users {
			if users[i].Rank == i+1 {
				continue
			}
			users[i].Rank = i + 1
			if err := tx.SaveRank(ctx, users[i].ID, i+1); err != nil {
				return err
			}
		}

		snap.Users = users
		return nil
	})
	if err != nil {
		return broadcast.Snapshot{}, err
	}

	e.seq++
	snap.Seq = e.seq
	return snap, nil
}
