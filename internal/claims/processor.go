package claims

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rankboard/leaderboard-backend/internal/broadcast"
	"github.com/rankboard/leaderboard-backend/internal/models"
	"github.com/rankboard/leaderboard-backend/internal/ranking"
	"github.com/rankboard/leaderboard-backend/internal/store"
	"github.com/rankboard/leaderboard-backend/internal/util"
)

const (
	MinAward = 1
	MaxAward = 10
)

// RandFunc draws one award amount. Injected so tests can pin the draw.
type RandFunc func() int

func defaultDraw() int {
	return rand.Intn(MaxAward-MinAward+1) + MinAward
}

// Result is what the claiming caller gets back directly; other
// observers learn about the claim through the broadcaster.
type Result struct {
	User           models.User `json:"user"`
	PointsAwarded  int         `json:"pointsAwarded"`
	NewTotalPoints int         `json:"newTotalPoints"`
}

// Processor executes claim requests. Claims for the same user are
// serialized so two in-flight claims can never both read the same
// pre-increment total; claims for different users only contend on the
// rank recomputation, which the engine serializes itself.
type Processor struct {
	ledger *store.Ledger
	engine *ranking.Engine
	draw   RandFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProcessor(ledger *store.Ledger, engine *ranking.Engine, draw RandFunc) *Processor {
	if draw == nil {
		draw = defaultDraw
	}
	return &Processor{
		ledger: ledger,
		engine: engine,
		draw:   draw,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (p *Processor) userLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[userID] = l
	}
	return l
}

// Claim awards a random number of points to one user. The increment and
// the history record commit together or not at all; the rank pass runs
// strictly after that commit. Returns the claim result and the freshly
// ranked snapshot for broadcasting.
func (p *Processor) Claim(ctx context.Context, userID string) (*Result, broadcast.Snapshot, error) {
	// reject unknown ids before taking a lock; users are never deleted,
	// so the lock table stays bounded by the user count
	if _, err := p.ledger.FindUser(ctx, userID); err != nil {
		return nil, broadcast.Snapshot{}, err
	}

	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	amount := p.draw()

	var user models.User
	err := p.ledger.Transaction(ctx, func(tx *store.Ledger) error {
		u, err := tx.FindUser(ctx, userID)
		if err != nil {
			return err
		}

		u.TotalPoints += amount
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}

		award := models.PointsAward{
			UserID:        u.ID,
			UserName:      u.Name,
			PointsAwarded: amount,
			Timestamp:     util.Now(),
		}
		if err := tx.AppendAward(ctx, &award); err != nil {
			return err
		}

		user = *u
		return nil
	})
	if err != nil {
		return nil, broadcast.Snapshot{}, err
	}

	snap, err := p.engine.RecomputeRanks(ctx)
	if err != nil {
		return nil, broadcast.Snapshot{}, err
	}

	// pick up the rank the recomputation just assigned
	for i := range snap.Users {
		if snap.Users[i].ID == user.ID {
			user = snap.Users[i]
			break
		}
	}

	return &Result{
		User:           user,
		PointsAwarded:  amount,
		NewTotalPoints: user.TotalPoints,
	}, snap, nil
}
