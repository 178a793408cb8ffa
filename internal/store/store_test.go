package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rankboard/leaderboard-backend/internal/models"
	"github.com/rankboard/leaderboard-backend/internal/util"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.PointsAward{}))
	return New(db)
}

func TestCreateUserDefaults(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	user, err := ledger.CreateUser(ctx, "  Rahul  ")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "Rahul", user.Name)
	require.Equal(t, 0, user.TotalPoints)
	require.Equal(t, 0, user.Rank)
	require.False(t, user.CreatedAt.IsZero())
}

func TestCreateUserRejectsEmptyName(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.CreateUser(ctx, "")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = ledger.CreateUser(ctx, "   ")
	require.ErrorIs(t, err, ErrInvalidName)

	count, err := ledger.CountUsers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestCreateUserRejectsDuplicateName(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.CreateUser(ctx, "Priya")
	require.NoError(t, err)

	// trimming happens before the uniqueness check
	_, err = ledger.CreateUser(ctx, " Priya ")
	require.ErrorIs(t, err, ErrDuplicateName)

	count, err := ledger.CountUsers(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestFindUserNotFound(t *testing.T) {
	ledger := newTestLedger(t)

	_, err := ledger.FindUser(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSaveUserUnknownID(t *testing.T) {
	ledger := newTestLedger(t)

	err := ledger.SaveUser(context.Background(), &models.User{ID: "ghost", TotalPoints: 5})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsersCanonicalOrder(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	a, err := ledger.CreateUser(ctx, "Amit")
	require.NoError(t, err)
	b, err := ledger.CreateUser(ctx, "Sneha")
	require.NoError(t, err)
	c, err := ledger.CreateUser(ctx, "Ravi")
	require.NoError(t, err)

	b.TotalPoints = 12
	require.NoError(t, ledger.SaveUser(ctx, b))
	c.TotalPoints = 12
	require.NoError(t, ledger.SaveUser(ctx, c))
	a.TotalPoints = 3
	require.NoError(t, ledger.SaveUser(ctx, a))

	users, err := ledger.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	// equal totals fall back to creation order
	require.Equal(t, "Sneha", users[0].Name)
	require.Equal(t, "Ravi", users[1].Name)
	require.Equal(t, "Amit", users[2].Name)
}

func TestSaveRankLeavesTotalAlone(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	user, err := ledger.CreateUser(ctx, "Ravi")
	require.NoError(t, err)
	user.TotalPoints = 6
	require.NoError(t, ledger.SaveUser(ctx, user))

	require.NoError(t, ledger.SaveRank(ctx, user.ID, 2))

	got, err := ledger.FindUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Rank)
	require.Equal(t, 6, got.TotalPoints)

	require.ErrorIs(t, ledger.SaveRank(ctx, "ghost", 1), ErrUserNotFound)
}

func TestAwardsNewestFirst(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	user, err := ledger.CreateUser(ctx, "Pooja")
	require.NoError(t, err)
	other, err := ledger.CreateUser(ctx, "Vikash")
	require.NoError(t, err)

	base := util.Now()
	for i, amount := range []int{3, 7, 5} {
		award := models.PointsAward{
			UserID:        user.ID,
			UserName:      user.Name,
			PointsAwarded: amount,
			Timestamp:     base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, ledger.AppendAward(ctx, &award))
	}
	require.NoError(t, ledger.AppendAward(ctx, &models.PointsAward{
		UserID:        other.ID,
		UserName:      other.Name,
		PointsAwarded: 9,
		Timestamp:     base.Add(3 * time.Second),
	}))

	recent, err := ledger.ListRecentAwards(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, 9, recent[0].PointsAwarded)
	require.Equal(t, 5, recent[1].PointsAwarded)

	mine, err := ledger.ListAwardsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	require.Equal(t, []int{5, 7, 3}, []int{
		mine[0].PointsAwarded, mine[1].PointsAwarded, mine[2].PointsAwarded,
	})
}

func TestTransactionRollsBackTogether(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	user, err := ledger.CreateUser(ctx, "Anita")
	require.NoError(t, err)

	err = ledger.Transaction(ctx, func(tx *Ledger) error {
		u, err := tx.FindUser(ctx, user.ID)
		if err != nil {
			return err
		}
		u.TotalPoints += 8
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		if err := tx.AppendAward(ctx, &models.PointsAward{
			UserID:        u.ID,
			UserName:      u.Name,
			PointsAwarded: 8,
			Timestamp:     util.Now(),
		}); err != nil {
			return err
		}
		// a failure after both writes must undo both
		return tx.SaveUser(ctx, &models.User{ID: "ghost"})
	})
	require.ErrorIs(t, err, ErrUserNotFound)

	got, err := ledger.FindUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.TotalPoints)

	awards, err := ledger.ListAwardsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, awards)
}
