package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rankboard/leaderboard-backend/internal/models"
	"github.com/rankboard/leaderboard-backend/internal/util"
)

var (
	ErrInvalidName   = errors.New("user name is required")
	ErrDuplicateName = errors.New("user already exists")
	ErrUserNotFound  = errors.New("user not found")
)

// Ledger is the single owner of users and point-award records. Every
// read goes straight to the database; there is no cache in front of it.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Transaction runs fn against a tx-scoped ledger. All writes made
// through that ledger commit or roll back together.
func (l *Ledger) Transaction(ctx context.Context, fn func(tx *Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Ledger{db: tx})
	})
}

// ListUsers returns every user in canonical leaderboard order.
func (l *Ledger) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := l.db.WithContext(ctx).
		Order("total_points DESC, created_at ASC").
		Find(&users).Error
	return users, err
}

// AllUsers returns every user in enumeration order (creation order),
// which the ranking engine relies on for stable tie-breaking.
func (l *Ledger) AllUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := l.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&users).Error
	return users, err
}

func (l *Ledger) FindUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (l *Ledger) UserExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.User{}).
		Where("name = ?", strings.TrimSpace(name)).
		Count(&count).Error
	return count > 0, err
}

func (l *Ledger) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// CreateUser inserts a new unranked user with zero points. The name is
// trimmed before the uniqueness check, so " Rahul " and "Rahul" collide.
func (l *Ledger) CreateUser(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	exists, err := l.UserExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateName
	}

	user := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: util.Now(),
	}
	if err := l.db.WithContext(ctx).Create(&user).Error; err != nil {
		// two concurrent creates can both pass the exists check; the
		// unique index decides the winner
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// SaveUser persists the mutable fields of an existing user.
func (l *Ledger) SaveUser(ctx context.Context, user *models.User) error {
	res := l.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"total_points": user.TotalPoints,
			"rank":         user.Rank,
		})
	if res.Error != nil {
		return fmt.Errorf("save user %s: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveRank persists only the rank field. The ranking engine writes
// ranks through this so a recompute can never clobber a total that
// committed after its snapshot was read.
func (l *Ledger) SaveRank(ctx context.Context, userID string, rank int) error {
	res := l.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("rank", rank)
	if res.Error != nil {
		return fmt.Errorf("save rank for %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AppendAward durably appends one history record. Awards are never
// updated or deleted afterwards.
func (l *Ledger) AppendAward(ctx context.Context, award *models.PointsAward) error {
	if err := l.db.WithContext(ctx).Create(award).Error; err != nil {
		return fmt.Errorf("append award: %w", err)
	}
	return nil
}

func (l *Ledger) ListRecentAwards(ctx context.Context, limit int) ([]models.PointsAward, error) {
	var awards []models.PointsAward
	err := l.db.WithContext(ctx).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&awards).Error
	return awards, err
}

func (l *Ledger) ListAwardsForUser(ctx context.Context, userID string) ([]models.PointsAward, error) {
	var awards []models.PointsAward
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Find(&awards).Error
	return awards, err
}
