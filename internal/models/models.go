package models

import (
	"time"
)

type User struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Name        string    `json:"name" gorm:"uniqueIndex;size:64;not null"`
	TotalPoints int       `json:"totalPoints" gorm:"not null;default:0"`
	Rank        int       `json:"rank" gorm:"not null;default:0"` // 0 = not ranked yet
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
}

type PointsAward struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UserID        string    `json:"userId" gorm:"size:36;index;not null"`
	UserName      string    `json:"userName" gorm:"size:64;not null"`
	PointsAwarded int       `json:"pointsAwarded" gorm:"not null"`
	Timestamp     time.Time `json:"timestamp" gorm:"index"`
}
