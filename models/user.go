package models

import (
	"gorm.io/gorm"
)

// User モデルの定義
// XPは表示用のポイントであり、同時に賭けの残高でもある
type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	Tier         string `gorm:"not null;default:'bronze'"`
	XP           int    `gorm:"not null;default:0"`
	Reputation   int    `gorm:"not null;default:0"`
	Wins         int    `gorm:"not null;default:0"`
	Losses       int    `gorm:"not null;default:0"`
	Draws        int    `gorm:"not null;default:0"`
	TotalDebates int    `gorm:"not null;default:0"`
	WinStreak    int    `gorm:"not null;default:0"`
}
