package models

import (
	"time"
)

// 賭けの結果
const (
	BetPending  = "pending"
	BetWon      = "won"
	BetLost     = "lost"
	BetRefunded = "refunded"
)

// Bet は観戦者の賭け。精算で pending から一度だけ遷移し、削除はしない
type Bet struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	DebateID      string     `gorm:"index;not null" json:"debateId"`
	BettorID      uint       `gorm:"index;not null" json:"bettorId"`
	PredictedSide string     `gorm:"not null" json:"predictedSide"`
	Amount        int        `gorm:"not null" json:"amount"`
	OddsAtBet     float64    `gorm:"not null" json:"oddsAtBet"`
	Result        string     `gorm:"index;not null;default:'pending'" json:"result"`
	Payout        int        `json:"payout"`
	Profit        int        `json:"profit"`
	PlacedAt      time.Time  `json:"placedAt"`
	SettledAt     *time.Time `json:"settledAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
