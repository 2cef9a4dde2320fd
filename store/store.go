package store

import (
	"context"
	"errors"
	"time"

	"debateserver/models"
)

var (
	ErrNotFound       = errors.New("store: record not found")
	ErrInsufficientXP = errors.New("store: insufficient xp")
)

// Reward はユーザー成績への加算分。StreakReset と StreakIncrement は排他
type Reward struct {
	XP              int
	Reputation      int
	Wins            int
	Losses          int
	Draws           int
	TotalDebates    int
	StreakIncrement bool
	StreakReset     bool
}

// Store はマッチエンジンが使う永続化の窓口
// XPの増減はすべてストア側の原子的な加減算で行い、メモリ上のコピーから書き戻さない
type Store interface {
	GetUser(ctx context.Context, userID uint) (models.User, error)
	// DebitXP は残高が amount 以上のときだけ減算する。不足時は ErrInsufficientXP と現在の残高を返す
	DebitXP(ctx context.Context, userID uint, amount int) (int, error)
	CreditXP(ctx context.Context, userID uint, amount int) error
	ApplyReward(ctx context.Context, userID uint, r Reward) error

	SaveDebate(ctx context.Context, d *models.Debate) error
	GetDebate(ctx context.Context, id string) (models.Debate, error)
	// FinishedWithPendingBets は結果が記録済みなのに未精算の賭けが残るディベートを返す
	FinishedWithPendingBets(ctx context.Context) ([]models.Debate, error)

	CreateBet(ctx context.Context, b *models.Bet) error
	PendingBets(ctx context.Context, debateID string) ([]models.Bet, error)
	// SettleBetAndCredit は pending の賭けの遷移と払戻額の加算を1つのトランザクションで行う
	// 遷移した場合のみ true。加算に失敗したら賭けは pending のまま残る
	SettleBetAndCredit(ctx context.Context, bet models.Bet, result string, payout, profit int, at time.Time) (bool, error)
	BetsByUser(ctx context.Context, userID uint, limit int) ([]models.Bet, error)
}
