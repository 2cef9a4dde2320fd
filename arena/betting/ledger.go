package betting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"debateserver/arena/errs"
	"debateserver/arena/match"
	"debateserver/models"
	"debateserver/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 賭け金の範囲
const (
	MinAmount = 10
	MaxAmount = 10000
)

// Placement は受理された賭け
type Placement struct {
	Bet        models.Bet
	Pool       models.Pool
	Odds       float64
	NewBalance int
}

// Report は精算の集計。失敗した賭けは Failed に入り、処理は続行される
type Report struct {
	Won      int
	Lost     int
	Refunded int
	Skipped  int
	Failed   []string
	PaidOut  int
}

// Ledger は賭けの受付と精算を行う
type Ledger struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewLedger(s store.Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: s, logger: logger, now: time.Now}
}

// Place は賭けを受け付ける
// 残高の引き落としは試合のロック中に条件付きで行うため、途中で受付が閉じることはない
func (l *Ledger) Place(ctx context.Context, m *match.Match, bettorID uint, side string, amount int) (Placement, error) {
	if !m.BettingOpen() {
		return Placement{}, errs.ErrBettingClosed
	}
	if side != models.SidePro && side != models.SideCon {
		return Placement{}, errs.ErrInvalidSide
	}
	if amount < MinAmount || amount > MaxAmount {
		return Placement{}, errs.ErrInvalidAmount
	}

	var placed Placement
	pool, odds, err := m.Wager(side, amount, func(odds float64) error {
		balance, err := l.store.DebitXP(ctx, bettorID, amount)
		if errors.Is(err, store.ErrInsufficientXP) {
			return errs.Insufficient(amount, balance)
		}
		if errors.Is(err, store.ErrNotFound) {
			return errs.ErrNotFound.With("User not found")
		}
		if err != nil {
			return fmt.Errorf("debit bettor %d: %w", bettorID, err)
		}

		bet := models.Bet{
			ID:            uuid.NewString(),
			DebateID:      m.ID(),
			BettorID:      bettorID,
			PredictedSide: side,
			Amount:        amount,
			OddsAtBet:     odds,
			Result:        models.BetPending,
			PlacedAt:      l.now(),
		}
		if err := l.store.CreateBet(ctx, &bet); err != nil {
			// 記録できなかった賭けの引き落としは戻す
			if cerr := l.store.CreditXP(ctx, bettorID, amount); cerr != nil {
				l.logger.Error("Failed to refund unrecorded bet", zap.Uint("userID", bettorID), zap.Int("amount", amount), zap.Error(cerr))
			}
			return fmt.Errorf("record bet: %w", err)
		}

		placed.Bet = bet
		placed.NewBalance = balance
		return nil
	})
	if err != nil {
		return Placement{}, err
	}

	placed.Pool = pool
	placed.Odds = odds
	l.logger.Info("Bet placed", zap.String("matchID", m.ID()), zap.Uint("userID", bettorID), zap.String("side", side), zap.Int("amount", amount), zap.Float64("odds", odds))
	return placed, nil
}

// Outcome は勝者に対する賭けの結果、払戻額、損益を返す
func Outcome(bet models.Bet, winner string) (result string, payout, profit int) {
	switch {
	case winner == models.SideDraw:
		return models.BetRefunded, bet.Amount, 0
	case bet.PredictedSide == winner:
		payout = int(math.Round(float64(bet.Amount) * bet.OddsAtBet))
		return models.BetWon, payout, payout - bet.Amount
	default:
		return models.BetLost, 0, -bet.Amount
	}
}

// Settle は試合の未精算の賭けをすべて精算する
// 1件の失敗で他の賭けの処理を止めない。状態遷移は pending からの1回のみ
// 失敗した賭けは pending のまま残り、ReconcileBets で再精算される
func (l *Ledger) Settle(ctx context.Context, debateID, winner string) (Report, error) {
	var report Report

	bets, err := l.store.PendingBets(ctx, debateID)
	if err != nil {
		return report, fmt.Errorf("load pending bets for %s: %w", debateID, err)
	}

	at := l.now()
	for _, bet := range bets {
		result, payout, profit := Outcome(bet, winner)

		ok, err := l.store.SettleBetAndCredit(ctx, bet, result, payout, profit, at)
		if err != nil {
			l.logger.Error("Failed to settle bet", zap.String("betID", bet.ID), zap.String("matchID", debateID), zap.Uint("userID", bet.BettorID), zap.Int("payout", payout), zap.Error(err))
			report.Failed = append(report.Failed, bet.ID)
			continue
		}
		if !ok {
			report.Skipped++
			continue
		}
		report.PaidOut += payout

		switch result {
		case models.BetWon:
			report.Won++
		case models.BetLost:
			report.Lost++
		case models.BetRefunded:
			report.Refunded++
		}
	}

	l.logger.Info("Bets settled", zap.String("matchID", debateID), zap.String("winner", winner),
		zap.Int("won", report.Won), zap.Int("lost", report.Lost), zap.Int("refunded", report.Refunded), zap.Int("failed", len(report.Failed)))
	return report, nil
}
