package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"debateserver/models"

	"gorm.io/gorm"
)

// GormStore はPostgreSQL上の Store 実装
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetUser(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, ErrNotFound
		}
		return user, fmt.Errorf("get user %d: %w", userID, err)
	}
	return user, nil
}

func (s *GormStore) DebitXP(ctx context.Context, userID uint, amount int) (int, error) {
	var balance int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件付きUPDATEで残高チェックと減算を1文で行う
		res := tx.Model(&models.User{}).
			Where("id = ? AND xp >= ?", userID, amount).
			Update("xp", gorm.Expr("xp - ?", amount))
		if res.Error != nil {
			return res.Error
		}

		var user models.User
		if err := tx.Select("id", "xp").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		balance = user.XP

		if res.RowsAffected == 0 {
			return ErrInsufficientXP
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrInsufficientXP) && !errors.Is(err, ErrNotFound) {
		return balance, fmt.Errorf("debit xp for user %d: %w", userID, err)
	}
	return balance, err
}

func (s *GormStore) CreditXP(ctx context.Context, userID uint, amount int) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("xp", gorm.Expr("xp + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("credit xp for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ApplyReward(ctx context.Context, userID uint, r Reward) error {
	updates := map[string]interface{}{
		"xp":            gorm.Expr("xp + ?", r.XP),
		"reputation":    gorm.Expr("reputation + ?", r.Reputation),
		"wins":          gorm.Expr("wins + ?", r.Wins),
		"losses":        gorm.Expr("losses + ?", r.Losses),
		"draws":         gorm.Expr("draws + ?", r.Draws),
		"total_debates": gorm.Expr("total_debates + ?", r.TotalDebates),
	}
	if r.StreakReset {
		updates["win_streak"] = 0
	} else if r.StreakIncrement {
		updates["win_streak"] = gorm.Expr("win_streak + 1")
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("apply reward for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SaveDebate(ctx context.Context, d *models.Debate) error {
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("save debate %s: %w", d.ID, err)
	}
	return nil
}

func (s *GormStore) GetDebate(ctx context.Context, id string) (models.Debate, error) {
	var debate models.Debate
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&debate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return debate, ErrNotFound
		}
		return debate, fmt.Errorf("get debate %s: %w", id, err)
	}
	return debate, nil
}

func (s *GormStore) FinishedWithPendingBets(ctx context.Context) ([]models.Debate, error) {
	var debates []models.Debate
	pending := s.db.Model(&models.Bet{}).Select("debate_id").Where("result = ?", models.BetPending)
	err := s.db.WithContext(ctx).
		Where("status = ? AND result_recorded = ?", models.StatusFinished, true).
		Where("id IN (?)", pending).
		Find(&debates).Error
	if err != nil {
		return nil, fmt.Errorf("find debates with pending bets: %w", err)
	}
	return debates, nil
}

func (s *GormStore) CreateBet(ctx context.Context, b *models.Bet) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create bet: %w", err)
	}
	return nil
}

func (s *GormStore) PendingBets(ctx context.Context, debateID string) ([]models.Bet, error) {
	var bets []models.Bet
	err := s.db.WithContext(ctx).
		Where("debate_id = ? AND result = ?", debateID, models.BetPending).
		Order("placed_at asc").
		Find(&bets).Error
	if err != nil {
		return nil, fmt.Errorf("pending bets for %s: %w", debateID, err)
	}
	return bets, nil
}

func (s *GormStore) SettleBetAndCredit(ctx context.Context, bet models.Bet, result string, payout, profit int, at time.Time) (bool, error) {
	settled := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Bet{}).
			Where("id = ? AND result = ?", bet.ID, models.BetPending).
			Updates(map[string]interface{}{
				"result":     result,
				"payout":     payout,
				"profit":     profit,
				"settled_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		if payout > 0 {
			credit := tx.Model(&models.User{}).
				Where("id = ?", bet.BettorID).
				Update("xp", gorm.Expr("xp + ?", payout))
			if credit.Error != nil {
				return credit.Error
			}
			if credit.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("settle bet %s: %w", bet.ID, err)
	}
	return settled, nil
}

func (s *GormStore) BetsByUser(ctx context.Context, userID uint, limit int) ([]models.Bet, error) {
	var bets []models.Bet
	err := s.db.WithContext(ctx).
		Where("bettor_id = ?", userID).
		Order("placed_at desc").
		Limit(limit).
		Find(&bets).Error
	if err != nil {
		return nil, fmt.Errorf("bets for user %d: %w", userID, err)
	}
	return bets, nil
}
