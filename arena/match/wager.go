package match

import (
	"math"

	"debateserver/arena/errs"
	"debateserver/models"
)

// DefaultOdds はどちらかのプールが空のときの倍率
const DefaultOdds = 2.0

// Odds は賭ける前のプールから倍率を求める。小数2桁で丸め、1.0未満にはしない
func Odds(pool models.Pool, side string) float64 {
	if pool.Pro == 0 || pool.Con == 0 {
		return DefaultOdds
	}
	stake := pool.Pro
	if side == models.SideCon {
		stake = pool.Con
	}
	odds := math.Round(float64(pool.Total)/float64(stake)*100) / 100
	return math.Max(1.0, odds)
}

// CurrentOdds は現在のプールと両陣営の倍率を返す
func (m *Match) CurrentOdds() (models.Pool, float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.rec.BettingPool
	return pool, Odds(pool, models.SidePro), Odds(pool, models.SideCon)
}

func (m *Match) BettingOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.BettingOpen && m.rec.Status == models.StatusActive
}

// Wager はロックを持ったまま commit を呼び、成功したときだけプールに加える
// commit の実行中に精算が始まって受付が閉じることはない
func (m *Match) Wager(side string, amount int, commit func(odds float64) error) (models.Pool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.rec.BettingOpen || m.rec.Status != models.StatusActive {
		return models.Pool{}, 0, errs.ErrBettingClosed
	}
	if side != models.SidePro && side != models.SideCon {
		return models.Pool{}, 0, errs.ErrInvalidSide
	}

	odds := Odds(m.rec.BettingPool, side)
	if err := commit(odds); err != nil {
		return models.Pool{}, 0, err
	}

	m.rec.BettingPool.Total += amount
	if side == models.SidePro {
		m.rec.BettingPool.Pro += amount
	} else {
		m.rec.BettingPool.Con += amount
	}
	return m.rec.BettingPool, odds, nil
}
