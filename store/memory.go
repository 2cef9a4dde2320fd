package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"debateserver/models"
)

// MemoryStore はプロセス内の Store 実装。テストとローカル開発で使う
// Fail* を設定すると該当レコードの操作がそのエラーを返す
type MemoryStore struct {
	mu      sync.Mutex
	users   map[uint]models.User
	debates map[string]models.Debate
	bets    map[string]models.Bet

	FailCredit     map[uint]error
	FailReward     map[uint]error
	FailSettle     map[string]error
	FailCreateBet  error
	FailSaveDebate error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[uint]models.User),
		debates:    make(map[string]models.Debate),
		bets:       make(map[string]models.Bet),
		FailCredit: make(map[uint]error),
		FailReward: make(map[uint]error),
		FailSettle: make(map[string]error),
	}
}

// PutUser はユーザーを登録または置き換える
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) GetUser(ctx context.Context, userID uint) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) DebitXP(ctx context.Context, userID uint, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if u.XP < amount {
		return u.XP, ErrInsufficientXP
	}
	u.XP -= amount
	s.users[userID] = u
	return u.XP, nil
}

func (s *MemoryStore) CreditXP(ctx context.Context, userID uint, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailCredit[userID]; err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.XP += amount
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) ApplyReward(ctx context.Context, userID uint, r Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailReward[userID]; err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.XP += r.XP
	u.Reputation += r.Reputation
	u.Wins += r.Wins
	u.Losses += r.Losses
	u.Draws += r.Draws
	u.TotalDebates += r.TotalDebates
	if r.StreakReset {
		u.WinStreak = 0
	} else if r.StreakIncrement {
		u.WinStreak++
	}
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) SaveDebate(ctx context.Context, d *models.Debate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveDebate != nil {
		return s.FailSaveDebate
	}
	s.debates[d.ID] = cloneDebate(*d)
	return nil
}

func (s *MemoryStore) GetDebate(ctx context.Context, id string) (models.Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debates[id]
	if !ok {
		return models.Debate{}, ErrNotFound
	}
	return cloneDebate(d), nil
}

func (s *MemoryStore) FinishedWithPendingBets(ctx context.Context) ([]models.Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make(map[string]bool)
	for _, b := range s.bets {
		if b.Result == models.BetPending {
			pending[b.DebateID] = true
		}
	}
	var out []models.Debate
	for id, d := range s.debates {
		if pending[id] && d.Status == models.StatusFinished && d.ResultRecorded {
			out = append(out, cloneDebate(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateBet(ctx context.Context, b *models.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreateBet != nil {
		return s.FailCreateBet
	}
	s.bets[b.ID] = *b
	return nil
}

func (s *MemoryStore) PendingBets(ctx context.Context, debateID string) ([]models.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bet
	for _, b := range s.bets {
		if b.DebateID == debateID && b.Result == models.BetPending {
			out = append(out, b)
		}
	}
	sortBets(out)
	return out, nil
}

// SettleBetAndCredit は FailSettle か FailCredit が設定されていれば何も変更しない
func (s *MemoryStore) SettleBetAndCredit(ctx context.Context, bet models.Bet, result string, payout, profit int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailSettle[bet.ID]; err != nil {
		return false, err
	}
	b, ok := s.bets[bet.ID]
	if !ok || b.Result != models.BetPending {
		return false, nil
	}

	if payout > 0 {
		if err := s.FailCredit[b.BettorID]; err != nil {
			return false, err
		}
		u, ok := s.users[b.BettorID]
		if !ok {
			return false, ErrNotFound
		}
		u.XP += payout
		s.users[b.BettorID] = u
	}

	b.Result = result
	b.Payout = payout
	b.Profit = profit
	settled := at
	b.SettledAt = &settled
	s.bets[bet.ID] = b
	return true, nil
}

func (s *MemoryStore) BetsByUser(ctx context.Context, userID uint, limit int) ([]models.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bet
	for _, b := range s.bets {
		if b.BettorID == userID {
			out = append(out, b)
		}
	}
	sortBets(out)
	// 新しい順
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Bets は保存済みの賭けを全件返す
func (s *MemoryStore) Bets() []models.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Bet, 0, len(s.bets))
	for _, b := range s.bets {
		out = append(out, b)
	}
	sortBets(out)
	return out
}

func sortBets(bets []models.Bet) {
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].PlacedAt.Equal(bets[j].PlacedAt) {
			return bets[i].ID < bets[j].ID
		}
		return bets[i].PlacedAt.Before(bets[j].PlacedAt)
	})
}

func cloneDebate(d models.Debate) models.Debate {
	raw, err := json.Marshal(d)
	if err != nil {
		return d
	}
	var out models.Debate
	if err := json.Unmarshal(raw, &out); err != nil {
		return d
	}
	out.ResultRecorded = d.ResultRecorded
	return out
}
