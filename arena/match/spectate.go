package match

import (
	"debateserver/arena/errs"
	"debateserver/models"
)

type reaction struct {
	name  string
	glyph string
}

var reactions = []reaction{
	{"fire", "🔥"},
	{"clap", "👏"},
	{"hundred", "💯"},
	{"thinking", "🤔"},
	{"shock", "😱"},
	{"skull", "💀"},
}

// ResolveReaction は名前か絵文字を受け取り、名前と絵文字の組を返す
func ResolveReaction(symbol string) (name, glyph string, err error) {
	for _, r := range reactions {
		if symbol == r.name || symbol == r.glyph {
			return r.name, r.glyph, nil
		}
	}
	return "", "", errs.ErrInvalidReaction
}

// JoinSpectator は観戦者を追加して観戦者数を返す
// プレイヤーや登録済みの観戦者なら何も変えずに false を返す
func (m *Match) JoinSpectator(userID uint) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[userID]; ok || m.spectatingLocked(userID) {
		return m.rec.SpectatorCount, false
	}
	m.rec.Spectators = append(m.rec.Spectators, models.Spectator{UserID: userID, JoinedAt: m.now()})
	m.rec.SpectatorCount = len(m.rec.Spectators)
	return m.rec.SpectatorCount, true
}

// LeaveSpectator は観戦者を外して観戦者数を返す
func (m *Match) LeaveSpectator(userID uint) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.rec.Spectators {
		if s.UserID == userID {
			m.rec.Spectators = append(m.rec.Spectators[:i:i], m.rec.Spectators[i+1:]...)
			m.rec.SpectatorCount = len(m.rec.Spectators)
			return m.rec.SpectatorCount, true
		}
	}
	return m.rec.SpectatorCount, false
}

func (m *Match) IsSpectator(userID uint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spectatingLocked(userID)
}

func (m *Match) spectatingLocked(userID uint) bool {
	for _, s := range m.rec.Spectators {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// React はリアクションの集計を1つ増やし、配信用の絵文字と新しい件数を返す
func (m *Match) React(symbol string) (string, int, error) {
	name, glyph, err := ResolveReaction(symbol)
	if err != nil {
		return "", 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.Status == models.StatusFinished {
		return "", 0, errs.ErrAlreadyEnded
	}
	m.rec.Reactions[name]++
	return glyph, m.rec.Reactions[name], nil
}
