package match

import (
	"sync"
	"time"

	"debateserver/models"
)

// 進行に関する定数
const (
	DefaultThreshold = 5
	MinArgumentRunes = 5
	MaxArgumentRunes = 2000
)

// 精算時の報酬
const (
	XPWin         = 100
	XPLoss        = 25
	XPDraw        = 50
	ReputationWin = 10
)

// 参加者の役割
const (
	RoleLead       = "lead"
	RoleCompetitor = "competitor"
)

type roundSpec struct {
	kind    string
	seconds int
}

// 4ラウンド固定のテンプレート
var roundTemplate = []roundSpec{
	{models.RoundOpening, 120},
	{models.RoundRebuttal, 90},
	{models.RoundCounter, 60},
	{models.RoundClosing, 60},
}

// Match は進行中のディベート1試合
// 状態の変更はすべて mu の下で行い、外部呼び出しの間はロックを持たない
type Match struct {
	mu        sync.Mutex
	rec       models.Debate
	roles     map[uint]string // userID → pro / con / competitor
	members   map[uint]models.TeamMember
	threshold int
	now       func() time.Time
}

// New はレコードから試合を組み立てる。threshold が0以下なら既定値
func New(rec models.Debate, threshold int, now func() time.Time) *Match {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if now == nil {
		now = time.Now
	}
	if rec.SpeakerCounts == nil {
		rec.SpeakerCounts = make(map[uint]int)
	}
	if rec.Reactions == nil {
		rec.Reactions = make(map[string]int)
	}

	m := &Match{
		rec:       rec,
		roles:     make(map[uint]string),
		members:   make(map[uint]models.TeamMember),
		threshold: threshold,
		now:       now,
	}
	for _, p := range rec.ProTeam {
		m.roles[p.UserID] = models.SidePro
		m.members[p.UserID] = p
	}
	for _, p := range rec.ConTeam {
		m.roles[p.UserID] = models.SideCon
		m.members[p.UserID] = p
	}
	for _, p := range rec.Competitors {
		m.roles[p.UserID] = RoleCompetitor
		m.members[p.UserID] = p
	}
	return m
}

// ID と Type は作成後に変わらないためロック不要
func (m *Match) ID() string   { return m.rec.ID }
func (m *Match) Type() string { return m.rec.Type }

// Role は参加者の陣営を返す。観戦者や部外者なら false
func (m *Match) Role(userID uint) (string, bool) {
	role, ok := m.roles[userID]
	return role, ok
}

func (m *Match) IsPlayer(userID uint) bool {
	_, ok := m.roles[userID]
	return ok
}

// Players は全プレイヤーのIDを返す
func (m *Match) Players() []uint {
	ids := make([]uint, 0, len(m.roles))
	for _, team := range [][]models.TeamMember{m.rec.ProTeam, m.rec.ConTeam, m.rec.Competitors} {
		for _, p := range team {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// DisplayName はこの試合での表示名。プレイヤーでなければ fallback
func (m *Match) DisplayName(userID uint, fallback string) string {
	if p, ok := m.members[userID]; ok {
		return p.DisplayName()
	}
	return fallback
}

func (m *Match) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.Status
}

func (m *Match) SpectatorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec.SpectatorCount
}

// Snapshot はレコードの複製を返す
func (m *Match) Snapshot() models.Debate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.rec)
}

// View は匿名性を適用した公開用の状態を返す
func (m *Match) View() View {
	return ViewOf(m.Snapshot())
}

func (m *Match) isBattleRoyale() bool {
	return m.rec.Type == models.TypeBattleRoyale
}

func (m *Match) roundDurationLocked() time.Duration {
	r := m.rec.Rounds[m.rec.CurrentRound]
	return time.Duration(r.Duration) * time.Second
}

func clone(d models.Debate) models.Debate {
	c := d
	c.ProTeam = append([]models.TeamMember(nil), d.ProTeam...)
	c.ConTeam = append([]models.TeamMember(nil), d.ConTeam...)
	c.Competitors = append([]models.TeamMember(nil), d.Competitors...)
	c.Spectators = append([]models.Spectator(nil), d.Spectators...)

	c.Rounds = make([]models.Round, len(d.Rounds))
	for i, r := range d.Rounds {
		msgs := make([]models.Message, len(r.Messages))
		copy(msgs, r.Messages)
		r.Messages = msgs
		if r.StartedAt != nil {
			t := *r.StartedAt
			r.StartedAt = &t
		}
		if r.EndedAt != nil {
			t := *r.EndedAt
			r.EndedAt = &t
		}
		c.Rounds[i] = r
	}

	c.SpeakerCounts = make(map[uint]int, len(d.SpeakerCounts))
	for k, v := range d.SpeakerCounts {
		c.SpeakerCounts[k] = v
	}
	c.Reactions = make(map[string]int, len(d.Reactions))
	for k, v := range d.Reactions {
		c.Reactions[k] = v
	}

	c.Scores.Standings = append([]models.Standing(nil), d.Scores.Standings...)
	c.Winner.Team = append([]uint(nil), d.Winner.Team...)
	if d.EndedAt != nil {
		t := *d.EndedAt
		c.EndedAt = &t
	}
	return c
}
