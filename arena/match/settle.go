package match

import (
	"strings"
	"time"

	"debateserver/models"
)

// ArgumentSeparator は審査に渡す各陣営の主張の区切り
const ArgumentSeparator = "\n\n---\n\n"

// Closing は精算開始時点で確定した入力
type Closing struct {
	MatchID string
	Type    string
	Topic   models.Topic
	ProText string
	ConText string
	Entries []Entry
	EndedAt time.Time
}

// Entry はバトルロイヤル参加者ごとの主張
type Entry struct {
	UserID uint
	Name   string
	Text   string
	Count  int
}

// Result は判定結果。Standings はバトルロイヤルのみ
type Result struct {
	Winner    string
	WinnerID  uint
	ProScore  int
	ConScore  int
	Standings []models.Standing
	Reasoning string
}

// BeginSettlement は賭けを締め切って試合を終了状態にする
// 2回目以降の呼び出しは false を返す
func (m *Match) BeginSettlement() (*Closing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.Status == models.StatusFinished {
		return nil, false
	}
	return m.beginSettlementLocked(m.now()), true
}

func (m *Match) beginSettlementLocked(now time.Time) *Closing {
	m.rec.BettingOpen = false
	m.rec.Status = models.StatusFinished
	ended := now
	m.rec.EndedAt = &ended
	m.rec.CurrentSide = ""
	m.rec.CurrentSpeaker = 0
	if r := &m.rec.Rounds[m.rec.CurrentRound]; r.EndedAt == nil {
		t := now
		r.EndedAt = &t
	}

	c := &Closing{
		MatchID: m.rec.ID,
		Type:    m.rec.Type,
		Topic:   m.rec.Topic,
		EndedAt: now,
	}

	var pro, con []string
	texts := make(map[uint][]string)
	for _, r := range m.rec.Rounds {
		for _, msg := range r.Messages {
			switch msg.Side {
			case models.SidePro:
				pro = append(pro, msg.Content)
			case models.SideCon:
				con = append(con, msg.Content)
			default:
				texts[msg.SenderID] = append(texts[msg.SenderID], msg.Content)
			}
		}
	}
	c.ProText = strings.Join(pro, ArgumentSeparator)
	c.ConText = strings.Join(con, ArgumentSeparator)

	for _, p := range m.rec.Competitors {
		c.Entries = append(c.Entries, Entry{
			UserID: p.UserID,
			Name:   p.DisplayName(),
			Text:   strings.Join(texts[p.UserID], ArgumentSeparator),
			Count:  m.rec.SpeakerCounts[p.UserID],
		})
	}
	return c
}

// RecordResult は判定結果を一度だけ記録し、記録後のレコードを返す
func (m *Match) RecordResult(res Result) (models.Debate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.Status != models.StatusFinished || m.rec.ResultRecorded {
		return clone(m.rec), false
	}

	winner := models.Winner{Side: res.Winner}
	switch res.Winner {
	case models.SidePro:
		winner.Team = teamIDs(m.rec.ProTeam)
		winner.Score, m.rec.LoserScore = res.ProScore, res.ConScore
	case models.SideCon:
		winner.Team = teamIDs(m.rec.ConTeam)
		winner.Score, m.rec.LoserScore = res.ConScore, res.ProScore
	case models.SideCompetitor:
		winner.Team = []uint{res.WinnerID}
	default:
		winner.Side = models.SideDraw
		winner.Score = max(res.ProScore, res.ConScore)
		m.rec.LoserScore = min(res.ProScore, res.ConScore)
	}

	if len(res.Standings) > 0 {
		winner.Score = res.Standings[0].Score
		m.rec.LoserScore = 0
		if len(res.Standings) > 1 {
			m.rec.LoserScore = res.Standings[1].Score
		}
	}
	winner.Margin = winner.Score - m.rec.LoserScore
	if winner.Margin < 0 {
		winner.Margin = -winner.Margin
	}

	m.rec.Scores = models.Scores{Pro: res.ProScore, Con: res.ConScore, Standings: res.Standings}
	m.rec.Winner = winner
	m.rec.Reasoning = res.Reasoning
	m.rec.ResultRecorded = true
	return clone(m.rec), true
}

func teamIDs(team []models.TeamMember) []uint {
	ids := make([]uint, 0, len(team))
	for _, p := range team {
		ids = append(ids, p.UserID)
	}
	return ids
}
