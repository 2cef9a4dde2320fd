package match

import (
	"strings"
	"time"
	"unicode/utf8"

	"debateserver/arena/errs"
	"debateserver/models"
)

// Submission は受理された主張と、それによって変わった進行状態
type Submission struct {
	Message      models.Message
	Side         string
	NextTurn     string
	NextSpeaker  string
	TurnEndsAt   time.Time
	Counts       models.MessageCounts
	Standings    []models.Standing
	RoundChanged *RoundChange
	// 両陣営が規定数に達した場合のみ設定され、精算を開始済みであることを示す
	Closing *Closing
}

// RoundChange はラウンドが進んだときの通知内容
type RoundChange struct {
	Number   int    `json:"roundNumber"`
	Type     string `json:"roundType"`
	Duration int    `json:"duration"`
	Side     string `json:"side,omitempty"`
	Speaker  string `json:"speaker,omitempty"`
}

// Skip は制限時間切れで飛ばされた手番
type Skip struct {
	Side        string
	Skipped     string
	NextTurn    string
	NextSpeaker string
	TurnEndsAt  time.Time
}

// ValidateArgument は前後の空白を除いた本文を返す。長さは文字数で数える
func ValidateArgument(content string) (string, error) {
	text := strings.TrimSpace(content)
	n := utf8.RuneCountInString(text)
	if n < MinArgumentRunes {
		return "", errs.ErrInvalidContent.With("Argument too short. Please write at least 5 characters.")
	}
	if n > MaxArgumentRunes {
		return "", errs.ErrInvalidContent.With("Argument too long. Maximum 2000 characters.")
	}
	return text, nil
}

// Submit は手番の参加者の主張を受け付ける
// 手番の確認から状態の更新までを1つのロックの中で行う
func (m *Match) Submit(userID uint, content string) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.rec.Status {
	case models.StatusFinished:
		return Submission{}, errs.ErrAlreadyEnded
	case models.StatusActive:
	default:
		return Submission{}, errs.ErrNotActive
	}

	role, ok := m.roles[userID]
	if !ok {
		return Submission{}, errs.ErrNotParticipant
	}
	if m.isBattleRoyale() {
		if userID != m.rec.CurrentSpeaker {
			return Submission{}, errs.ErrWrongTurn
		}
	} else if role != m.rec.CurrentSide {
		return Submission{}, errs.ErrWrongTurn
	}

	text, err := ValidateArgument(content)
	if err != nil {
		return Submission{}, err
	}

	now := m.now()
	msg := models.Message{
		SenderID:   userID,
		SenderName: m.members[userID].DisplayName(),
		Content:    text,
		Timestamp:  now,
	}

	if m.isBattleRoyale() {
		m.rec.SpeakerCounts[userID]++
		m.rec.CurrentSpeaker = m.nextSpeakerLocked(userID)
	} else {
		msg.Side = role
		if role == models.SidePro {
			m.rec.MessageCounts.Pro++
		} else {
			m.rec.MessageCounts.Con++
		}
		m.rec.CurrentSide = m.nextSideLocked(role)
	}
	round := &m.rec.Rounds[m.rec.CurrentRound]
	round.Messages = append(round.Messages, msg)

	pub := msg
	if m.members[userID].Anonymous {
		pub.SenderID = 0
	}
	sub := Submission{Message: pub, Side: msg.Side}
	if m.thresholdReachedLocked() {
		sub.Closing = m.beginSettlementLocked(now)
	} else {
		sub.RoundChanged = m.advanceRoundLocked(now)
		m.rec.TurnEndsAt = now.Add(m.roundDurationLocked())
		sub.NextTurn = m.rec.CurrentSide
		sub.NextSpeaker = m.speakerNameLocked()
		sub.TurnEndsAt = m.rec.TurnEndsAt
	}
	sub.Counts = m.rec.MessageCounts
	sub.Standings = m.liveStandingsLocked()
	return sub, nil
}

// SkipExpiredTurn は期限切れの手番を飛ばす。発言も件数も記録しない
func (m *Match) SkipExpiredTurn(now time.Time) (Skip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rec.Status != models.StatusActive || now.Before(m.rec.TurnEndsAt) {
		return Skip{}, false
	}

	var skip Skip
	if m.isBattleRoyale() {
		skip.Skipped = m.speakerNameLocked()
		m.rec.CurrentSpeaker = m.nextSpeakerLocked(m.rec.CurrentSpeaker)
	} else {
		skip.Side = m.rec.CurrentSide
		m.rec.CurrentSide = m.nextSideLocked(m.rec.CurrentSide)
	}
	m.rec.TurnEndsAt = now.Add(m.roundDurationLocked())

	skip.NextTurn = m.rec.CurrentSide
	skip.NextSpeaker = m.speakerNameLocked()
	skip.TurnEndsAt = m.rec.TurnEndsAt
	return skip, true
}

// 規定数に達した陣営には手番を渡さない
func (m *Match) nextSideLocked(side string) string {
	other := models.SideCon
	if side == models.SideCon {
		other = models.SidePro
	}
	if m.sideCountLocked(other) < m.threshold {
		return other
	}
	return side
}

func (m *Match) sideCountLocked(side string) int {
	if side == models.SidePro {
		return m.rec.MessageCounts.Pro
	}
	return m.rec.MessageCounts.Con
}

// 結成順に巡回し、規定数に達した参加者は飛ばす
func (m *Match) nextSpeakerLocked(current uint) uint {
	comps := m.rec.Competitors
	start := 0
	for i, c := range comps {
		if c.UserID == current {
			start = i
			break
		}
	}
	for step := 1; step <= len(comps); step++ {
		c := comps[(start+step)%len(comps)]
		if m.rec.SpeakerCounts[c.UserID] < m.threshold {
			return c.UserID
		}
	}
	return current
}

func (m *Match) speakerNameLocked() string {
	if !m.isBattleRoyale() {
		return ""
	}
	return m.members[m.rec.CurrentSpeaker].DisplayName()
}

func (m *Match) thresholdReachedLocked() bool {
	if m.isBattleRoyale() {
		for _, c := range m.rec.Competitors {
			if m.rec.SpeakerCounts[c.UserID] < m.threshold {
				return false
			}
		}
		return len(m.rec.Competitors) > 0
	}
	return m.rec.MessageCounts.Pro >= m.threshold && m.rec.MessageCounts.Con >= m.threshold
}

// 現在のラウンドで全員が発言済みなら次のラウンドへ進める
func (m *Match) advanceRoundLocked(now time.Time) *RoundChange {
	if m.rec.CurrentRound >= len(m.rec.Rounds)-1 || !m.roundCompleteLocked() {
		return nil
	}

	ended := now
	m.rec.Rounds[m.rec.CurrentRound].EndedAt = &ended
	m.rec.CurrentRound++
	started := now
	next := &m.rec.Rounds[m.rec.CurrentRound]
	next.StartedAt = &started

	return &RoundChange{
		Number:   next.Number,
		Type:     next.Type,
		Duration: next.Duration,
		Side:     m.rec.CurrentSide,
		Speaker:  m.speakerNameLocked(),
	}
}

func (m *Match) roundCompleteLocked() bool {
	spoke := make(map[uint]bool)
	sides := make(map[string]bool)
	for _, msg := range m.rec.Rounds[m.rec.CurrentRound].Messages {
		spoke[msg.SenderID] = true
		sides[msg.Side] = true
	}

	if !m.isBattleRoyale() {
		return sides[models.SidePro] && sides[models.SideCon]
	}
	for _, c := range m.rec.Competitors {
		if !spoke[c.UserID] && m.rec.SpeakerCounts[c.UserID] < m.threshold {
			return false
		}
	}
	return true
}

func (m *Match) liveStandingsLocked() []models.Standing {
	if !m.isBattleRoyale() {
		return nil
	}
	out := make([]models.Standing, 0, len(m.rec.Competitors))
	for _, c := range m.rec.Competitors {
		s := models.Standing{Name: c.DisplayName(), Count: m.rec.SpeakerCounts[c.UserID]}
		if !c.Anonymous {
			s.UserID = c.UserID
		}
		out = append(out, s)
	}
	return out
}
