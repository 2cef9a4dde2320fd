package match

import (
	"time"

	"debateserver/models"
)

// PublicMember は外部に見せる参加者情報。匿名ならIDを含めない
type PublicMember struct {
	UserID    uint   `json:"userId,omitempty"`
	Name      string `json:"name"`
	Tier      string `json:"tier,omitempty"`
	Anonymous bool   `json:"isAnonymous"`
	Role      string `json:"role"`
}

// PublicWinner は勝者の公開情報
type PublicWinner struct {
	Side   string   `json:"side"`
	Team   []string `json:"team"`
	Score  int      `json:"score"`
	Margin int      `json:"margin"`
}

// OddsView は両陣営の現在の倍率
type OddsView struct {
	Pro float64 `json:"pro"`
	Con float64 `json:"con"`
}

// View はクライアントに送る試合状態
type View struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	Category       string               `json:"category"`
	Topic          models.Topic         `json:"topic"`
	ProTeam        []PublicMember       `json:"proTeam"`
	ConTeam        []PublicMember       `json:"conTeam"`
	Competitors    []PublicMember       `json:"competitors,omitempty"`
	Rounds         []models.Round       `json:"rounds"`
	CurrentRound   int                  `json:"currentRound"`
	CurrentSide    string               `json:"currentSide,omitempty"`
	CurrentSpeaker string               `json:"currentSpeaker,omitempty"`
	TurnEndsAt     time.Time            `json:"turnEndsAt"`
	MessageCount   models.MessageCounts `json:"messageCount"`
	Standings      []models.Standing    `json:"standings,omitempty"`
	Status         string               `json:"status"`
	Scores         *models.Scores       `json:"scores,omitempty"`
	Winner         *PublicWinner        `json:"winner,omitempty"`
	Reasoning      string               `json:"reasoning,omitempty"`
	SpectatorCount int                  `json:"spectatorCount"`
	Reactions      map[string]int       `json:"reactions"`
	BettingPool    models.Pool          `json:"bettingPool"`
	BettingOpen    bool                 `json:"bettingOpen"`
	Odds           OddsView             `json:"odds"`
	StartedAt      time.Time            `json:"startedAt"`
	EndedAt        *time.Time           `json:"endedAt,omitempty"`
}

// Rewards は終了通知に含める報酬の定数
type Rewards struct {
	Winner     int `json:"winner"`
	Loser      int `json:"loser"`
	Draw       int `json:"draw"`
	Reputation int `json:"reputation"`
}

// Ended は debate_ended の内容。保存済みレコードから再構築できる
type Ended struct {
	MatchID     string         `json:"matchId"`
	Winner      string         `json:"winner"`
	WinnerTeam  []string       `json:"winnerTeam"`
	FinalScores models.Scores  `json:"finalScores"`
	Margin      int            `json:"margin"`
	Reasoning   string         `json:"reasoning"`
	XPRewards   Rewards        `json:"xpRewards"`
	ProTeam     []PublicMember `json:"proTeam"`
	ConTeam     []PublicMember `json:"conTeam"`
	Competitors []PublicMember `json:"competitors,omitempty"`
}

func publicTeam(team []models.TeamMember) []PublicMember {
	out := make([]PublicMember, 0, len(team))
	for _, p := range team {
		pm := PublicMember{Name: p.DisplayName(), Tier: p.Tier, Anonymous: p.Anonymous, Role: p.Role}
		if !p.Anonymous {
			pm.UserID = p.UserID
		}
		out = append(out, pm)
	}
	return out
}

func membersOf(rec models.Debate) map[uint]models.TeamMember {
	members := make(map[uint]models.TeamMember)
	for _, team := range [][]models.TeamMember{rec.ProTeam, rec.ConTeam, rec.Competitors} {
		for _, p := range team {
			members[p.UserID] = p
		}
	}
	return members
}

func maskStandings(standings []models.Standing, members map[uint]models.TeamMember) []models.Standing {
	if len(standings) == 0 {
		return nil
	}
	out := make([]models.Standing, len(standings))
	for i, s := range standings {
		if members[s.UserID].Anonymous {
			s.UserID = 0
		}
		out[i] = s
	}
	return out
}

func winnerNames(w models.Winner, members map[uint]models.TeamMember) []string {
	names := make([]string, 0, len(w.Team))
	for _, id := range w.Team {
		names = append(names, members[id].DisplayName())
	}
	return names
}

// ViewOf はレコードから公開用の状態を作る。匿名の参加者のIDは取り除く
func ViewOf(rec models.Debate) View {
	members := membersOf(rec)

	rounds := make([]models.Round, len(rec.Rounds))
	for i, r := range rec.Rounds {
		msgs := make([]models.Message, len(r.Messages))
		for j, msg := range r.Messages {
			if members[msg.SenderID].Anonymous {
				msg.SenderID = 0
			}
			msgs[j] = msg
		}
		r.Messages = msgs
		rounds[i] = r
	}

	v := View{
		ID:             rec.ID,
		Type:           rec.Type,
		Category:       rec.Category,
		Topic:          rec.Topic,
		ProTeam:        publicTeam(rec.ProTeam),
		ConTeam:        publicTeam(rec.ConTeam),
		Competitors:    publicTeam(rec.Competitors),
		Rounds:         rounds,
		CurrentRound:   rec.CurrentRound,
		CurrentSide:    rec.CurrentSide,
		TurnEndsAt:     rec.TurnEndsAt,
		MessageCount:   rec.MessageCounts,
		Status:         rec.Status,
		SpectatorCount: rec.SpectatorCount,
		Reactions:      rec.Reactions,
		BettingPool:    rec.BettingPool,
		BettingOpen:    rec.BettingOpen,
		Odds: OddsView{
			Pro: Odds(rec.BettingPool, models.SidePro),
			Con: Odds(rec.BettingPool, models.SideCon),
		},
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
	if v.Reactions == nil {
		v.Reactions = map[string]int{}
	}
	if p, ok := members[rec.CurrentSpeaker]; ok && rec.CurrentSpeaker != 0 {
		v.CurrentSpeaker = p.DisplayName()
	}
	if rec.Type == models.TypeBattleRoyale {
		for _, c := range rec.Competitors {
			s := models.Standing{Name: c.DisplayName(), Count: rec.SpeakerCounts[c.UserID]}
			if !c.Anonymous {
				s.UserID = c.UserID
			}
			v.Standings = append(v.Standings, s)
		}
	}

	if rec.ResultRecorded {
		scores := rec.Scores
		scores.Standings = maskStandings(rec.Scores.Standings, members)
		v.Scores = &scores
		v.Winner = &PublicWinner{
			Side:   rec.Winner.Side,
			Team:   winnerNames(rec.Winner, members),
			Score:  rec.Winner.Score,
			Margin: rec.Winner.Margin,
		}
		v.Reasoning = rec.Reasoning
	}
	return v
}

// EndedPayload は終了済みレコードから debate_ended の内容を作る
func EndedPayload(rec models.Debate) Ended {
	members := membersOf(rec)
	scores := rec.Scores
	scores.Standings = maskStandings(rec.Scores.Standings, members)

	return Ended{
		MatchID:     rec.ID,
		Winner:      rec.Winner.Side,
		WinnerTeam:  winnerNames(rec.Winner, members),
		FinalScores: scores,
		Margin:      rec.Winner.Margin,
		Reasoning:   rec.Reasoning,
		XPRewards:   Rewards{Winner: XPWin, Loser: XPLoss, Draw: XPDraw, Reputation: ReputationWin},
		ProTeam:     publicTeam(rec.ProTeam),
		ConTeam:     publicTeam(rec.ConTeam),
		Competitors: publicTeam(rec.Competitors),
	}
}
