package actions

import (
	"context"

	"debateserver/arena/broadcast"
	"debateserver/arena/errs"
	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/models"

	"go.uber.org/zap"
)

type queuePayload struct {
	Type        string `json:"type"`
	Category    string `json:"category"`
	IsAnonymous bool   `json:"isAnonymous"`
}

// joinQueue は待機列に参加させ、人数が揃えば試合を作成する
func (e *Engine) joinQueue(ctx context.Context, c Caller, p queuePayload) (Result, error) {
	matchType, size, err := matchmaking.PartySize(p.Type)
	if err != nil {
		return Result{}, err
	}
	category, err := matchmaking.ResolveCategory(p.Category)
	if err != nil {
		return Result{}, err
	}
	if _, playing := e.registry.PlayerMatch(c.UserID); playing {
		return Result{}, errs.ErrAlreadyInMatch
	}

	position, err := e.queue.Enqueue(matchmaking.Participant{
		UserID:     c.UserID,
		Username:   c.Username,
		Tier:       c.Tier,
		Reputation: c.Reputation,
		Anonymous:  p.IsAnonymous,
		MatchType:  matchType,
		Category:   category,
		JoinedAt:   e.now(),
	})
	if err != nil {
		return Result{}, err
	}
	e.logger.Info("Joined queue", zap.Uint("userID", c.UserID), zap.String("type", matchType), zap.String("category", category), zap.Int("position", position))

	intents := []broadcast.Intent{broadcast.ToOrigin("queue_joined", map[string]interface{}{
		"position": position,
		"type":     matchType,
		"category": category,
	})}

	group := e.queue.TryForm(matchType, category, size)
	if group == nil {
		return Result{Intents: intents}, nil
	}
	m := e.factory.Create(matchType, category, group)
	e.registry.Add(m)

	rec := m.Snapshot()
	if err := e.store.SaveDebate(ctx, &rec); err != nil {
		// 試合はメモリ上で進行できるため、保存の失敗は記録だけする
		e.logger.Error("Failed to save new debate", zap.String("matchID", m.ID()), zap.Error(err))
	}
	e.logger.Info("Match formed", zap.String("matchID", m.ID()), zap.String("type", matchType), zap.Int("players", len(group)))

	return Result{Intents: append(intents, matchFound(m, rec)...)}, nil
}

// matchFound は各プレイヤーを部屋に入れ、それぞれの視点で対戦相手を知らせる
func matchFound(m *match.Match, rec models.Debate) []broadcast.Intent {
	view := match.ViewOf(rec)
	var intents []broadcast.Intent
	for _, uid := range m.Players() {
		side, _ := m.Role(uid)
		var opponents []match.PublicMember
		switch side {
		case models.SidePro:
			opponents = view.ConTeam
		case models.SideCon:
			opponents = view.ProTeam
		default:
			for i, member := range rec.Competitors {
				if member.UserID != uid {
					opponents = append(opponents, view.Competitors[i])
				}
			}
		}
		var opponent interface{}
		if len(opponents) > 0 {
			opponent = opponents[0]
		}
		intents = append(intents,
			broadcast.JoinRoom(m.ID(), uid),
			broadcast.ToUser(uid, "match_found", map[string]interface{}{
				"matchId":   m.ID(),
				"debateId":  m.ID(),
				"type":      rec.Type,
				"side":      side,
				"topic":     rec.Topic,
				"opponent":  opponent,
				"opponents": opponents,
			}),
		)
	}
	return intents
}

func (e *Engine) leaveQueue(c Caller, p queuePayload) (Result, error) {
	matchType, _, err := matchmaking.PartySize(p.Type)
	if err != nil {
		return Result{}, err
	}
	category, err := matchmaking.ResolveCategory(p.Category)
	if err != nil {
		return Result{}, err
	}
	if e.queue.Dequeue(c.UserID, matchType, category) {
		e.logger.Info("Left queue", zap.Uint("userID", c.UserID), zap.String("type", matchType), zap.String("category", category))
	}
	return Result{Intents: []broadcast.Intent{broadcast.ToOrigin("queue_left", map[string]interface{}{})}}, nil
}
