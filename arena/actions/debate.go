package actions

import (
	"context"
	"errors"
	"time"

	"debateserver/arena/broadcast"
	"debateserver/arena/errs"
	"debateserver/arena/match"
	"debateserver/models"
	"debateserver/store"

	"go.uber.org/zap"
)

// RoleSpectator は debate_joined で観戦者に返す役割
const RoleSpectator = "spectator"

type argumentPayload struct {
	matchRef
	Content string `json:"content"`
}

// joinDebate は試合の部屋に入る。プレイヤー以外は観戦者として登録する
// 終了済みの試合なら状態と結果だけを返す
func (e *Engine) joinDebate(ctx context.Context, c Caller, id string) (Result, error) {
	if id == "" {
		return Result{}, errs.ErrNotFound
	}
	m, ok := e.registry.Get(id)
	if !ok {
		rec, err := e.store.GetDebate(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, errs.ErrNotFound
		}
		if err != nil {
			return Result{}, err
		}
		if rec.Status != models.StatusFinished {
			return Result{}, errs.ErrNotActive
		}
		return Result{Intents: []broadcast.Intent{
			broadcast.ToOrigin("debate_joined", map[string]interface{}{"match": match.ViewOf(rec), "role": RoleSpectator}),
			broadcast.ToOrigin("debate_ended", match.EndedPayload(rec)),
		}}, nil
	}

	if role, player := m.Role(c.UserID); player {
		e.logger.Info("Player joined debate", zap.String("matchID", id), zap.Uint("userID", c.UserID))
		return Result{Intents: []broadcast.Intent{
			broadcast.JoinRoom(id, c.UserID),
			broadcast.ToOrigin("debate_joined", map[string]interface{}{"match": m.View(), "role": role}),
		}}, nil
	}

	count, added := m.JoinSpectator(c.UserID)
	intents := []broadcast.Intent{
		broadcast.JoinRoom(id, c.UserID),
		broadcast.ToOrigin("debate_joined", map[string]interface{}{"match": m.View(), "role": RoleSpectator}),
	}
	if added {
		e.logger.Info("Spectator joined debate", zap.String("matchID", id), zap.Uint("userID", c.UserID), zap.Int("spectators", count))
		intents = append(intents, broadcast.ToRoom(id, "spectator_joined", map[string]interface{}{"spectatorCount": count}))
	}
	return Result{Intents: intents}, nil
}

// submitArgument は主張を受け付けて部屋に配信する
// 規定数に達した場合は精算を Followup として返す
func (e *Engine) submitArgument(ctx context.Context, c Caller, p argumentPayload) (Result, error) {
	m, err := e.lookup(ctx, p.id())
	if err != nil {
		return Result{}, err
	}
	sub, err := m.Submit(c.UserID, p.Content)
	if err != nil {
		return Result{}, err
	}
	e.logger.Info("Argument submitted", zap.String("matchID", m.ID()), zap.Uint("userID", c.UserID), zap.String("side", sub.Side), zap.Int("pro", sub.Counts.Pro), zap.Int("con", sub.Counts.Con))

	payload := map[string]interface{}{
		"message":      sub.Message,
		"side":         sub.Side,
		"nextTurn":     sub.NextTurn,
		"messageCount": sub.Counts,
	}
	if sub.NextSpeaker != "" {
		payload["nextSpeaker"] = sub.NextSpeaker
	}
	if !sub.TurnEndsAt.IsZero() {
		payload["turnEndsAt"] = sub.TurnEndsAt
	}
	if len(sub.Standings) > 0 {
		payload["standings"] = sub.Standings
	}
	res := Result{Intents: []broadcast.Intent{broadcast.ToRoom(m.ID(), "argument_submitted", payload)}}

	if sub.RoundChanged != nil {
		res.Intents = append(res.Intents, broadcast.ToRoom(m.ID(), "round_changed", sub.RoundChanged))
	}
	if sub.Closing != nil {
		closing := sub.Closing
		e.logger.Info("Debate finished, settling", zap.String("matchID", m.ID()))
		res.Followup = func(ctx context.Context) []broadcast.Intent {
			out := e.pipeline.Complete(ctx, m, closing)
			return []broadcast.Intent{
				broadcast.ToRoom(m.ID(), "debate_ended", out.Ended),
				broadcast.CloseRoom(m.ID()),
			}
		}
	}
	return res, nil
}

// leaveDebate は部屋から出る。観戦者なら観戦者数の変化を知らせる
func (e *Engine) leaveDebate(c Caller, id string) Result {
	intents := []broadcast.Intent{broadcast.LeaveRoom(id, c.UserID)}
	m, ok := e.registry.Get(id)
	if !ok {
		return Result{Intents: intents}
	}
	if count, removed := m.LeaveSpectator(c.UserID); removed {
		e.logger.Info("Spectator left debate", zap.String("matchID", id), zap.Uint("userID", c.UserID), zap.Int("spectators", count))
		intents = append(intents, broadcast.ToRoom(id, "spectator_left", map[string]interface{}{"spectatorCount": count}))
	}
	return Result{Intents: intents}
}

// Disconnect は切断したユーザーを待機列と観戦者から外す
// プレイヤーの切断では試合を止めない
func (e *Engine) Disconnect(userID uint, rooms []string) []broadcast.Intent {
	if n := e.queue.RemoveEverywhere(userID); n > 0 {
		e.logger.Info("Removed disconnected user from queues", zap.Uint("userID", userID), zap.Int("queues", n))
	}

	var intents []broadcast.Intent
	for _, id := range rooms {
		m, ok := e.registry.Get(id)
		if !ok {
			continue
		}
		if count, removed := m.LeaveSpectator(userID); removed {
			intents = append(intents, broadcast.ToRoom(id, "spectator_left", map[string]interface{}{"spectatorCount": count}))
		}
	}
	return intents
}

// Rejoin は再接続したユーザーを以前の部屋に戻し、進行中の試合の状態を送る
func (e *Engine) Rejoin(userID uint, rooms []string) []broadcast.Intent {
	var intents []broadcast.Intent
	for _, id := range rooms {
		m, ok := e.registry.Get(id)
		if !ok || m.Status() != models.StatusActive {
			continue
		}
		role, player := m.Role(userID)
		if !player {
			role = RoleSpectator
			if count, added := m.JoinSpectator(userID); added {
				intents = append(intents, broadcast.ToRoom(id, "spectator_joined", map[string]interface{}{"spectatorCount": count}))
			}
		}
		intents = append(intents,
			broadcast.JoinRoom(id, userID),
			broadcast.ToOrigin("debate_state", map[string]interface{}{"match": m.View(), "role": role}),
		)
	}
	if len(intents) > 0 {
		e.logger.Info("Session restored", zap.Uint("userID", userID), zap.Strings("rooms", rooms))
	}
	return intents
}

// SweepTurnDeadlines は期限切れの手番をすべて飛ばす。cron から毎秒呼ばれる
func (e *Engine) SweepTurnDeadlines(now time.Time) []broadcast.Intent {
	var intents []broadcast.Intent
	for _, m := range e.registry.Active() {
		skip, ok := m.SkipExpiredTurn(now)
		if !ok {
			continue
		}
		e.logger.Info("Turn skipped", zap.String("matchID", m.ID()), zap.String("side", skip.Side), zap.String("nextTurn", skip.NextTurn))

		payload := map[string]interface{}{
			"nextTurn":   skip.NextTurn,
			"turnEndsAt": skip.TurnEndsAt,
		}
		if skip.Side != "" {
			payload["side"] = skip.Side
		}
		if skip.Skipped != "" {
			payload["skipped"] = skip.Skipped
			payload["nextSpeaker"] = skip.NextSpeaker
		}
		intents = append(intents, broadcast.ToRoom(m.ID(), "turn_skipped", payload))
	}
	return intents
}

// ReconcileBets は未精算のまま残った賭けを精算する。cron から毎日呼ばれる
func (e *Engine) ReconcileBets(ctx context.Context) (int, error) {
	return e.pipeline.ReconcileBets(ctx)
}
