package actions

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"debateserver/arena/broadcast"
	"debateserver/arena/errs"
	"debateserver/store"

	"go.uber.org/zap"
)

const MaxChatRunes = 500

type chatPayload struct {
	matchRef
	Message string `json:"message"`
	// クライアントが送る username は使わない
	Username string `json:"username"`
}

type reactionPayload struct {
	matchRef
	Emoji string `json:"emoji"`
}

type betPayload struct {
	matchRef
	Side            string  `json:"side"`
	PredictedWinner string  `json:"predictedWinner"`
	Amount          float64 `json:"amount"`
}

// spectatorChat は部屋にいるユーザーのチャットを配信する
// モデレーションで flagged なら送信元にだけ拒否を返す。モデレーション自体の失敗では止めない
func (e *Engine) spectatorChat(ctx context.Context, c Caller, p chatPayload) (Result, error) {
	m, err := e.lookup(ctx, p.id())
	if err != nil {
		return Result{}, err
	}
	if !m.IsPlayer(c.UserID) && !m.IsSpectator(c.UserID) {
		return Result{}, errs.ErrNotInRoom
	}

	text := strings.TrimSpace(p.Message)
	if n := utf8.RuneCountInString(text); n == 0 || n > MaxChatRunes {
		return Result{}, errs.ErrInvalidChat
	}

	if e.moderator != nil {
		verdict, err := e.moderator.Check(ctx, text)
		if err != nil {
			e.logger.Warn("Moderation failed, delivering chat", zap.String("matchID", m.ID()), zap.Error(err))
		} else if verdict.Flagged {
			e.logger.Info("Chat flagged", zap.String("matchID", m.ID()), zap.Uint("userID", c.UserID), zap.String("reason", verdict.Reason))
			return Result{}, errs.ErrChatFlagged
		}
	}

	entry := store.ChatEntry{
		MatchID:   m.ID(),
		UserID:    c.UserID,
		Username:  m.DisplayName(c.UserID, c.Username),
		Message:   text,
		Timestamp: e.now(),
	}
	if e.chatlog != nil {
		if err := e.chatlog.Append(ctx, entry); err != nil {
			e.logger.Error("Failed to archive chat", zap.String("matchID", m.ID()), zap.Error(err))
		}
	}

	return Result{Intents: []broadcast.Intent{broadcast.ToRoom(m.ID(), "spectator_message", map[string]interface{}{
		"username":  entry.Username,
		"message":   entry.Message,
		"timestamp": entry.Timestamp,
	})}}, nil
}

func (e *Engine) react(c Caller, p reactionPayload) (Result, error) {
	m, ok := e.registry.Get(p.id())
	if !ok {
		return Result{}, errs.ErrNotFound
	}
	glyph, count, err := m.React(p.Emoji)
	if err != nil {
		return Result{}, err
	}
	return Result{Intents: []broadcast.Intent{broadcast.ToRoom(m.ID(), "reaction", map[string]interface{}{
		"emoji": glyph,
		"count": count,
	})}}, nil
}

// placeBet は賭けを受け付け、送信元に残高を、部屋に新しいプールと倍率を知らせる
func (e *Engine) placeBet(ctx context.Context, c Caller, p betPayload) (Result, error) {
	m, err := e.lookup(ctx, p.id())
	if err != nil {
		return Result{}, err
	}
	side := p.Side
	if side == "" {
		side = p.PredictedWinner
	}
	if p.Amount != math.Trunc(p.Amount) || p.Amount > math.MaxInt32 || p.Amount < math.MinInt32 {
		return Result{}, errs.ErrInvalidAmount
	}

	placed, err := e.ledger.Place(ctx, m, c.UserID, side, int(p.Amount))
	if err != nil {
		return Result{}, err
	}
	_, pro, con := m.CurrentOdds()

	return Result{Intents: []broadcast.Intent{
		broadcast.ToOrigin("bet_placed", map[string]interface{}{
			"side":       placed.Bet.PredictedSide,
			"amount":     placed.Bet.Amount,
			"odds":       placed.Odds,
			"newBalance": placed.NewBalance,
		}),
		broadcast.ToRoom(m.ID(), "betting_update", map[string]interface{}{
			"pool": placed.Pool,
			"odds": map[string]float64{"pro": pro, "con": con},
		}),
	}}, nil
}
