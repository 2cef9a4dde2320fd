package actions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"debateserver/arena/betting"
	"debateserver/arena/broadcast"
	"debateserver/arena/errs"
	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/arena/settlement"
	"debateserver/judge"
	"debateserver/models"
	"debateserver/store"

	"go.uber.org/zap"
)

// 受信イベント
const (
	EventJoinQueue      = "join_queue"
	EventLeaveQueue     = "leave_queue"
	EventJoinDebate     = "join_debate"
	EventSubmitArgument = "submit_argument"
	EventSpectatorChat  = "spectator_chat"
	EventReaction       = "reaction"
	EventPlaceBet       = "place_bet"
	EventLeaveDebate    = "leave_debate"
)

// Caller は認証済みの送信者
type Caller struct {
	UserID     uint
	Username   string
	Tier       string
	Reputation int
}

// Result はコマンド処理の結果
// Followup は精算のように外部呼び出しを伴う後続処理で、呼び出し側が別のゴルーチンで実行する
type Result struct {
	Intents  []broadcast.Intent
	Followup func(ctx context.Context) []broadcast.Intent
}

// ChatArchive は観戦チャットの保管先
type ChatArchive interface {
	Append(ctx context.Context, e store.ChatEntry) error
}

// Engine は受信イベントを試合の操作に変換する
type Engine struct {
	queue     *matchmaking.Queue
	factory   *match.Factory
	registry  *match.Registry
	ledger    *betting.Ledger
	pipeline  *settlement.Pipeline
	store     store.Store
	moderator judge.Moderator
	chatlog   ChatArchive
	logger    *zap.Logger
	now       func() time.Time
}

// Deps は Engine の依存。Moderator と ChatLog は省略できる
type Deps struct {
	Queue     *matchmaking.Queue
	Factory   *match.Factory
	Registry  *match.Registry
	Ledger    *betting.Ledger
	Pipeline  *settlement.Pipeline
	Store     store.Store
	Moderator judge.Moderator
	ChatLog   ChatArchive
	Logger    *zap.Logger
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		queue:     d.Queue,
		factory:   d.Factory,
		registry:  d.Registry,
		ledger:    d.Ledger,
		pipeline:  d.Pipeline,
		store:     d.Store,
		moderator: d.Moderator,
		chatlog:   d.ChatLog,
		logger:    d.Logger,
		now:       time.Now,
	}
}

type matchRef struct {
	MatchID  string `json:"matchId"`
	DebateID string `json:"debateId"`
}

func (r matchRef) id() string {
	if r.MatchID != "" {
		return r.MatchID
	}
	return r.DebateID
}

// Handle は1件の受信メッセージを処理する。失敗は送信元への拒否イベントになる
func (e *Engine) Handle(ctx context.Context, c Caller, raw []byte) Result {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return e.reject(c, "", errs.ErrMalformed)
	}

	var (
		res Result
		err error
	)
	switch env.Type {
	case EventJoinQueue:
		var p queuePayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.joinQueue(ctx, c, p)
		}
	case EventLeaveQueue:
		var p queuePayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.leaveQueue(c, p)
		}
	case EventJoinDebate:
		var p matchRef
		if err = decode(env.Data, &p); err == nil {
			res, err = e.joinDebate(ctx, c, p.id())
		}
	case EventSubmitArgument:
		var p argumentPayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.submitArgument(ctx, c, p)
		}
	case EventSpectatorChat:
		var p chatPayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.spectatorChat(ctx, c, p)
		}
	case EventReaction:
		var p reactionPayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.react(c, p)
		}
	case EventPlaceBet:
		var p betPayload
		if err = decode(env.Data, &p); err == nil {
			res, err = e.placeBet(ctx, c, p)
		}
	case EventLeaveDebate:
		var p matchRef
		if err = decode(env.Data, &p); err == nil {
			res = e.leaveDebate(c, p.id())
		}
	default:
		err = errs.ErrUnknownEvent
	}

	if err != nil {
		return e.reject(c, env.Type, err)
	}
	return res
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.ErrMalformed
	}
	return nil
}

// reject はエラーを送信元だけへの拒否イベントに変換する
func (e *Engine) reject(c Caller, event string, err error) Result {
	var known *errs.Error
	if !errors.As(err, &known) {
		e.logger.Error("Command failed", zap.String("event", event), zap.Uint("userID", c.UserID), zap.Error(err))
	} else {
		e.logger.Info("Command rejected", zap.String("event", event), zap.Uint("userID", c.UserID), zap.String("code", known.Code))
	}
	ee := errs.As(err)

	switch {
	case errors.Is(ee, errs.ErrInvalidContent):
		return Result{Intents: []broadcast.Intent{broadcast.ToOrigin("argument_rejected", map[string]interface{}{
			"reason": ee.Message,
		})}}
	case event == EventPlaceBet:
		msg := ee.Message
		if ee == errs.ErrInternal {
			msg = "Failed to place bet"
		}
		payload := map[string]interface{}{"message": msg}
		if errors.Is(ee, errs.ErrInsufficientBalance) {
			payload["required"] = ee.Required
			payload["available"] = ee.Available
		}
		return Result{Intents: []broadcast.Intent{broadcast.ToOrigin("bet_error", payload)}}
	default:
		return Result{Intents: []broadcast.Intent{broadcast.ToOrigin("error", map[string]interface{}{
			"message": ee.Message,
			"code":    ee.Code,
		})}}
	}
}

// lookup は進行中の試合を探す。終了済みなら ErrAlreadyEnded を返す
func (e *Engine) lookup(ctx context.Context, id string) (*match.Match, error) {
	if id == "" {
		return nil, errs.ErrNotFound
	}
	if m, ok := e.registry.Get(id); ok {
		return m, nil
	}
	rec, err := e.store.GetDebate(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusFinished {
		return nil, errs.ErrAlreadyEnded
	}
	return nil, errs.ErrNotActive
}
