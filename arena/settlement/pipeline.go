package settlement

import (
	"context"
	"fmt"

	"debateserver/arena/betting"
	"debateserver/arena/match"
	"debateserver/judge"
	"debateserver/models"
	"debateserver/store"

	"go.uber.org/zap"
)

// Archiver は終了した試合の記録を外部に保管する
type Archiver interface {
	Archive(ctx context.Context, d models.Debate) (string, error)
}

// Announcer は試合結果を外部に告知する
type Announcer interface {
	Announce(ctx context.Context, d models.Debate) error
}

// Outcome は精算の結果
type Outcome struct {
	Record   models.Debate
	Ended    match.Ended
	Fallback bool
	Bets     betting.Report
}

// Pipeline は試合終了時の採点、報酬、賭けの精算を行う
type Pipeline struct {
	store     store.Store
	judge     judge.Judge
	ledger    *betting.Ledger
	registry  *match.Registry
	archiver  Archiver
	announcer Announcer
	logger    *zap.Logger
}

type Option func(*Pipeline)

func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithAnnouncer(a Announcer) Option {
	return func(p *Pipeline) { p.announcer = a }
}

// New はパイプラインを作る。j が nil なら常にフォールバック判定を使う
func New(s store.Store, j judge.Judge, ledger *betting.Ledger, registry *match.Registry, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{store: s, judge: j, ledger: ledger, registry: registry, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Trigger は精算を開始する。すでに開始済みなら false
func (p *Pipeline) Trigger(ctx context.Context, m *match.Match) (Outcome, bool) {
	closing, ok := m.BeginSettlement()
	if !ok {
		return Outcome{}, false
	}
	return p.Complete(ctx, m, closing), true
}

// Complete は BeginSettlement 済みの試合を最後まで精算する
// 個々の報酬や賭けの失敗は記録して続行する
func (p *Pipeline) Complete(ctx context.Context, m *match.Match, c *match.Closing) Outcome {
	logger := p.logger.With(zap.String("matchID", c.MatchID))
	var out Outcome

	result, fallback := p.rank(ctx, c, logger)
	out.Fallback = fallback

	rec, ok := m.RecordResult(result)
	if !ok {
		logger.Warn("Result already recorded")
		out.Record = rec
		out.Ended = match.EndedPayload(rec)
		return out
	}
	logger.Info("Result recorded", zap.String("winner", rec.Winner.Side), zap.Int("proScore", rec.Scores.Pro), zap.Int("conScore", rec.Scores.Con), zap.Bool("fallback", fallback))

	if err := p.store.SaveDebate(ctx, &rec); err != nil {
		logger.Error("Failed to save finished debate", zap.Error(err))
	}

	for _, line := range RewardLines(rec) {
		if err := p.store.ApplyReward(ctx, line.UserID, line.Reward); err != nil {
			logger.Error("Failed to apply reward", zap.Uint("userID", line.UserID), zap.Int("xp", line.Reward.XP), zap.Error(err))
		}
	}

	if p.ledger != nil {
		report, err := p.ledger.Settle(ctx, rec.ID, rec.Winner.Side)
		if err != nil {
			logger.Error("Failed to settle bets", zap.Error(err))
		}
		out.Bets = report
	}

	if p.archiver != nil {
		if key, err := p.archiver.Archive(ctx, rec); err != nil {
			logger.Error("Failed to archive transcript", zap.Error(err))
		} else {
			logger.Info("Transcript archived", zap.String("key", key))
		}
	}
	if p.announcer != nil {
		if err := p.announcer.Announce(ctx, rec); err != nil {
			logger.Error("Failed to announce result", zap.Error(err))
		}
	}

	if p.registry != nil {
		p.registry.Remove(rec.ID)
	}

	out.Record = rec
	out.Ended = match.EndedPayload(rec)
	return out
}

func (p *Pipeline) rank(ctx context.Context, c *match.Closing, logger *zap.Logger) (match.Result, bool) {
	if c.Type == models.TypeBattleRoyale {
		return RankCompetitors(c.Entries), true
	}

	if p.judge != nil {
		v, err := p.judge.Rank(ctx, c.Topic.Title, c.ProText, c.ConText)
		if err == nil {
			v = judge.Normalize(v)
			return match.Result{Winner: v.Winner, ProScore: v.ProScore, ConScore: v.ConScore, Reasoning: v.Reasoning}, false
		}
		logger.Warn("Judge unavailable, using fallback scoring", zap.Error(err))
	}

	v := Fallback(c.ProText, c.ConText)
	return match.Result{Winner: v.Winner, ProScore: v.ProScore, ConScore: v.ConScore, Reasoning: v.Reasoning}, true
}

// Line は参加者1人分の報酬
type Line struct {
	UserID uint
	Reward store.Reward
}

// RewardLines は記録済みの結果から参加者ごとの報酬を求める
func RewardLines(rec models.Debate) []Line {
	players := make([]models.TeamMember, 0, len(rec.ProTeam)+len(rec.ConTeam)+len(rec.Competitors))
	players = append(players, rec.ProTeam...)
	players = append(players, rec.ConTeam...)
	players = append(players, rec.Competitors...)

	winners := make(map[uint]bool)
	for _, id := range rec.Winner.Team {
		winners[id] = true
	}

	lines := make([]Line, 0, len(players))
	for _, p := range players {
		var r store.Reward
		switch {
		case rec.Winner.Side == models.SideDraw || rec.Winner.Side == "":
			r = store.Reward{XP: match.XPDraw, Draws: 1, TotalDebates: 1}
		case winners[p.UserID]:
			r = store.Reward{XP: match.XPWin, Reputation: match.ReputationWin, Wins: 1, TotalDebates: 1, StreakIncrement: true}
		default:
			r = store.Reward{XP: match.XPLoss, Losses: 1, TotalDebates: 1, StreakReset: true}
		}
		lines = append(lines, Line{UserID: p.UserID, Reward: r})
	}
	return lines
}

// ReconcileBets は結果の記録後に精算されずに残った賭けを、保存済みの勝者で精算する
func (p *Pipeline) ReconcileBets(ctx context.Context) (int, error) {
	if p.ledger == nil {
		return 0, nil
	}
	debates, err := p.store.FinishedWithPendingBets(ctx)
	if err != nil {
		return 0, fmt.Errorf("find debates with pending bets: %w", err)
	}

	settled := 0
	for _, d := range debates {
		report, err := p.ledger.Settle(ctx, d.ID, d.Winner.Side)
		if err != nil {
			p.logger.Error("Failed to reconcile bets", zap.String("matchID", d.ID), zap.Error(err))
			continue
		}
		settled += report.Won + report.Lost + report.Refunded
	}
	if settled > 0 {
		p.logger.Info("Reconciled pending bets", zap.Int("debates", len(debates)), zap.Int("bets", settled))
	}
	return settled, nil
}
