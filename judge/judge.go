package judge

import (
	"context"
	"errors"
	"math"
	"time"

	"debateserver/models"

	"go.uber.org/zap"
)

var (
	ErrRateLimited = errors.New("judge: rate limited")
	ErrUnavailable = errors.New("judge: unavailable")
)

// DefaultReasoning は判定理由が返ってこなかったときの文言
const DefaultReasoning = "Both sides presented their arguments."

// Verdict は審査結果。スコアは0から100
type Verdict struct {
	Winner    string `json:"winner"`
	ProScore  int    `json:"proScore"`
	ConScore  int    `json:"conScore"`
	Reasoning string `json:"reasoning"`
}

// Judge は両陣営の主張全文を評価する外部サービス
type Judge interface {
	Rank(ctx context.Context, topic, proText, conText string) (Verdict, error)
}

// Moderation はチャットの審査結果
type Moderation struct {
	Flagged bool    `json:"flagged"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}

// Moderator はチャット内容を審査する外部サービス
type Moderator interface {
	Check(ctx context.Context, text string) (Moderation, error)
}

// Policy は審査呼び出しの再試行方針
type Policy struct {
	MaxAttempts    int
	RateLimitDelay time.Duration
}

// DefaultPolicy は2回まで試行し、レート制限時のみ35秒待つ
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 2, RateLimitDelay: 35 * time.Second}
}

// Ranker は Policy に従って Judge を呼び出す
type Ranker struct {
	judge  Judge
	policy Policy
	logger *zap.Logger
}

func NewRanker(j Judge, policy Policy, logger *zap.Logger) *Ranker {
	return &Ranker{judge: j, policy: policy, logger: logger}
}

// Rank は試行回数を使い切るまで呼び出し、最後のエラーを返す
func (r *Ranker) Rank(ctx context.Context, topic, proText, conText string) (Verdict, error) {
	if r == nil || r.judge == nil {
		return Verdict{}, ErrUnavailable
	}

	attempts := r.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		verdict, err := r.judge.Rank(ctx, topic, proText, conText)
		if err == nil {
			return Normalize(verdict), nil
		}
		lastErr = err
		r.logger.Warn("Judge attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt < attempts && errors.Is(err, ErrRateLimited) && r.policy.RateLimitDelay > 0 {
			timer := time.NewTimer(r.policy.RateLimitDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Verdict{}, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return Verdict{}, lastErr
}

// Normalize は判定結果を正規化する
func Normalize(v Verdict) Verdict {
	switch v.Winner {
	case models.SidePro, models.SideCon, models.SideDraw:
	default:
		v.Winner = models.SideDraw
	}
	v.ProScore = clamp(v.ProScore)
	v.ConScore = clamp(v.ConScore)
	if v.Reasoning == "" {
		v.Reasoning = DefaultReasoning
	}
	return v
}

func clamp(score int) int {
	return int(math.Max(0, math.Min(100, float64(score))))
}
