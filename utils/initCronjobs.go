package utils

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs は定期実行する処理
type Jobs struct {
	// SweepTurns は期限切れの手番を飛ばす。毎秒呼ばれる
	SweepTurns func(now time.Time)
	// ReconcileBets は未精算の賭けを精算する。毎日呼ばれる
	ReconcileBets func(ctx context.Context) (int, error)
}

// StartCronJobs はスケジューラを起動する。戻り値の Stop で止める
// 前回の実行が終わっていなければ次の実行は飛ばす
func StartCronJobs(ctx context.Context, jobs Jobs, logger *zap.Logger) *cron.Cron {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if jobs.SweepTurns != nil {
		if _, err := c.AddFunc("@every 1s", func() {
			jobs.SweepTurns(time.Now())
		}); err != nil {
			logger.Error("手番の期限チェックの登録に失敗しました", zap.Error(err))
		}
	}

	if jobs.ReconcileBets != nil {
		if _, err := c.AddFunc("@daily", func() {
			logger.Info("未精算の賭けを精算する処理を開始")
			n, err := jobs.ReconcileBets(ctx)
			if err != nil {
				logger.Error("未精算の賭けの精算に失敗しました", zap.Error(err))
				return
			}
			logger.Info("未精算の賭けの精算完了", zap.Int("bets_settled", n))
		}); err != nil {
			logger.Error("賭けの精算ジョブの登録に失敗しました", zap.Error(err))
		}
	}

	c.Start()
	return c
}
