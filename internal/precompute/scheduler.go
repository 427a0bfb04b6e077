package precompute

import (
	"context"
	"errors"
	"time"

	"stock-availability/internal/logger"
)

// nextDailyAt：now 之后最近一次 loc 时区的 hour 整点
func nextDailyAt(now time.Time, loc *time.Location, hour int) time.Time {
	now = now.In(loc)
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// StartDaily：在 loc 时区每天 hour 点触发一次刷新，运行于后台协程
// 背景：外部数据（目录、库存）多在夜间批量同步，索引随后刷新
// 约束：单次失败只记录日志，不影响后续调度；ctx 结束即停止；上一次仍在运行时本次跳过
func StartDaily(ctx context.Context, job *Job, loc *time.Location, hour int) {
	if loc == nil {
		loc = time.UTC
	}
	if hour < 0 || hour > 23 {
		hour = 2
	}
	l := logger.L()
	go func() {
		for {
			next := nextDailyAt(time.Now(), loc, hour)
			l.Info("precompute_scheduled", "next", next)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			stats, err := job.Run(ctx)
			switch {
			case errors.Is(err, ErrLocked):
				l.Warn("precompute_skipped_locked")
			case err != nil:
				l.Error("precompute_scheduled_error", "run_id", stats.RunID, "err", err)
			}
		}
	}()
}
