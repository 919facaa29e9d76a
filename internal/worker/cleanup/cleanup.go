// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れのセッションは検証時にも無効として扱われるため、
// このジョブはストレージを掃除するだけで正しさには影響しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は定期実行の間隔のデフォルト値。
const DefaultInterval = time.Hour

// Sweeper は期限切れセッションを削除するインターフェース。
// session.Managerが満たす。
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionSweepJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合でもエラーにならない。
type SessionSweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
func NewSessionSweepJob(sweeper Sweeper, logger *slog.Logger) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{
		sweeper: sweeper,
		logger:  logger,
		now:     time.Now,
	}
}

// Run は期限切れセッションを1回削除し、削除件数を返す。
func (j *SessionSweepJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	deleted, err := j.sweeper.SweepExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("session sweep failed",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}

	j.logger.Info("session sweep completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回実行し、その後intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。個々の失敗はログに記録して継続する。
func (j *SessionSweepJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	_, _ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
