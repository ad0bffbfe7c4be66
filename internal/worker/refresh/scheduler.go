// Package refresh は追跡中プロフィールの定期再取り込みを提供する。
// 取り込みのたびに各プラットフォームの統計スナップショットが履歴へ1件ずつ追記される。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/profiletracker/internal/ingest"
	"github.com/hitoshi/profiletracker/internal/model"
)

// DefaultMaxConcurrency は同時に取り込むプロフィール数のデフォルト値。
const DefaultMaxConcurrency = 4

// ProfileLister は再取り込み対象のプロフィール一覧を返すインターフェース。
type ProfileLister interface {
	ListAll(ctx context.Context) ([]*model.UserProfile, error)
}

// ProfileRefresher は1プロフィール分の取り込みを行うインターフェース。
// ingest.Tracker が実装する。
type ProfileRefresher interface {
	Refresh(ctx context.Context, profile *model.UserProfile) (*ingest.Result, error)
}

// Config はSchedulerの設定。
type Config struct {
	// MaxConcurrency は同時に取り込むプロフィール数。0以下の場合はDefaultMaxConcurrency。
	MaxConcurrency int
	// ProfilesPerMinute は1分あたりに開始する取り込み数の上限。0以下の場合は制限しない。
	ProfilesPerMinute int
}

// CycleSummary は1サイクル分の集計。
// Skipped はバックオフ中のため取り込まなかったプロフィール数。
type CycleSummary struct {
	Profiles int
	Success  int
	Partial  int
	Failed   int
	Skipped  int
}

// Scheduler は全プロフィールの再取り込みを定期実行する。
// semaphoreパターンで同時に取り込むプロフィール数を制限し、
// 連続して失敗したプロフィールは指数バックオフで間隔を空ける。
type Scheduler struct {
	profiles       ProfileLister
	refresher      ProfileRefresher
	logger         *slog.Logger
	maxConcurrency int
	pacer          *rate.Limiter
	backoff        *backoffTracker
	now            func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(profiles ProfileLister, refresher ProfileRefresher, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	s := &Scheduler{
		profiles:       profiles,
		refresher:      refresher,
		logger:         logger,
		maxConcurrency: cfg.MaxConcurrency,
		backoff:        newBackoffTracker(),
		now:            time.Now,
	}
	if cfg.ProfilesPerMinute > 0 {
		s.pacer = rate.NewLimiter(rate.Limit(float64(cfg.ProfilesPerMinute)/60.0), 1)
	}
	return s
}

// Start はintervalごとに再取り込みを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("再取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全プロフィールを1回ずつ取り込む。
// 個別プロフィールの失敗はログに記録し、サイクル全体のエラーにはしない。
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleSummary, error) {
	start := time.Now()

	profiles, err := s.profiles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}

	summary := &CycleSummary{Profiles: len(profiles)}
	if len(profiles) == 0 {
		s.logger.Info("再取り込み対象のプロフィールはありません")
		return summary, nil
	}

	s.logger.Info("再取り込みサイクルを開始します",
		slog.Int("profile_count", len(profiles)),
	)

	var success, partial, failed atomic.Int32

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var stopErr error

loop:
	for _, profile := range profiles {
		if !s.backoff.ready(profile.ID, s.now()) {
			summary.Skipped++
			continue
		}
		if s.pacer != nil {
			// 期限内に待ち切れない場合もWaitはエラーを返す
			if err := s.pacer.Wait(ctx); err != nil {
				stopErr = err
				break loop
			}
		}
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)

		go func(p *model.UserProfile) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := s.refresher.Refresh(ctx, p)
			switch {
			case err != nil:
				failed.Add(1)
				delay := s.backoff.recordFailure(p.ID, s.now())
				s.logger.Error("プロフィールの再取り込みに失敗しました",
					slog.String("user_id", p.ID),
					slog.String("error", err.Error()),
					slog.Duration("backoff", delay),
				)
			case !anySucceeded(res):
				partial.Add(1)
				delay := s.backoff.recordFailure(p.ID, s.now())
				s.logger.Warn("全プラットフォームの取り込みに失敗しました",
					slog.String("user_id", p.ID),
					slog.Int("consecutive_failures", s.backoff.failures(p.ID)),
					slog.Duration("backoff", delay),
				)
			case res.Status == model.IngestStatusSuccess:
				success.Add(1)
				s.backoff.recordSuccess(p.ID)
			default:
				partial.Add(1)
				s.backoff.recordSuccess(p.ID)
			}
		}(profile)
	}

	wg.Wait()

	summary.Success = int(success.Load())
	summary.Partial = int(partial.Load())
	summary.Failed = int(failed.Load())

	s.logger.Info("再取り込みサイクルが完了しました",
		slog.Int("profile_count", summary.Profiles),
		slog.Int("success", summary.Success),
		slog.Int("partial", summary.Partial),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	if stopErr != nil {
		return summary, stopErr
	}
	return summary, ctx.Err()
}

// anySucceeded は1つ以上のプラットフォームが保存まで完了した場合にtrueを返す。
// 取り込み対象がない結果は成功として扱う。
func anySucceeded(res *ingest.Result) bool {
	if len(res.Platforms) == 0 {
		return true
	}
	for _, outcome := range res.Platforms {
		if outcome == ingest.OutcomeOK {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ ProfileRefresher = (*ingest.Tracker)(nil)
