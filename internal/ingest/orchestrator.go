// Package ingest は統計取り込みのユースケースを提供する。
// 複数アダプタの並列実行と結果分類を行うOrchestrator、プロフィールの登録・更新を行うTracker、
// 最新統計を集約するStatsReaderを含む。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/profiletracker/internal/identity"
	"github.com/hitoshi/profiletracker/internal/metrics"
	"github.com/hitoshi/profiletracker/internal/model"
	"github.com/hitoshi/profiletracker/internal/platform"
	"github.com/hitoshi/profiletracker/internal/repository"
)

const (
	// DefaultAdapterTimeout はアダプタ1件あたりの期限。
	DefaultAdapterTimeout = 10 * time.Second
	// DefaultBatchTimeout は取り込みバッチ全体の期限。
	DefaultBatchTimeout = 30 * time.Second
)

// プラットフォームごとの結果。失敗時はplatform.ErrorKindの文字列が入る。
const (
	OutcomeOK               = "ok"
	OutcomeNoAdapter        = "no_adapter"
	OutcomePersistenceError = "persistence_error"
)

// ErrPersistence は取得済みの統計を保存できなかったことを表す。
// アダプタの失敗と異なり、取り込み全体のエラーとして呼び出し元へ返す。
var ErrPersistence = errors.New("failed to persist stats")

// Ingester は取り込みを実行するインターフェース。
type Ingester interface {
	Ingest(ctx context.Context, userID string, targets []model.ProfileIdentity) (*Result, error)
}

// Config はOrchestratorの期限設定。0以下の値はデフォルト値になる。
type Config struct {
	AdapterTimeout time.Duration
	BatchTimeout   time.Duration
}

// Result は取り込みバッチの結果。
type Result struct {
	Status    model.IngestStatus
	Platforms map[model.Platform]string
	Rejected  []identity.Rejection
}

// markRejected はハンドルを導出できなかったプラットフォームを結果に加え、partialに落とす。
func (r *Result) markRejected(rejected []identity.Rejection) {
	if len(rejected) == 0 {
		return
	}
	r.Rejected = append(r.Rejected, rejected...)
	for _, rej := range rejected {
		r.Platforms[rej.Platform] = string(platform.KindInvalidIdentity)
	}
	r.Status = model.IngestStatusPartial
}

// taskResult は1タスク分の結果。indexはtargets内の位置（タスクごとの結果スロット）。
type taskResult struct {
	index   int
	outcome string
	err     error
}

// Orchestrator はプラットフォームアダプタを並列に実行し、成功した統計を都度保存する。
// アダプタごとの期限はバッチ全体の期限の内側に入れ子になる。
// バッチ期限に達した時点で未完了のタスクは待たずに打ち切り、結果をpartialとする。
type Orchestrator struct {
	adapters       map[model.Platform]platform.Adapter
	statsRepo      repository.StatsRepository
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	adapterTimeout time.Duration
	batchTimeout   time.Duration
}

// NewOrchestrator はOrchestratorを生成する。mcがnilの場合はメトリクスを記録しない。
func NewOrchestrator(
	adapters []platform.Adapter,
	statsRepo repository.StatsRepository,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}

	byPlatform := make(map[model.Platform]platform.Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}

	return &Orchestrator{
		adapters:       byPlatform,
		statsRepo:      statsRepo,
		metrics:        mc,
		logger:         logger,
		adapterTimeout: cfg.AdapterTimeout,
		batchTimeout:   cfg.BatchTimeout,
	}
}

// Ingest はtargetsの各プラットフォームから統計を並列に取得して保存する。
// 全タスクが取得と保存を完了した場合のみsuccessとなり、それ以外はpartialとなる。
// アダプタの失敗やタイムアウトはエラーにならない。保存の失敗のみErrPersistenceを返す。
func (o *Orchestrator) Ingest(ctx context.Context, userID string, targets []model.ProfileIdentity) (*Result, error) {
	start := time.Now()

	batchCtx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()

	results := make(chan taskResult, len(targets))
	for i, target := range targets {
		adapter, ok := o.adapters[target.Platform]
		if !ok {
			results <- taskResult{index: i, outcome: OutcomeNoAdapter}
			continue
		}
		go o.runTask(batchCtx, i, adapter, userID, target.Handle, results)
	}

	slots := make([]string, len(targets))
	var persistErr error
	collect := func(r taskResult) {
		slots[r.index] = r.outcome
		if r.err != nil && persistErr == nil {
			persistErr = r.err
		}
	}

	pending := len(targets)
wait:
	for pending > 0 {
		select {
		case r := <-results:
			collect(r)
			pending--
		case <-batchCtx.Done():
			// 期限と同時に届いていた結果は取りこぼさない
			for pending > 0 {
				select {
				case r := <-results:
					collect(r)
					pending--
				default:
					break wait
				}
			}
		}
	}

	res := &Result{
		Status:    model.IngestStatusSuccess,
		Platforms: make(map[model.Platform]string, len(targets)),
	}
	for i, target := range targets {
		outcome := slots[i]
		if outcome == "" {
			outcome = string(platform.KindTimeout)
			o.logger.Warn("バッチの期限までに取得が完了しませんでした",
				slog.String("user_id", userID),
				slog.String("platform", string(target.Platform)),
				slog.Duration("batch_timeout", o.batchTimeout),
			)
		}
		res.Platforms[target.Platform] = outcome
		if outcome != OutcomeOK {
			res.Status = model.IngestStatusPartial
		}
	}

	duration := time.Since(start)
	if persistErr != nil {
		o.logger.Error("統計の保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", persistErr.Error()),
		)
		return nil, persistErr
	}

	o.metrics.RecordIngestOutcome(string(res.Status), duration)
	o.logger.Info("統計の取り込みが完了しました",
		slog.String("user_id", userID),
		slog.String("status", string(res.Status)),
		slog.Int("target_count", len(targets)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return res, nil
}

// runTask は1プラットフォーム分の取得と保存を行い、結果をoutへ送る。
// outはtargets数のバッファを持つため、打ち切られたタスクの送信もブロックしない。
func (o *Orchestrator) runTask(
	batchCtx context.Context,
	index int,
	adapter platform.Adapter,
	userID, handle string,
	out chan<- taskResult,
) {
	p := adapter.Platform()
	label := string(p)

	fetchCtx, cancel := context.WithTimeout(batchCtx, o.adapterTimeout)
	defer cancel()

	start := time.Now()
	stats, err := adapter.Fetch(fetchCtx, userID, handle)
	o.metrics.RecordFetchLatency(label, time.Since(start))

	if err == nil && stats == nil {
		err = platform.NewUpstreamError(p, "fetch", 0, errors.New("adapter returned no stats"))
	}
	if err == nil {
		stats.UserID = userID
		// 上流の値が不変条件を満たさない場合は保存せず、上流エラーとして扱う
		if verr := stats.Validate(); verr != nil {
			err = platform.NewUpstreamError(p, "validate", 0, verr)
		}
	}
	if err != nil {
		kind := failureKind(fetchCtx, err)
		o.metrics.RecordFetchFailure(label, string(kind))
		o.logger.Warn("統計の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("platform", label),
			slog.String("handle", handle),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		out <- taskResult{index: index, outcome: string(kind)}
		return
	}
	o.metrics.RecordFetchSuccess(label)

	// バッチから打ち切られた後に届いた結果は保存しない
	if batchCtx.Err() != nil {
		o.logger.Warn("バッチの期限後に取得が完了したため保存しません",
			slog.String("user_id", userID),
			slog.String("platform", label),
		)
		out <- taskResult{index: index, outcome: string(platform.KindTimeout)}
		return
	}

	// 開始した書き込みはバッチの期限に関係なく完了させる
	if err := o.statsRepo.Append(context.WithoutCancel(batchCtx), stats); err != nil {
		out <- taskResult{
			index:   index,
			outcome: OutcomePersistenceError,
			err:     fmt.Errorf("%w (%s): %w", ErrPersistence, p, err),
		}
		return
	}
	o.metrics.RecordStatsAppended(label)

	out <- taskResult{index: index, outcome: OutcomeOK}
}

// failureKind はアダプタのエラーを分類する。FetchError以外は期限切れならTimeout、それ以外はUpstreamとする。
func failureKind(ctx context.Context, err error) platform.ErrorKind {
	if kind := platform.KindOf(err); kind != "" {
		return kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return platform.KindTimeout
	}
	return platform.KindUpstream
}

// compile-time interface check
var _ Ingester = (*Orchestrator)(nil)
