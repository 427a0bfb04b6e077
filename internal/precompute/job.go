// 包 precompute：可配送索引的全量刷新任务（标记 → 分批重算写入 → 清扫），支持断点续跑与运行锁
package precompute

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"stock-availability/internal/catalog"
	"stock-availability/internal/deliverability"
	"stock-availability/internal/inventory"
	"stock-availability/internal/logger"
	"stock-availability/internal/metrics"
	"stock-availability/internal/sources"
	"stock-availability/internal/store"

	"github.com/google/uuid"
)

const DefaultBatchSize = 500

// Config：任务参数；零值字段取默认
type Config struct {
	BatchSize int
	Now       func() time.Time
	NewRunID  func() string
}

// Stats：一次运行的统计，续跑时累计此前批次
type Stats struct {
	RunID        string
	ProductsSeen int
	RowsWritten  int64
	RowsSwept    int64
	Batches      int
	FailedUnits  int
	Resumed      bool
	Elapsed      time.Duration
}

func (s Stats) ElapsedSeconds() float64 { return s.Elapsed.Seconds() }

// Job：刷新任务，同一实例同一时刻只允许一次运行
type Job struct {
	catalog    catalog.Reader
	inventory  inventory.Loader
	sources    sources.Directory
	index      store.Index
	checkpoint Checkpoint
	lock       Locker
	cfg        Config
	running    atomic.Bool
}

// NewJob：cp 为 nil 时使用进程内检查点；lk 为 nil 时不加分布式锁
func NewJob(cat catalog.Reader, inv inventory.Loader, dir sources.Directory, idx store.Index, cp Checkpoint, lk Locker, cfg Config) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	if cp == nil {
		cp = NewMemoryCheckpoint()
	}
	if lk == nil {
		lk = NopLock{}
	}
	return &Job{catalog: cat, inventory: inv, sources: dir, index: idx, checkpoint: cp, lock: lk, cfg: cfg}
}

// Run：执行一次完整刷新
// 背景：先把现有行全部标记删除，旧值在刷新期间仍可被在线查询读到；重算确认的行被取消标记，最后清扫仍带标记的行
// 约束：单个（批次, 网点）单元失败只记录并跳过；标记、分页、清扫失败视为整体失败；
// ctx 取消时在单元边界停止并保留检查点，下次运行从游标处续跑且不再重复标记阶段
func (j *Job) Run(ctx context.Context) (Stats, error) {
	if !j.running.CompareAndSwap(false, true) {
		return Stats{}, ErrLocked
	}
	defer j.running.Store(false)

	release, err := j.lock.Acquire(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer release()

	l := logger.L()
	t0 := j.cfg.Now()
	st, err := j.checkpoint.Unfinished(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load checkpoint: %w", err)
	}
	stats := Stats{}
	if st != nil {
		stats.Resumed = true
		l.Info("precompute_resume", "run_id", st.RunID, "phase", st.Phase, "cursor", st.CursorSKU, "batches_done", st.BatchesDone)
	} else {
		st = &RunState{RunID: j.cfg.NewRunID(), Status: StatusRunning, Phase: PhaseTombstone, StartedAt: t0}
		j.save(ctx, st)
		l.Info("precompute_start", "run_id", st.RunID, "batch_size", j.cfg.BatchSize)
	}
	stats.RunID = st.RunID

	finish := func(err error) (Stats, error) {
		stats.ProductsSeen = st.ProductsSeen
		stats.RowsWritten = st.RowsWritten
		stats.Batches = st.BatchesDone
		stats.FailedUnits = st.Failures
		stats.Elapsed = j.cfg.Now().Sub(t0)
		switch {
		case err == nil:
			st.Status = StatusDone
			metrics.PrecomputeRunsTotal.WithLabelValues(StatusDone).Inc()
			metrics.PrecomputeDurationSeconds.Observe(stats.Elapsed.Seconds())
			metrics.PrecomputeLastSuccessUnix.Set(float64(j.cfg.Now().Unix()))
			l.Info("precompute_done", "run_id", st.RunID, "products", stats.ProductsSeen, "rows_written", stats.RowsWritten,
				"rows_swept", stats.RowsSwept, "failed_units", stats.FailedUnits, "elapsed", stats.Elapsed)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// 保持 running，留给下一次续跑
			metrics.PrecomputeRunsTotal.WithLabelValues("cancelled").Inc()
			l.Warn("precompute_cancelled", "run_id", st.RunID, "phase", st.Phase, "cursor", st.CursorSKU)
		default:
			st.Status = StatusFailed
			st.LastError = err.Error()
			metrics.PrecomputeRunsTotal.WithLabelValues(StatusFailed).Inc()
			l.Error("precompute_failed", "run_id", st.RunID, "phase", st.Phase, "err", err)
		}
		// 取消后的 ctx 不能再用于写检查点
		j.save(context.WithoutCancel(ctx), st)
		return stats, err
	}

	if st.Phase == PhaseTombstone {
		n, err := j.index.TombstoneAll(ctx)
		if err != nil {
			return finish(fmt.Errorf("tombstone: %w", err))
		}
		l.Debug("precompute_tombstoned", "run_id", st.RunID, "rows", n)
		st.Phase = PhaseUpsert
		j.save(ctx, st)
	}

	if st.Phase == PhaseUpsert {
		srcs, err := j.sources.All(ctx)
		if err != nil {
			return finish(fmt.Errorf("load sources: %w", err))
		}
		if len(srcs) == 0 {
			l.Warn("precompute_no_sources", "run_id", st.RunID)
		}
		for {
			if err := ctx.Err(); err != nil {
				return finish(err)
			}
			page, err := j.catalog.SkuPage(ctx, st.CursorSKU, j.cfg.BatchSize)
			if err != nil {
				return finish(fmt.Errorf("page after %q: %w", st.CursorSKU, err))
			}
			if len(page) == 0 {
				break
			}
			written, failures, err := j.processBatch(ctx, st.RunID, st.BatchesDone, page, srcs)
			if err != nil {
				// 批次被中途取消：游标不前移，续跑时整批重算（UPSERT 幂等）
				return finish(err)
			}
			st.RowsWritten += written
			st.Failures += failures
			st.ProductsSeen += len(page)
			st.BatchesDone++
			st.CursorSKU = page[len(page)-1]
			j.save(ctx, st)
			if len(page) < j.cfg.BatchSize {
				break
			}
		}
		st.Phase = PhaseSweep
		j.save(ctx, st)
	}

	swept, err := j.index.SweepTombstoned(ctx)
	if err != nil {
		return finish(fmt.Errorf("sweep: %w", err))
	}
	stats.RowsSwept = swept
	metrics.PrecomputeRowsSweptTotal.Add(float64(swept))
	return finish(nil)
}

// processBatch：目录事实 → 子商品扩展 → 库存批量加载 → 逐网点遍历写入
// 约束：只有 ctx 取消会返回错误，其余错误按单元计入 failures
func (j *Job) processBatch(ctx context.Context, runID string, batch int, skus []string, srcs []sources.Source) (int64, int, error) {
	l := logger.L()
	facts, err := j.catalog.LoadBatch(ctx, skus)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		l.Error("precompute_batch_error", "run_id", runID, "batch", batch, "stage", "catalog", "err", err)
		metrics.PrecomputeUnitFailuresTotal.Inc()
		return 0, 1, nil
	}
	want := append(append([]string{}, skus...), facts.ChildSKUs(skus)...)
	stock, err := j.inventory.LoadBulk(ctx, want)
	if err != nil {
		if ctx.Err() != nil {
			return 0, 0, ctx.Err()
		}
		l.Error("precompute_batch_error", "run_id", runID, "batch", batch, "stage", "inventory", "err", err)
		metrics.PrecomputeUnitFailuresTotal.Inc()
		return 0, 1, nil
	}

	now := j.cfg.Now()
	var written int64
	failures := 0
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return written, failures, err
		}
		n, err := j.processUnit(ctx, skus, facts, src, stock, now)
		written += n
		if err != nil {
			if ctx.Err() != nil {
				return written, failures, ctx.Err()
			}
			failures++
			metrics.PrecomputeUnitFailuresTotal.Inc()
			l.Error("precompute_batch_error", "run_id", runID, "batch", batch, "source", src.Code, "err", err)
		}
	}
	metrics.PrecomputeRowsWrittenTotal.Add(float64(written))
	l.Debug("precompute_batch_done", "run_id", runID, "batch", batch, "skus", len(skus), "rows", written, "failures", failures)
	return written, failures, nil
}

func (j *Job) processUnit(ctx context.Context, skus []string, facts catalog.Facts, src sources.Source, stock inventory.Stock, now time.Time) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	ok := deliverability.DeliverableSKUs(skus, facts, src, stock)
	if len(ok) == 0 {
		return 0, nil
	}
	rows := make([]store.Row, 0, len(ok))
	for _, sku := range ok {
		rows = append(rows, store.Row{SKU: sku, SourceCode: src.Code, Deliverable: true, LastUpdated: now})
	}
	return j.index.Upsert(ctx, rows)
}

// save：检查点写入失败不终止任务，仅影响续跑位置
func (j *Job) save(ctx context.Context, st *RunState) {
	st.UpdatedAt = j.cfg.Now()
	if err := j.checkpoint.Save(ctx, *st); err != nil {
		logger.L().Warn("precompute_checkpoint_error", "run_id", st.RunID, "phase", st.Phase, "err", err)
	}
}
