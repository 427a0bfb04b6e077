package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stock-availability/internal/catalog"
	"stock-availability/internal/inventory"
	"stock-availability/internal/logger"
	"stock-availability/internal/migrate"
	"stock-availability/internal/precompute"
	"stock-availability/internal/sources"
	"stock-availability/internal/store"
	"stock-availability/internal/utils"

	"github.com/joho/godotenv"
)

type output struct {
	RunID          string  `json:"runId"`
	ProductsSeen   int     `json:"productsSeen"`
	RowsWritten    int64   `json:"rowsWritten"`
	RowsSwept      int64   `json:"rowsSwept"`
	FailedUnits    int     `json:"failedUnits"`
	Resumed        bool    `json:"resumed"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	IndexRows      int64   `json:"indexRows"`
}

// 文档注释：手动执行一次可配送索引刷新，或查看最近运行记录
// 背景：供运维在数据同步后立即刷新，或在定时任务失败后续跑；与服务进程共用 Redis 运行锁
// 约束：参数 status 只输出 _sa_precompute_runs 最近 10 条；整体失败时退出码为 1，被中断时保留检查点
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	cp := precompute.NewPostgresCheckpoint(db)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if len(os.Args) > 1 && os.Args[1] == "status" {
		runs, err := cp.Recent(ctx, 10)
		if err != nil {
			l.Error("runs_query_error", "err", err)
			os.Exit(1)
		}
		_ = enc.Encode(runs)
		return
	}

	rangeKm := utils.EnvFloat("DEFAULT_DELIVERY_RANGE_KM", sources.DefaultRangeKm)
	var dir sources.Directory = sources.NewPostgres(db, rangeKm)
	if p := os.Getenv("SOURCES_FILE"); p != "" {
		fdir, err := sources.LoadFile(p, rangeKm)
		if err != nil {
			l.Error("sources_file_error", "path", p, "err", err)
			os.Exit(1)
		}
		dir = fdir
	}
	var lock precompute.Locker
	if rc := utils.OpenRedisFromEnv(); rc != nil {
		defer rc.Close()
		lock = precompute.NewRedisLock(rc, "", time.Duration(utils.EnvInt("PRECOMPUTE_LOCK_TTL_S", 3600))*time.Second)
	}
	idx := store.AttachDB(db)
	job := precompute.NewJob(catalog.NewPostgres(db), inventory.NewPostgres(db), dir, idx, cp, lock,
		precompute.Config{BatchSize: utils.EnvInt("PRECOMPUTE_BATCH_SIZE", precompute.DefaultBatchSize)})

	stats, err := job.Run(ctx)
	if err != nil {
		l.Error("precompute_run_error", "run_id", stats.RunID, "err", err)
		os.Exit(1)
	}
	out := output{
		RunID:          stats.RunID,
		ProductsSeen:   stats.ProductsSeen,
		RowsWritten:    stats.RowsWritten,
		RowsSwept:      stats.RowsSwept,
		FailedUnits:    stats.FailedUnits,
		Resumed:        stats.Resumed,
		ElapsedSeconds: stats.ElapsedSeconds(),
	}
	if c, err := idx.Counts(ctx); err == nil {
		out.IndexRows = c.Total
	}
	_ = enc.Encode(out)
}
