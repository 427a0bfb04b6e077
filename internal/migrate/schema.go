// 包 migrate：启动时建表，保证服务可独立运行
package migrate

import (
	"context"
	"database/sql"

	"stock-availability/internal/logger"
)

// 背景：目录、库存、网点表由外部系统维护，这里只在缺失时创建；索引表与运行记录表归本服务所有
// 约束：全部使用 IF NOT EXISTS，重复执行无副作用
var stmts = []string{
	`CREATE TABLE IF NOT EXISTS _sa_sources (
        source_code TEXT PRIMARY KEY,
        name TEXT NOT NULL DEFAULT '',
        phone TEXT NOT NULL DEFAULT '',
        latitude DOUBLE PRECISION NULL,
        longitude DOUBLE PRECISION NULL,
        delivery_range_km DOUBLE PRECISION NULL,
        enabled BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS _sa_source_hubs (
        source_code TEXT NOT NULL,
        hub_code TEXT NOT NULL,
        position INT NOT NULL DEFAULT 0,
        PRIMARY KEY (source_code, hub_code)
    )`,
	`CREATE TABLE IF NOT EXISTS _sa_products (
        sku TEXT PRIMARY KEY,
        type_code TEXT NOT NULL DEFAULT 'simple',
        global_shipping BOOLEAN NOT NULL DEFAULT FALSE,
        enabled BOOLEAN NOT NULL DEFAULT TRUE
    )`,
	`CREATE TABLE IF NOT EXISTS _sa_product_children (
        parent_sku TEXT NOT NULL,
        child_sku TEXT NOT NULL,
        position INT NOT NULL DEFAULT 0,
        PRIMARY KEY (parent_sku, child_sku)
    )`,
	`CREATE TABLE IF NOT EXISTS _sa_source_items (
        sku TEXT NOT NULL,
        source_code TEXT NOT NULL,
        in_stock BOOLEAN NOT NULL DEFAULT FALSE,
        PRIMARY KEY (sku, source_code)
    )`,
	`CREATE TABLE IF NOT EXISTS _sa_product_deliverability (
        sku TEXT NOT NULL,
        source_code TEXT NOT NULL,
        deliverable BOOLEAN NOT NULL DEFAULT TRUE,
        last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        tombstoned BOOLEAN NOT NULL DEFAULT FALSE
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_deliverability_sku_source ON _sa_product_deliverability(sku, source_code)`,
	`CREATE INDEX IF NOT EXISTS idx_deliverability_tombstoned ON _sa_product_deliverability(sku) WHERE tombstoned`,
	`CREATE TABLE IF NOT EXISTS _sa_precompute_runs (
        run_id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        phase TEXT NOT NULL,
        cursor_sku TEXT NOT NULL DEFAULT '',
        batches_done INT NOT NULL DEFAULT 0,
        products_seen INT NOT NULL DEFAULT 0,
        rows_written BIGINT NOT NULL DEFAULT 0,
        failures INT NOT NULL DEFAULT 0,
        started_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NULL,
        last_error TEXT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_precompute_runs_status ON _sa_precompute_runs(status, started_at DESC)`,
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
