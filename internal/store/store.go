// 包 store: 可配送索引的持久化访问层（PostgreSQL），包含标记删除、批量 UPSERT、清扫与单点查询
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"stock-availability/internal/logger"

	"github.com/lib/pq"
)

// Row: 索引行，(SKU, SourceCode) 唯一
type Row struct {
	SKU         string
	SourceCode  string
	Deliverable bool
	LastUpdated time.Time
	Tombstoned  bool
}

// Index: 可配送索引契约
// 约束：Upsert 写入的行一律 tombstoned=false；Lookup 不区分是否已标记删除（刷新期间旧值作为回退视图）
type Index interface {
	TombstoneAll(ctx context.Context) (int64, error)
	Upsert(ctx context.Context, rows []Row) (int64, error)
	SweepTombstoned(ctx context.Context) (int64, error)
	Lookup(ctx context.Context, sku, sourceCode string) (deliverable bool, found bool, err error)
}

// Counts: 索引规模，用于运维输出
type Counts struct {
	Total      int64
	Tombstoned int64
}

// 单条 INSERT 的最大行数，控制参数数组体积
const upsertChunk = 1000

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// TombstoneAll: 将全部未标记行置为 tombstoned，单条批量 UPDATE，不删除数据
func (s *Store) TombstoneAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE _sa_product_deliverability SET tombstoned=TRUE WHERE tombstoned=FALSE`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	logger.L().Debug("index_tombstoned", "rows", n)
	return n, nil
}

// Upsert: 按 (sku, source_code) 插入或更新，可重试、可整体重跑
// 背景：通过 unnest 数组参数一次写入一批，避免逐行往返
// 约束：同一批内重复键以最后一次为准（ON CONFLICT 不允许同一语句内重复命中同一行）
func (s *Store) Upsert(ctx context.Context, rows []Row) (int64, error) {
	rows = dedupe(rows)
	var total int64
	for start := 0; start < len(rows); start += upsertChunk {
		end := start + upsertChunk
		if end > len(rows) {
			end = len(rows)
		}
		part := rows[start:end]
		skus := make([]string, len(part))
		codes := make([]string, len(part))
		flags := make([]bool, len(part))
		stamps := make([]string, len(part))
		for i, r := range part {
			skus[i] = r.SKU
			codes[i] = r.SourceCode
			flags[i] = r.Deliverable
			stamps[i] = r.LastUpdated.UTC().Format(time.RFC3339Nano)
		}
		res, err := s.db.ExecContext(ctx, `INSERT INTO _sa_product_deliverability(sku, source_code, deliverable, last_updated, tombstoned)
        SELECT u.sku, u.source_code, u.deliverable, u.ts::timestamptz, FALSE
        FROM unnest($1::text[], $2::text[], $3::bool[], $4::text[]) AS u(sku, source_code, deliverable, ts)
        ON CONFLICT (sku, source_code) DO UPDATE SET deliverable=EXCLUDED.deliverable, last_updated=EXCLUDED.last_updated, tombstoned=FALSE`,
			pq.Array(skus), pq.Array(codes), pq.Array(flags), pq.Array(stamps))
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// SweepTombstoned: 物理删除刷新结束时仍为 tombstoned 的行（即本轮未被重新确认的组合）
func (s *Store) SweepTombstoned(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM _sa_product_deliverability WHERE tombstoned=TRUE`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	logger.L().Debug("index_swept", "rows", n)
	return n, nil
}

// Lookup: 单点查询，未命中返回 found=false
func (s *Store) Lookup(ctx context.Context, sku, sourceCode string) (bool, bool, error) {
	var deliverable bool
	err := s.db.QueryRowContext(ctx, `SELECT deliverable FROM _sa_product_deliverability WHERE sku=$1 AND source_code=$2 LIMIT 1`, sku, sourceCode).Scan(&deliverable)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return deliverable, true, nil
}

// Counts: 读取总行数与标记删除行数；非零 tombstoned 表示有刷新正在进行或中途失败
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COUNT(1) FILTER (WHERE tombstoned) FROM _sa_product_deliverability`).Scan(&c.Total, &c.Tombstoned)
	return c, err
}

func dedupe(rows []Row) []Row {
	pos := make(map[[2]string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		k := [2]string{r.SKU, r.SourceCode}
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
