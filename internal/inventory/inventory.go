// 包 inventory：库存存在性快照，键为 (SKU, 网点编码)
package inventory

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Stock：sku → 网点编码 → 是否有货
// 约束：缺失条目一律视为“无货”，不存在“未知”状态
type Stock map[string]map[string]bool

func (s Stock) InStock(sku, sourceCode string) bool {
	return s[sku][sourceCode]
}

func (s Stock) Set(sku, sourceCode string, inStock bool) {
	m, ok := s[sku]
	if !ok {
		m = map[string]bool{}
		s[sku] = m
	}
	m[sourceCode] = inStock
}

// Loader：按 SKU 批量加载库存事实
type Loader interface {
	LoadBulk(ctx context.Context, skus []string) (Stock, error)
}

// Static：内存库存，测试注入
type Static struct {
	all Stock
}

func NewStatic(all Stock) *Static {
	if all == nil {
		all = Stock{}
	}
	return &Static{all: all}
}

func (s *Static) LoadBulk(ctx context.Context, skus []string) (Stock, error) {
	out := Stock{}
	for _, sku := range skus {
		for code, v := range s.all[sku] {
			out.Set(sku, code, v)
		}
	}
	return out, nil
}

// Postgres：读取 _sa_source_items
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) LoadBulk(ctx context.Context, skus []string) (Stock, error) {
	out := Stock{}
	if len(skus) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT sku, source_code, in_stock FROM _sa_source_items WHERE sku = ANY($1)`, pq.Array(skus))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sku, code string
		var in bool
		if err := rows.Scan(&sku, &code, &in); err != nil {
			return nil, err
		}
		out.Set(sku, code, in)
	}
	return out, rows.Err()
}
