package catalog

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// Postgres：读取 _sa_products/_sa_product_children
// 约束：仅启用商品可见；禁用或不存在的 SKU 不出现在结果中
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) LoadBatch(ctx context.Context, skus []string) (Facts, error) {
	out := make(Facts, len(skus))
	if len(skus) == 0 {
		return out, nil
	}
	type row struct {
		typeCode string
		global   bool
	}
	rows, err := p.db.QueryContext(ctx, `SELECT sku, type_code, global_shipping FROM _sa_products WHERE enabled AND sku = ANY($1)`, pq.Array(skus))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	base := map[string]row{}
	var composite []string
	for rows.Next() {
		var sku string
		var r row
		if err := rows.Scan(&sku, &r.typeCode, &r.global); err != nil {
			return nil, err
		}
		base[sku] = r
		if KindFromTypeCode(r.typeCode) == Composite {
			composite = append(composite, sku)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	children := map[string][]string{}
	if len(composite) > 0 {
		crows, err := p.db.QueryContext(ctx, `SELECT parent_sku, child_sku FROM _sa_product_children WHERE parent_sku = ANY($1) ORDER BY parent_sku, position, child_sku`, pq.Array(composite))
		if err != nil {
			return nil, err
		}
		defer crows.Close()
		for crows.Next() {
			var parent, child string
			if err := crows.Scan(&parent, &child); err != nil {
				return nil, err
			}
			children[parent] = append(children[parent], child)
		}
		if err := crows.Err(); err != nil {
			return nil, err
		}
	}
	for sku, r := range base {
		out[sku] = NewProductFact(sku, r.typeCode, r.global, children[sku])
	}
	return out, nil
}

func (p *Postgres) SkuPage(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT sku FROM _sa_products WHERE enabled AND sku > $1 ORDER BY sku LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		out = append(out, sku)
	}
	return out, rows.Err()
}
