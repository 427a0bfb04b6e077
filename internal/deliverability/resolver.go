package deliverability

import (
	"context"
	"time"

	"stock-availability/internal/catalog"
	"stock-availability/internal/inventory"
	"stock-availability/internal/logger"
	"stock-availability/internal/metrics"
	"stock-availability/internal/sources"
)

// IndexReader：在线模式只需要索引的单点查询
type IndexReader interface {
	Lookup(ctx context.Context, sku, sourceCode string) (deliverable bool, found bool, err error)
}

// Resolver：在线判定入口（仅索引模式）
// 背景：商品页、购物车、结算提交都在请求链路上判定，不能重跑子商品×枢纽的遍历；
// 全局配送标记实时读取目录（O(1)，需反映当前值），其余一律查预计算索引。
// 约束：无状态、可并发；Memo 只通过 WithMemo 绑定到调用方自己的副本上。
type Resolver struct {
	catalog   catalog.Reader
	index     IndexReader
	inventory inventory.Loader
	memo      *Memo
}

// New：inv 可为 nil，此时 StockStatus 不区分“有货”与“枢纽调货”
func New(cat catalog.Reader, idx IndexReader, inv inventory.Loader) *Resolver {
	return &Resolver{catalog: cat, index: idx, inventory: inv}
}

// WithMemo：返回绑定了调用方缓存的副本，原 Resolver 不受影响
func (r *Resolver) WithMemo(m *Memo) *Resolver {
	cp := *r
	cp.memo = m
	return &cp
}

// Result：批量判定的单项结果
type Result struct {
	SKU         string `json:"sku"`
	SourceCode  string `json:"source_code"`
	Deliverable bool   `json:"deliverable"`
}

// Resolve：判定 SKU 能否由网点履约
// 约束：不返回错误；未知 SKU、目录或索引异常均记录日志后按“不可配送”处理
func (r *Resolver) Resolve(ctx context.Context, sku, sourceCode string) bool {
	if v, ok := r.memoGet(sku, sourceCode); ok {
		return v
	}
	facts, err := r.catalog.LoadBatch(ctx, []string{sku})
	if err != nil {
		logger.L().Error("resolve_catalog_error", "sku", sku, "source", sourceCode, "err", err)
		metrics.ResolveErrorsTotal.Inc()
		return false
	}
	return r.resolveFact(ctx, facts, sku, sourceCode)
}

// ResolveMany：sku × 网点 全组合判定，目录事实一次批量加载
func (r *Resolver) ResolveMany(ctx context.Context, skus, sourceCodes []string) []Result {
	out := make([]Result, 0, len(skus)*len(sourceCodes))
	facts, err := r.catalog.LoadBatch(ctx, skus)
	if err != nil {
		logger.L().Error("resolve_catalog_error", "skus", len(skus), "err", err)
		metrics.ResolveErrorsTotal.Inc()
		facts = nil
	}
	for _, sku := range skus {
		for _, code := range sourceCodes {
			var ok bool
			if v, hit := r.memoGet(sku, code); hit {
				ok = v
			} else if facts != nil {
				ok = r.resolveFact(ctx, facts, sku, code)
			}
			out = append(out, Result{SKU: sku, SourceCode: code, Deliverable: ok})
		}
	}
	return out
}

func (r *Resolver) resolveFact(ctx context.Context, facts catalog.Facts, sku, sourceCode string) bool {
	t0 := time.Now()
	v, path := r.decide(ctx, facts, sku, sourceCode)
	metrics.ResolveDurationMs.Observe(float64(time.Since(t0).Microseconds()) / 1000)
	result := "denied"
	if v {
		result = "allowed"
	}
	metrics.ResolveTotal.WithLabelValues(result, path).Inc()
	// 异常结果不缓存，同一请求内重试仍有机会恢复
	if path != "error" {
		r.memoSet(sku, sourceCode, v)
	}
	return v
}

func (r *Resolver) decide(ctx context.Context, facts catalog.Facts, sku, sourceCode string) (bool, string) {
	p, ok := facts[sku]
	if !ok {
		logger.L().Warn("resolve_unknown_sku", "sku", sku, "source", sourceCode)
		return false, "unknown"
	}
	// 全国配送伪网点只承载全局配送商品，不查索引
	if sourceCode == sources.NationwideShipping {
		return p.GlobalShipping, "override"
	}
	if p.GlobalShipping {
		return true, "override"
	}
	if sourceCode == "" {
		return false, "unknown"
	}
	d, found, err := r.index.Lookup(ctx, sku, sourceCode)
	if err != nil {
		logger.L().Error("resolve_lookup_error", "sku", sku, "source", sourceCode, "err", err)
		metrics.ResolveErrorsTotal.Inc()
		return false, "error"
	}
	if !found {
		return false, "index"
	}
	return d, "index"
}

func (r *Resolver) memoGet(sku, source string) (bool, bool) {
	if r.memo == nil {
		return false, false
	}
	return r.memo.Get(sku, source)
}

func (r *Resolver) memoSet(sku, source string, v bool) {
	if r.memo != nil {
		r.memo.Set(sku, source, v)
	}
}
