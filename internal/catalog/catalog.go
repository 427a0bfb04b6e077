// 包 catalog：商品事实快照（全局配送标记、简单/组合类型、子 SKU 列表），按批加载
package catalog

import (
	"context"
	"sort"
	"strings"
)

// Kind：商品形态，加载时一次性判定，之后不再按类型码字符串分支
type Kind uint8

const (
	Simple Kind = iota
	Composite
)

func (k Kind) String() string {
	if k == Composite {
		return "composite"
	}
	return "simple"
}

// KindFromTypeCode：外部类型码映射
// 约束：configurable/grouped 视为组合商品（自身无库存，由子商品决定），其余一律按简单商品处理
func KindFromTypeCode(code string) Kind {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "configurable", "grouped":
		return Composite
	}
	return Simple
}

// ProductFact：单个 SKU 的可配送判定所需事实
type ProductFact struct {
	SKU            string
	GlobalShipping bool
	Kind           Kind
	Children       []string
}

// NewProductFact：按类型码构造事实；简单商品丢弃子列表
func NewProductFact(sku, typeCode string, globalShipping bool, children []string) ProductFact {
	f := ProductFact{SKU: sku, GlobalShipping: globalShipping, Kind: KindFromTypeCode(typeCode)}
	if f.Kind == Composite {
		f.Children = children
	}
	return f
}

// Facts：按 SKU 索引的批量事实；缺失即“未知 SKU”
type Facts map[string]ProductFact

// ChildSKUs：批内全部组合商品引用的子 SKU（去重，按首次出现顺序）
func (f Facts) ChildSKUs(batch []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, sku := range batch {
		p, ok := f[sku]
		if !ok || p.Kind != Composite {
			continue
		}
		for _, c := range p.Children {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Reader：目录快照契约
// SkuPage 以 SKU 升序做键集分页，after 为上一页最后一个 SKU（首页传空串）
type Reader interface {
	LoadBatch(ctx context.Context, skus []string) (Facts, error)
	SkuPage(ctx context.Context, after string, limit int) ([]string, error)
}

// Static：内存目录，测试与离线校验使用
type Static struct {
	facts Facts
	skus  []string
}

func NewStatic(facts ...ProductFact) *Static {
	s := &Static{facts: Facts{}}
	for _, f := range facts {
		if _, dup := s.facts[f.SKU]; !dup {
			s.skus = append(s.skus, f.SKU)
		}
		s.facts[f.SKU] = f
	}
	sort.Strings(s.skus)
	return s
}

func (s *Static) LoadBatch(ctx context.Context, skus []string) (Facts, error) {
	out := make(Facts, len(skus))
	for _, sku := range skus {
		if f, ok := s.facts[sku]; ok {
			out[sku] = f
		}
	}
	return out, nil
}

func (s *Static) SkuPage(ctx context.Context, after string, limit int) ([]string, error) {
	i := sort.SearchStrings(s.skus, after)
	if i < len(s.skus) && s.skus[i] == after {
		i++
	}
	end := i + limit
	if end > len(s.skus) {
		end = len(s.skus)
	}
	out := make([]string, end-i)
	copy(out, s.skus[i:end])
	return out, nil
}
