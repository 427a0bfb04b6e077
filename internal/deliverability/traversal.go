// 包 deliverability：可配送判定。离线全量遍历模式供预计算任务使用，在线模式只读覆盖标记与预计算索引
package deliverability

import (
	"stock-availability/internal/catalog"
	"stock-availability/internal/inventory"
	"stock-availability/internal/sources"
)

// Deliverable：全量遍历模式，判定单个 SKU 能否由指定网点履约
// 判定顺序：全局配送 → 网点自有库存 → 网点枢纽库存（按列表顺序）；组合商品任一子商品满足即可
// 约束：枢纽回退只做一层，不查询“枢纽的枢纽”，枢纽列表成环也不会无限遍历
func Deliverable(p catalog.ProductFact, src sources.Source, stock inventory.Stock) bool {
	if p.GlobalShipping {
		return true
	}
	if src.Code == sources.NationwideShipping {
		return false
	}
	if p.Kind == catalog.Composite {
		for _, child := range p.Children {
			if stockedAt(child, src, stock) {
				return true
			}
		}
		return false
	}
	return stockedAt(p.SKU, src, stock)
}

func stockedAt(sku string, src sources.Source, stock inventory.Stock) bool {
	if stock.InStock(sku, src.Code) {
		return true
	}
	for _, hub := range src.HubCodes {
		if stock.InStock(sku, hub) {
			return true
		}
	}
	return false
}

// DeliverableSKUs：对一批 SKU 逐个执行全量遍历，返回可配送子集（保持输入顺序）
// 约束：目录中不存在的 SKU 直接跳过
func DeliverableSKUs(batch []string, facts catalog.Facts, src sources.Source, stock inventory.Stock) []string {
	var out []string
	for _, sku := range batch {
		p, ok := facts[sku]
		if !ok {
			continue
		}
		if Deliverable(p, src, stock) {
			out = append(out, sku)
		}
	}
	return out
}
