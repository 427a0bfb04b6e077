package deliverability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-availability/internal/catalog"
	"stock-availability/internal/logger"
	"stock-availability/internal/sources"
)

// StockStatus：面向展示的库存状态
type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	Backorder  StockStatus = "backorder"
	OutOfStock StockStatus = "out_of_stock"
)

// StockStatus：不可送达为 out_of_stock；可送达且网点直接有货为 in_stock；其余为 backorder
// 约束：先以 Resolve 判定，与下单校验一致；组合商品任一子商品在该网点直接有货即 in_stock；全国配送伪网点没有自有库存
func (r *Resolver) StockStatus(ctx context.Context, sku, sourceCode string) StockStatus {
	if !r.Resolve(ctx, sku, sourceCode) {
		return OutOfStock
	}
	if sourceCode != sources.NationwideShipping && r.inventory != nil && r.inStockAt(ctx, sku, sourceCode) {
		return InStock
	}
	return Backorder
}

func (r *Resolver) inStockAt(ctx context.Context, sku, sourceCode string) bool {
	facts, err := r.catalog.LoadBatch(ctx, []string{sku})
	if err != nil {
		logger.L().Error("stock_status_catalog_error", "sku", sku, "err", err)
		return false
	}
	p, ok := facts[sku]
	if !ok {
		return false
	}
	skus := []string{sku}
	if p.Kind == catalog.Composite {
		skus = p.Children
	}
	if len(skus) == 0 {
		return false
	}
	stock, err := r.inventory.LoadBulk(ctx, skus)
	if err != nil {
		logger.L().Error("stock_status_inventory_error", "sku", sku, "source", sourceCode, "err", err)
		return false
	}
	for _, s := range skus {
		if stock.InStock(s, sourceCode) {
			return true
		}
	}
	return false
}

// ErrNoSourceSelected：结算前未选择配送网点
var ErrNoSourceSelected = errors.New("no delivery source selected")

// UndeliverableItemError：购物车中首个无法由所选网点配送的商品
type UndeliverableItemError struct {
	SKU        string
	Name       string
	SourceCode string
}

func (e *UndeliverableItemError) Error() string {
	return fmt.Sprintf("item %q cannot be delivered from source %s", e.Name, e.SourceCode)
}

// Item：待校验的购物车行
type Item struct {
	SKU  string `json:"sku"`
	Name string `json:"name"`
}

// ValidateItems：结算提交前的可配送校验
// 约束：缺少 SKU 的行记录告警后跳过；名称为空时以 SKU 代替
func (r *Resolver) ValidateItems(ctx context.Context, sourceCode string, items []Item) error {
	sourceCode = strings.TrimSpace(sourceCode)
	if sourceCode == "" {
		return ErrNoSourceSelected
	}
	for _, it := range items {
		if it.SKU == "" {
			logger.L().Warn("validate_item_without_sku", "source", sourceCode)
			continue
		}
		if !r.Resolve(ctx, it.SKU, sourceCode) {
			name := it.Name
			if name == "" {
				name = it.SKU
			}
			return &UndeliverableItemError{SKU: it.SKU, Name: name, SourceCode: sourceCode}
		}
	}
	return nil
}
