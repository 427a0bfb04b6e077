// 包 sources：履约网点目录（坐标、配送半径、备货枢纽列表）的只读快照
package sources

import (
	"context"
	"sort"

	"stock-availability/internal/geo"
)

// NationwideShipping：全国配送伪网点，无坐标，仅承载“全局配送”商品
const NationwideShipping = "NATIONWIDE_SHIPPING"

// DefaultRangeKm：网点未配置配送半径时的默认值
const DefaultRangeKm = 50.0

// Source：履约网点
// 约束：Location 为 nil 表示坐标未知；HubCodes 为有向备货回退列表，仅做一层回退，不递归
type Source struct {
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Location        *geo.Point `json:"location,omitempty"`
	DeliveryRangeKm float64    `json:"delivery_range_km"`
	HubCodes        []string   `json:"hub_codes"`
}

func (s Source) HasLocation() bool { return s.Location != nil }

// Directory：网点目录契约，由外部系统维护数据
type Directory interface {
	All(ctx context.Context) ([]Source, error)
}

// Normalize：统一清洗网点列表
// 背景：外部数据可能缺坐标、缺半径、枢纽指向不存在的网点或指向自身
// 约束：丢弃无坐标网点；半径非正时取 defaultRangeKm；枢纽去重、去自引用、去未知网点，保持原顺序；结果按 Code 排序
func Normalize(in []Source, defaultRangeKm float64) []Source {
	return normalize(in, nil, defaultRangeKm)
}

// normalize：hubOnly 为不出现在结果中、但仍可作为枢纽的网点（如已停用但有坐标）
func normalize(in []Source, hubOnly map[string]bool, defaultRangeKm float64) []Source {
	if defaultRangeKm <= 0 {
		defaultRangeKm = DefaultRangeKm
	}
	known := make(map[string]bool, len(in))
	var out []Source
	for _, s := range in {
		if s.Code == "" || !s.HasLocation() || known[s.Code] {
			continue
		}
		known[s.Code] = true
		out = append(out, s)
	}
	for i := range out {
		s := &out[i]
		if s.DeliveryRangeKm <= 0 {
			s.DeliveryRangeKm = defaultRangeKm
		}
		seen := map[string]bool{s.Code: true}
		hubs := make([]string, 0, len(s.HubCodes))
		for _, h := range s.HubCodes {
			if seen[h] || !(known[h] || hubOnly[h]) {
				continue
			}
			seen[h] = true
			hubs = append(hubs, h)
		}
		s.HubCodes = hubs
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Static：内存目录，用于文件加载与测试注入
type Static struct {
	list []Source
}

func NewStatic(list []Source, defaultRangeKm float64) *Static {
	return &Static{list: Normalize(list, defaultRangeKm)}
}

// All 返回副本，调用方修改不影响目录
func (s *Static) All(ctx context.Context) ([]Source, error) {
	out := make([]Source, len(s.list))
	copy(out, s.list)
	return out, nil
}
