// 包 locator：按顾客坐标选择最近的可配送网点（Haversine + 网点自身配送半径）
package locator

import (
	"math"

	"stock-availability/internal/geo"
	"stock-availability/internal/sources"
)

// ValidPoint：经纬度在合法范围内且不是 NaN
func ValidPoint(p geo.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// NearestSource：距离最近且在该网点配送半径内的网点编码
// 约束：跳过无坐标网点；距离相同时取编码字典序最小者，与输入顺序无关；无候选时返回 false
func NearestSource(p geo.Point, srcs []sources.Source) (string, bool) {
	best := ""
	bestKm := math.Inf(1)
	for _, s := range srcs {
		if !s.HasLocation() {
			continue
		}
		d := geo.DistanceKm(p, *s.Location)
		if math.IsNaN(d) || d > s.DeliveryRangeKm {
			continue
		}
		if d < bestKm || (d == bestKm && s.Code < best) {
			best, bestKm = s.Code, d
		}
	}
	return best, best != ""
}
