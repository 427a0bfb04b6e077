// 包 geo：球面距离计算（Haversine），供最近网点选择与附近可用性查询使用
package geo

import "math"

// EarthRadiusKm：地球平均半径（千米）
const EarthRadiusKm = 6371.0

// Point：经纬度坐标（十进制度，WGS84），无身份
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm：两点间大圆距离（千米）
// 约束：对称，且同一点返回 0；NaN 输入原样传播，调用方需在上游校验；近对跖点的舍入误差会使 h 略大于 1，需截断
func DistanceKm(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
