package sources

import (
	"encoding/json"
	"fmt"
	"os"

	"stock-availability/internal/geo"
)

// 文件格式中的网点记录；经纬度允许缺省
type fileSource struct {
	Code            string   `json:"code"`
	Name            string   `json:"name"`
	Phone           string   `json:"phone"`
	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	DeliveryRangeKm float64  `json:"delivery_range_km"`
	HubCodes        []string `json:"hub_codes"`
}

// LoadFile：从 JSON 文件加载网点目录（SOURCES_FILE）
// 背景：无外部库存系统的部署或本地调试时，以文件替代数据库中的网点表
func LoadFile(path string, defaultRangeKm float64) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []fileSource
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	list := make([]Source, 0, len(raw))
	for _, r := range raw {
		s := Source{Code: r.Code, Name: r.Name, Phone: r.Phone, DeliveryRangeKm: r.DeliveryRangeKm, HubCodes: r.HubCodes}
		if r.Lat != nil && r.Lng != nil {
			s.Location = &geo.Point{Lat: *r.Lat, Lng: *r.Lng}
		}
		list = append(list, s)
	}
	return NewStatic(list, defaultRangeKm), nil
}
