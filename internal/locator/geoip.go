package locator

import (
	"net"

	"stock-availability/internal/geo"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP：基于 MaxMind City 库的 IP 定位
type GeoIP struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{db: db}, nil
}

// Locate：库中无记录或坐标为 (0,0) 时视为未命中
func (g *GeoIP) Locate(ip net.IP) (geo.Point, bool) {
	rec, err := g.db.City(ip)
	if err != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: rec.Location.Latitude, Lng: rec.Location.Longitude}
	if p.Lat == 0 && p.Lng == 0 {
		return geo.Point{}, false
	}
	return p, true
}

func (g *GeoIP) Close() error { return g.db.Close() }
