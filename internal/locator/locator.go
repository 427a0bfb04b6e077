package locator

import (
	"context"
	"fmt"
	"math"
	"net"
	"sort"
	"time"

	"stock-availability/internal/deliverability"
	"stock-availability/internal/geo"
	"stock-availability/internal/logger"
	"stock-availability/internal/metrics"
	"stock-availability/internal/sources"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL  = 10 * time.Minute
	DefaultNearbyKm  = 50.0
	maxNearbyResults = 10
	noneCached       = "-"
	nearestKeyPrefix = "nearest:"
)

// IPLocator：客户端 IP → 坐标，未命中返回 false
type IPLocator interface {
	Locate(ip net.IP) (geo.Point, bool)
}

// StatusChecker：附近网点的库存状态来源
type StatusChecker interface {
	StockStatus(ctx context.Context, sku, sourceCode string) deliverability.StockStatus
}

// Locator：在线最近网点查询
// 背景：顾客首次进入或修改位置时调用；结果按坐标缓存到 Redis，网点目录变化最多滞后一个 TTL
// 约束：rdb、ip 均可为 nil；目录或缓存异常只记录日志，按“未找到”降级
type Locator struct {
	dir sources.Directory
	rdb *redis.Client
	ttl time.Duration
	ip  IPLocator
}

func New(dir sources.Directory, rdb *redis.Client, ttl time.Duration) *Locator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Locator{dir: dir, rdb: rdb, ttl: ttl}
}

// WithIPLocator：启用按客户端 IP 定位
func (l *Locator) WithIPLocator(ip IPLocator) *Locator {
	l.ip = ip
	return l
}

func cacheKey(p geo.Point) string {
	return fmt.Sprintf("%s%.4f:%.4f", nearestKeyPrefix, p.Lat, p.Lng)
}

// Nearest：坐标对应的最近网点编码
func (l *Locator) Nearest(ctx context.Context, p geo.Point) (string, bool) {
	if !ValidPoint(p) {
		metrics.NearestTotal.WithLabelValues("invalid").Inc()
		return "", false
	}
	key := cacheKey(p)
	if l.rdb != nil {
		s, err := l.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			metrics.NearestCacheHitsTotal.Inc()
			if s == noneCached {
				metrics.NearestTotal.WithLabelValues("none").Inc()
				return "", false
			}
			metrics.NearestTotal.WithLabelValues("found").Inc()
			return s, true
		case err == redis.Nil:
			metrics.NearestCacheMissesTotal.Inc()
		default:
			logger.L().Warn("nearest_cache_error", "err", err)
		}
	}
	srcs, err := l.dir.All(ctx)
	if err != nil {
		logger.L().Error("nearest_sources_error", "err", err)
		metrics.NearestTotal.WithLabelValues("error").Inc()
		return "", false
	}
	code, ok := NearestSource(p, srcs)
	if l.rdb != nil {
		v := code
		if !ok {
			v = noneCached
		}
		if err := l.rdb.Set(ctx, key, v, l.ttl).Err(); err != nil {
			logger.L().Warn("nearest_cache_error", "err", err)
		}
	}
	if ok {
		metrics.NearestTotal.WithLabelValues("found").Inc()
	} else {
		metrics.NearestTotal.WithLabelValues("none").Inc()
	}
	logger.L().Debug("nearest_resolved", "lat", p.Lat, "lng", p.Lng, "source", code, "found", ok)
	return code, ok
}

// LocateIP：未配置 IP 定位或地址无法解析时返回 false
func (l *Locator) LocateIP(ip string) (geo.Point, bool) {
	if l.ip == nil {
		return geo.Point{}, false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return geo.Point{}, false
	}
	return l.ip.Locate(parsed)
}

// NearestForIP：按客户端 IP 估算坐标后选择最近网点
func (l *Locator) NearestForIP(ctx context.Context, ip string) (string, bool) {
	p, ok := l.LocateIP(ip)
	if !ok {
		return "", false
	}
	return l.Nearest(ctx, p)
}

// NearbySource：附近可配送网点
type NearbySource struct {
	SourceCode string                     `json:"source_code"`
	Name       string                     `json:"name"`
	Phone      string                     `json:"phone,omitempty"`
	Location   geo.Point                  `json:"location"`
	DistanceKm float64                    `json:"distance_km"`
	Status     deliverability.StockStatus `json:"status"`
}

// Nearby：maxKm 范围内能履约 sku 的网点，按距离升序，最多 10 个
// 约束：maxKm 非正时取 50；距离保留一位小数；距离相同按编码排序；不受网点自身配送半径限制
func (l *Locator) Nearby(ctx context.Context, p geo.Point, sku string, maxKm float64, checker StatusChecker) ([]NearbySource, error) {
	if !ValidPoint(p) {
		return nil, fmt.Errorf("invalid coordinates %v,%v", p.Lat, p.Lng)
	}
	if maxKm <= 0 {
		maxKm = DefaultNearbyKm
	}
	srcs, err := l.dir.All(ctx)
	if err != nil {
		return nil, err
	}
	var out []NearbySource
	for _, s := range srcs {
		if !s.HasLocation() {
			continue
		}
		d := geo.DistanceKm(p, *s.Location)
		if d > maxKm {
			continue
		}
		st := checker.StockStatus(ctx, sku, s.Code)
		if st == deliverability.OutOfStock {
			continue
		}
		out = append(out, NearbySource{
			SourceCode: s.Code,
			Name:       s.Name,
			Phone:      s.Phone,
			Location:   *s.Location,
			DistanceKm: math.Round(d*10) / 10,
			Status:     st,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].SourceCode < out[j].SourceCode
	})
	if len(out) > maxNearbyResults {
		out = out[:maxNearbyResults]
	}
	return out, nil
}
