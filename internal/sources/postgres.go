package sources

import (
	"context"
	"database/sql"

	"stock-availability/internal/geo"
	"stock-availability/internal/logger"
)

// Postgres：从 _sa_sources/_sa_source_hubs 读取网点目录
// 约束：结果只含启用网点；停用但有坐标的网点仍可作为枢纽；每次调用都是一次新快照，不在进程内缓存
type Postgres struct {
	db             *sql.DB
	defaultRangeKm float64
}

func NewPostgres(db *sql.DB, defaultRangeKm float64) *Postgres {
	return &Postgres{db: db, defaultRangeKm: defaultRangeKm}
}

func (p *Postgres) All(ctx context.Context) ([]Source, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT source_code, COALESCE(name, ''), COALESCE(phone, ''), latitude, longitude, delivery_range_km, COALESCE(enabled, false)
        FROM _sa_sources ORDER BY source_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Source
	idx := map[string]int{}
	hubOnly := map[string]bool{}
	for rows.Next() {
		var s Source
		var lat, lng, rng sql.NullFloat64
		var enabled bool
		if err := rows.Scan(&s.Code, &s.Name, &s.Phone, &lat, &lng, &rng, &enabled); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			s.Location = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
		}
		if rng.Valid {
			s.DeliveryRangeKm = rng.Float64
		}
		if !enabled {
			if s.HasLocation() {
				hubOnly[s.Code] = true
			}
			continue
		}
		idx[s.Code] = len(list)
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	hrows, err := p.db.QueryContext(ctx, `SELECT source_code, hub_code FROM _sa_source_hubs ORDER BY source_code, position, hub_code`)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var code, hub string
		if err := hrows.Scan(&code, &hub); err != nil {
			return nil, err
		}
		if i, ok := idx[code]; ok {
			list[i].HubCodes = append(list[i].HubCodes, hub)
		}
	}
	if err := hrows.Err(); err != nil {
		return nil, err
	}
	out := normalize(list, hubOnly, p.defaultRangeKm)
	logger.L().Debug("sources_loaded", "total", len(list), "usable", len(out), "disabled_hubs", len(hubOnly))
	return out, nil
}
