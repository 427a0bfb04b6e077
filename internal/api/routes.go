// 包 api：可配送判定与网点定位的 HTTP 入口，只做参数解析与序列化
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"stock-availability/internal/deliverability"
	"stock-availability/internal/geo"
	"stock-availability/internal/locator"
	"stock-availability/internal/logger"
	"stock-availability/internal/precompute"
	"stock-availability/internal/version"
)

// Deps：路由依赖；Job 为 nil 时 /precompute 返回 503
// BaseContext 为手动刷新任务的父 ctx（进程关停时取消），nil 时使用 context.Background()
type Deps struct {
	Resolver    *deliverability.Resolver
	Locator     *locator.Locator
	Job         *precompute.Job
	AdminToken  string
	BaseContext context.Context
}

const maxSKUsPerRequest = 200

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePoint：lat/lng 均存在且合法时返回 true
func parsePoint(r *http.Request) (geo.Point, bool) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, locator.ValidPoint(p)
}

// 构建并返回 API 路由：独立 ServeMux，由主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/deliverability", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		skus := splitList(q.Get("skus"))
		codes := splitList(q.Get("source_codes"))
		if c := strings.TrimSpace(q.Get("source_code")); c != "" {
			codes = append(codes, c)
		}
		if len(skus) == 0 || len(codes) == 0 {
			writeJSON(w, http.StatusBadRequest, deliverabilityResponse{Error: "skus and source_code are required"})
			return
		}
		if len(skus)*len(codes) > maxSKUsPerRequest {
			writeJSON(w, http.StatusBadRequest, deliverabilityResponse{Error: "too many sku/source pairs"})
			return
		}
		res := d.Resolver.WithMemo(deliverability.NewMemo(0)).ResolveMany(r.Context(), skus, codes)
		writeJSON(w, http.StatusOK, deliverabilityResponse{Success: true, Data: res})
	})

	mux.HandleFunc("/nearest", func(w http.ResponseWriter, r *http.Request) {
		var code string
		var found bool
		by := "coordinates"
		if p, ok := parsePoint(r); ok {
			code, found = d.Locator.Nearest(r.Context(), p)
		} else {
			by = "ip"
			code, found = d.Locator.NearestForIP(r.Context(), getClientIP(r))
		}
		writeJSON(w, http.StatusOK, nearestResponse{Found: found, SourceCode: code, Located: by})
	})

	mux.HandleFunc("/availability", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sku := strings.TrimSpace(q.Get("sku"))
		p, ok := parsePoint(r)
		if sku == "" || !ok {
			writeJSON(w, http.StatusBadRequest, availabilityResponse{Stores: []locator.NearbySource{}, Error: "sku, lat and lng are required"})
			return
		}
		maxKm, _ := strconv.ParseFloat(q.Get("max_distance"), 64)
		checker := d.Resolver.WithMemo(deliverability.NewMemo(0))
		stores, err := d.Locator.Nearby(r.Context(), p, sku, maxKm, checker)
		if err != nil {
			logger.L().Error("availability_error", "sku", sku, "err", err)
			writeJSON(w, http.StatusInternalServerError, availabilityResponse{Stores: []locator.NearbySource{}, Error: "lookup failed"})
			return
		}
		if stores == nil {
			stores = []locator.NearbySource{}
		}
		writeJSON(w, http.StatusOK, availabilityResponse{Success: true, Stores: stores, TotalFound: len(stores)})
	})

	mux.HandleFunc("/cart/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req cartValidateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, cartValidateResponse{Message: "invalid request body"})
			return
		}
		err := d.Resolver.WithMemo(deliverability.NewMemo(0)).ValidateItems(r.Context(), req.SourceCode, req.Items)
		var ue *deliverability.UndeliverableItemError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, cartValidateResponse{Valid: true})
		case errors.Is(err, deliverability.ErrNoSourceSelected):
			writeJSON(w, http.StatusOK, cartValidateResponse{Message: "please select a delivery location before placing the order"})
		case errors.As(err, &ue):
			writeJSON(w, http.StatusOK, cartValidateResponse{SKU: ue.SKU, Message: ue.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, cartValidateResponse{Message: err.Error()})
		}
	})

	mux.HandleFunc("/precompute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		t := r.Header.Get("x-admin-token")
		if t == "" || d.AdminToken == "" || t != d.AdminToken {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if d.Job == nil {
			writeJSON(w, http.StatusServiceUnavailable, precomputeResponse{Error: "precomputation not configured"})
			return
		}
		// 任务跟随进程生命周期，不跟随请求
		ctx := d.BaseContext
		if ctx == nil {
			ctx = context.Background()
		}
		go func() {
			stats, err := d.Job.Run(ctx)
			if err != nil {
				logger.L().Error("precompute_manual_error", "run_id", stats.RunID, "err", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, precomputeResponse{Accepted: true})
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "commit": version.Commit})
	})

	return mux
}
