// 程序入口：读取配置、初始化依赖、启动 HTTP 服务与每日索引刷新；路由注册在 internal/api
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"stock-availability/internal/api"
	"stock-availability/internal/catalog"
	"stock-availability/internal/deliverability"
	"stock-availability/internal/inventory"
	"stock-availability/internal/locator"
	"stock-availability/internal/logger"
	"stock-availability/internal/metrics"
	"stock-availability/internal/middleware"
	"stock-availability/internal/migrate"
	"stock-availability/internal/precompute"
	"stock-availability/internal/sources"
	"stock-availability/internal/store"
	"stock-availability/internal/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := utils.EnvString("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	dir, err := openDirectory(db)
	if err != nil {
		l.Error("sources_open_error", "err", err)
		os.Exit(1)
	}
	cat := catalog.NewPostgres(db)
	inv := inventory.NewPostgres(db)
	idx := store.AttachDB(db)
	job := newJob(cat, inv, dir, idx, db, rc)

	loc := locator.New(dir, rc, time.Duration(utils.EnvInt("NEAREST_CACHE_TTL_S", 600))*time.Second)
	geoPath := utils.EnvString("GEOIP_DB_PATH", filepath.Join("data", "geoip", "GeoLite2-City.mmdb"))
	if g, err := locator.OpenGeoIP(geoPath); err == nil {
		defer g.Close()
		loc.WithIPLocator(g)
		l.Info("geoip_ready", "path", geoPath)
	} else {
		l.Info("geoip_disabled", "path", geoPath, "err", err)
	}

	if utils.EnvBool("PRECOMPUTE_SCHEDULE_ENABLED", true) {
		tz, err := time.LoadLocation(utils.EnvString("PRECOMPUTE_TZ", "UTC"))
		if err != nil {
			l.Warn("precompute_tz_invalid", "err", err)
			tz = time.UTC
		}
		hour := 2
		if h := os.Getenv("PRECOMPUTE_HOUR"); h != "" {
			if n, err := strconv.Atoi(h); err == nil {
				hour = n
			}
		}
		precompute.StartDaily(ctx, job, tz, hour)
	}

	apiMux := api.BuildRoutes(api.Deps{
		Resolver:    deliverability.New(cat, idx, inv),
		Locator:     loc,
		Job:         job,
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		BaseContext: ctx,
	})
	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	admin := middleware.ParseAllowlist(os.Getenv("ADMIN_ALLOW_IPS"), os.Getenv("ADMIN_REAL_IP_HEADER"))
	mux.Handle(apiBase+"/precompute", admin.Wrap(http.StripPrefix(apiBase, apiMux)))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := utils.EnvString("ADDR", ":8080")
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}

// openDirectory：SOURCES_FILE 存在时读取 JSON 文件，否则读取 _sa_sources
func openDirectory(db *sql.DB) (sources.Directory, error) {
	rangeKm := utils.EnvFloat("DEFAULT_DELIVERY_RANGE_KM", sources.DefaultRangeKm)
	if p := os.Getenv("SOURCES_FILE"); p != "" {
		logger.L().Info("sources_from_file", "path", p)
		return sources.LoadFile(p, rangeKm)
	}
	return sources.NewPostgres(db, rangeKm), nil
}

func newJob(cat catalog.Reader, inv inventory.Loader, dir sources.Directory, idx store.Index, db *sql.DB, rc *redis.Client) *precompute.Job {
	var lock precompute.Locker
	if rc != nil {
		lock = precompute.NewRedisLock(rc, "", time.Duration(utils.EnvInt("PRECOMPUTE_LOCK_TTL_S", 3600))*time.Second)
	}
	return precompute.NewJob(cat, inv, dir, idx, precompute.NewPostgresCheckpoint(db), lock,
		precompute.Config{BatchSize: utils.EnvInt("PRECOMPUTE_BATCH_SIZE", precompute.DefaultBatchSize)})
}
