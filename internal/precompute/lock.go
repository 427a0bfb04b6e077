package precompute

import (
	"context"
	"errors"
	"sync"
	"time"

	"stock-availability/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked：已有刷新任务在运行
var ErrLocked = errors.New("precomputation already running")

// Locker：跨进程运行锁；release 幂等
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// NopLock：Redis 关闭时使用，仅依赖 Job 自身的进程内互斥
type NopLock struct{}

func (NopLock) Acquire(ctx context.Context) (func(), error) { return func() {}, nil }

const DefaultLockKey = "stock:precompute:lock"

// 仅删除自己持有的锁，避免 TTL 过期后误删他人的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// 仅续期自己持有的锁
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLock：SET NX EX 实现的租约锁；持有期间每 ttl/3 续期一次，进程崩溃时由 TTL 兜底释放
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (r *RedisLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	stop := make(chan struct{})
	go r.renew(token, stop)
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			if err := unlockScript.Run(context.Background(), r.rdb, []string{r.key}, token).Err(); err != nil {
				logger.L().Warn("precompute_unlock_error", "key", r.key, "err", err)
			}
		})
	}, nil
}

// renew：租约续期直到 stop 关闭；锁已被他人持有时停止
func (r *RedisLock) renew(token string, stop <-chan struct{}) {
	interval := r.ttl / 3
	if interval <= 0 {
		interval = r.ttl
	}
	ms := r.ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			n, err := renewScript.Run(context.Background(), r.rdb, []string{r.key}, token, ms).Int()
			if err != nil {
				logger.L().Warn("precompute_lock_renew_error", "key", r.key, "err", err)
				continue
			}
			if n == 0 {
				logger.L().Warn("precompute_lock_lost", "key", r.key)
				return
			}
		}
	}
}
