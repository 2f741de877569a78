package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/xerrors"
)

// 只有 token 匹配时才删除或续期
var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)
)

type redisLocker struct {
	conn    connector.RedisConnector
	cfg     *Config
	logger  clog.Logger
	metrics *lockMetrics
	locks   map[string]*redisLockEntry
	mu      sync.Mutex
}

type redisLockEntry struct {
	key        string
	token      string
	expiration time.Duration
	renewStop  chan struct{}
	renewDone  chan struct{}
}

func newRedis(conn connector.RedisConnector, cfg *Config, o options) (Locker, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}
	return &redisLocker{
		conn:    conn,
		cfg:     cfg,
		logger:  o.logger.With(clog.String("driver", DriverRedis)),
		metrics: newLockMetrics(o.meter, DriverRedis),
		locks:   make(map[string]*redisLockEntry),
	}, nil
}

func (l *redisLocker) client() (*redis.Client, error) {
	c := l.conn.GetClient()
	if c == nil {
		return nil, connector.ErrClientNil
	}
	return c, nil
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return retryLock(ctx, l, key, l.cfg.RetryInterval, opts)
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	if key == "" {
		return false, ErrKeyEmpty
	}
	client, err := l.client()
	if err != nil {
		return false, err
	}
	o := applyLockOptions(l.cfg.DefaultTTL, opts)

	// 本实例已持有视为占用
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		l.metrics.observe(ctx, false)
		return false, nil
	}
	l.mu.Unlock()

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return false, xerrors.Wrap(err, "generate lock token")
	}
	token := hex.EncodeToString(buf)
	redisKey := l.cfg.Prefix + key

	ok, err := client.SetNX(ctx, redisKey, token, o.ttl).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "acquire lock")
	}
	if !ok {
		l.metrics.observe(ctx, false)
		return false, nil
	}

	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		// 并发的 TryLock 已经登记，释放刚拿到的 redis 锁
		l.mu.Unlock()
		_ = unlockScript.Run(ctx, client, []string{redisKey}, token).Err()
		l.metrics.observe(ctx, false)
		return false, nil
	}
	entry := &redisLockEntry{
		key:        key,
		token:      token,
		expiration: o.ttl,
		renewStop:  make(chan struct{}),
		renewDone:  make(chan struct{}),
	}
	l.locks[key] = entry
	l.mu.Unlock()

	go l.watchdog(client, entry, redisKey)

	l.metrics.observe(ctx, true)
	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key), clog.Duration("ttl", o.ttl))
	return true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	close(entry.renewStop)
	<-entry.renewDone

	client, err := l.client()
	if err != nil {
		return err
	}
	n, err := unlockScript.Run(ctx, client, []string{l.cfg.Prefix + key}, entry.token).Int64()
	if err != nil {
		return xerrors.Wrap(err, "release lock")
	}
	if n == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	l.metrics.release(ctx)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// watchdog 每 TTL/3 续期一次，续期失败或所有权丢失时退出
func (l *redisLocker) watchdog(client *redis.Client, entry *redisLockEntry, redisKey string) {
	defer close(entry.renewDone)

	interval := max(entry.expiration/3, 100*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.renewStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := renewScript.Run(ctx, client, []string{redisKey}, entry.token, entry.expiration.Milliseconds()).Int64()
			cancel()

			if err != nil {
				l.logger.Error("lock renew failed", clog.String("key", entry.key), clog.Error(err))
				return
			}
			if n == 0 {
				l.logger.Warn("lock ownership lost", clog.String("key", entry.key))
				return
			}
		}
	}
}

// Close 停止所有 watchdog，已持有的锁在 TTL 后自然过期
func (l *redisLocker) Close() error {
	l.mu.Lock()
	entries := l.locks
	l.locks = make(map[string]*redisLockEntry)
	l.mu.Unlock()

	for _, e := range entries {
		close(e.renewStop)
		<-e.renewDone
	}
	return nil
}
