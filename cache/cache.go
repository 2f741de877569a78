// Package cache 提供按请求指纹寻址的响应缓存。
//
// 条目持久化在磁盘上，一个指纹一个文件：<dir>/<namespace>/<fingerprint>.cache，
// 内容为序列化后的 Entry（payload、content-type、写入时间与 ttl）。
// 写入先落临时文件再 rename，读者不会看到半个文件；同一指纹并发写入时最后一次写入生效。
// 过期在读取时惰性检查。进程内用 otter 做一层 L1，避免重复读盘与反序列化。
//
//	c, _ := cache.New(&cache.Config{Dir: "./data/cache"}, cache.WithLogger(logger))
//	entry, err := c.Get(ctx, "teams", fp)
//	if errors.Is(err, cache.ErrMiss) { ... }
package cache

import (
	"context"
	"time"
)

// Cache 响应缓存
type Cache interface {
	// Get 返回未过期的条目，未命中或已过期返回 ErrMiss
	Get(ctx context.Context, namespace, fingerprint string) (*Entry, error)

	// Set 整体写入（覆盖）条目，entry.TTL <= 0 时不缓存
	Set(ctx context.Context, namespace string, entry *Entry) error

	// Delete 删除条目，不存在时不报错
	Delete(ctx context.Context, namespace, fingerprint string) error

	// Purge 删除 namespace 下所有已过期的条目，返回删除数量
	Purge(ctx context.Context, namespace string) (int, error)

	// Dir 返回缓存根目录
	Dir() string

	Close() error
}

// Entry 缓存条目，写入后不再修改，只会被整体覆盖
type Entry struct {
	Fingerprint string        `msgpack:"fingerprint" json:"fingerprint"`
	URL         string        `msgpack:"url" json:"url"`
	StatusCode  int           `msgpack:"status_code" json:"status_code"`
	ContentType string        `msgpack:"content_type" json:"content_type"`
	Payload     []byte        `msgpack:"payload" json:"payload"`
	StoredAt    time.Time     `msgpack:"stored_at" json:"stored_at"`
	TTL         time.Duration `msgpack:"ttl" json:"ttl"`
}

// ExpiresAt 返回条目的过期时间
func (e *Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Expired 判断条目在 now 时刻是否已过期
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// New 创建磁盘缓存
func New(cfg *Config, opts ...Option) (Cache, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.setDefaults()

	return newDiskCache(&c, o.logger, o.meter, o.now)
}
