package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/harvest/cache/serializer"
	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/xerrors"
)

const fileExt = ".cache"

// 缓存查询结果标签值
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultExpired = "expired"
)

type diskCache struct {
	dir        string
	serializer serializer.Serializer
	memory     *otter.Cache[string, *Entry] // nil 表示关闭 L1
	logger     clog.Logger
	requests   metrics.Counter
	now        func() time.Time
}

func newDiskCache(cfg *Config, logger clog.Logger, meter metrics.Meter, now func() time.Time) (*diskCache, error) {
	ser, err := serializer.New(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "cache: create dir %s", cfg.Dir)
	}

	c := &diskCache{
		dir:        cfg.Dir,
		serializer: ser,
		logger:     logger,
		requests:   metrics.MustCounter(meter, metrics.MetricCacheRequests, "Response cache lookups by result."),
		now:        now,
	}

	if cfg.MemoryCapacity > 0 {
		memory, err := otter.New(&otter.Options[string, *Entry]{
			MaximumSize: cfg.MemoryCapacity,
			// 具体过期时间在 Set 时通过 SetExpiresAfter 按条目剩余 ttl 覆盖
			ExpiryCalculator: otter.ExpiryWriting[string, *Entry](time.Hour),
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "cache: build memory layer")
		}
		c.memory = memory
	}

	logger.Info("response cache ready",
		clog.String("dir", cfg.Dir),
		clog.String("serializer", ser.Name()),
		clog.Int("memory_capacity", cfg.MemoryCapacity))
	return c, nil
}

func (c *diskCache) Dir() string { return c.dir }

func (c *diskCache) Get(ctx context.Context, namespace, fingerprint string) (*Entry, error) {
	path, err := c.path(namespace, fingerprint)
	if err != nil {
		return nil, err
	}
	now := c.now()
	memKey := namespace + "/" + fingerprint

	if c.memory != nil {
		if e, ok := c.memory.GetIfPresent(memKey); ok && !e.Expired(now) {
			c.record(ctx, namespace, resultHit)
			return e, nil
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.record(ctx, namespace, resultMiss)
		return nil, ErrMiss
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "cache: read %s", path)
	}

	var e Entry
	if err := c.serializer.Unmarshal(data, &e); err != nil {
		// 损坏的文件视为未命中，下次写入会覆盖
		c.logger.Warn("corrupt cache entry ignored",
			clog.String("namespace", namespace),
			clog.String("fingerprint", fingerprint),
			clog.Error(err))
		c.record(ctx, namespace, resultMiss)
		return nil, ErrMiss
	}

	if e.Expired(now) {
		c.forget(memKey)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to remove expired cache entry", clog.String("path", path), clog.Error(err))
		}
		c.record(ctx, namespace, resultExpired)
		return nil, ErrMiss
	}

	c.remember(memKey, &e, now)
	c.record(ctx, namespace, resultHit)
	return &e, nil
}

func (c *diskCache) Set(_ context.Context, namespace string, entry *Entry) error {
	if entry == nil {
		return xerrors.Wrap(ErrInvalidKey, "nil entry")
	}
	if entry.TTL <= 0 {
		return nil
	}
	path, err := c.path(namespace, entry.Fingerprint)
	if err != nil {
		return err
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.now()
	}

	data, err := c.serializer.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(err, "cache: encode entry")
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	c.remember(namespace+"/"+entry.Fingerprint, entry, c.now())
	return nil
}

func (c *diskCache) Delete(_ context.Context, namespace, fingerprint string) error {
	path, err := c.path(namespace, fingerprint)
	if err != nil {
		return err
	}
	c.forget(namespace + "/" + fingerprint)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrapf(err, "cache: remove %s", path)
	}
	return nil
}

func (c *diskCache) Purge(ctx context.Context, namespace string) (int, error) {
	if !validSegment(namespace) {
		return 0, xerrors.Wrapf(ErrInvalidKey, "namespace %q", namespace)
	}
	dir := filepath.Join(c.dir, namespace)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, xerrors.Wrapf(err, "cache: list %s", dir)
	}

	now := c.now()
	removed := 0
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), fileExt) {
			continue
		}
		path := filepath.Join(dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var e Entry
		if err := c.serializer.Unmarshal(data, &e); err == nil && !e.Expired(now) {
			continue
		}
		if err := os.Remove(path); err == nil {
			c.forget(namespace + "/" + strings.TrimSuffix(de.Name(), fileExt))
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("purged expired cache entries", clog.String("namespace", namespace), clog.Int("removed", removed))
	}
	return removed, nil
}

func (c *diskCache) Close() error {
	if c.memory != nil {
		c.memory.InvalidateAll()
		c.memory.StopAllGoroutines()
	}
	return nil
}

func (c *diskCache) path(namespace, fingerprint string) (string, error) {
	if !validSegment(namespace) {
		return "", xerrors.Wrapf(ErrInvalidKey, "namespace %q", namespace)
	}
	if !validSegment(fingerprint) {
		return "", xerrors.Wrapf(ErrInvalidKey, "fingerprint %q", fingerprint)
	}
	return filepath.Join(c.dir, namespace, fingerprint+fileExt), nil
}

func (c *diskCache) remember(key string, e *Entry, now time.Time) {
	if c.memory == nil {
		return
	}
	remaining := e.ExpiresAt().Sub(now)
	if remaining <= 0 {
		return
	}
	c.memory.Set(key, e)
	c.memory.SetExpiresAfter(key, remaining)
}

func (c *diskCache) forget(key string) {
	if c.memory != nil {
		c.memory.Invalidate(key)
	}
}

func (c *diskCache) record(ctx context.Context, namespace, result string) {
	c.requests.Inc(ctx, metrics.L(metrics.LabelSource, namespace), metrics.L(metrics.LabelResult, result))
}

// validSegment 判断 s 能否作为单级路径名
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

// writeAtomic 先写同目录临时文件再 rename
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Wrapf(err, "cache: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return xerrors.Wrap(err, "cache: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.Wrap(err, "cache: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return xerrors.Wrap(err, "cache: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return xerrors.Wrapf(err, "cache: rename into %s", path)
	}
	return nil
}
