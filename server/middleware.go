package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ceyewan/harvest/clog"
)

// requestLogger 每个请求一条日志，5xx 记为 error
func requestLogger(logger clog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []clog.Field{
			clog.String("method", c.Request.Method),
			clog.String("path", c.Request.URL.Path),
			clog.Int("status", status),
			clog.Duration("duration", time.Since(start)),
			clog.String("client_ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "admin request failed", fields...)
			return
		}
		logger.DebugContext(c.Request.Context(), "admin request", fields...)
	}
}

// requireToken 校验 Bearer token，token 为空时放行
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// throttleIdleFloor 客户端最短保留时间。空闲超过补满令牌桶所需的时间后，
// 重新创建的限流器与被清理的那个等价。
const throttleIdleFloor = time.Minute

// clientLimiter 单个客户端的令牌桶与最后访问时间（UnixNano）
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// triggerThrottle 按客户端 IP 限制手动触发的速率，空闲客户端由后台循环定期清理
type triggerThrottle struct {
	rps      float64
	idle     time.Duration
	logger   clog.Logger
	clients  sync.Map // map[string]*clientLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// newTriggerThrottle rps 为 0 时返回 nil，不限制也不启动清理循环
func newTriggerThrottle(rps float64, logger clog.Logger) *triggerThrottle {
	if rps <= 0 {
		return nil
	}
	t := &triggerThrottle{
		rps:    rps,
		idle:   max(time.Duration(float64(time.Second)/rps), throttleIdleFloor),
		logger: logger,
		stopCh: make(chan struct{}),
	}
	go t.cleanup(t.idle)
	return t
}

func (t *triggerThrottle) handler() gin.HandlerFunc {
	if t == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !t.allow(c.ClientIP(), time.Now()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many manual triggers"})
			return
		}
		c.Next()
	}
}

func (t *triggerThrottle) allow(key string, now time.Time) bool {
	v, ok := t.clients.Load(key)
	if !ok {
		v, _ = t.clients.LoadOrStore(key, &clientLimiter{limiter: rate.NewLimiter(rate.Limit(t.rps), 1)})
	}
	cl := v.(*clientLimiter)
	cl.lastSeen.Store(now.UnixNano())
	return cl.limiter.AllowN(now, 1)
}

// sweep 删除在 now 之前空闲超过 idle 的客户端，返回删除数量
func (t *triggerThrottle) sweep(now time.Time) int {
	count := 0
	t.clients.Range(func(key, value any) bool {
		if now.Sub(time.Unix(0, value.(*clientLimiter).lastSeen.Load())) > t.idle {
			t.clients.Delete(key)
			count++
		}
		return true
	})
	return count
}

func (t *triggerThrottle) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := t.sweep(now); n > 0 {
				t.logger.Debug("cleaned up idle trigger limiters", clog.Int("count", n))
			}
		case <-t.stopCh:
			return
		}
	}
}

// Close 停止清理循环，可重复调用
func (t *triggerThrottle) Close() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() { close(t.stopCh) })
}
