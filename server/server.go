// Package server 是 harvest 的管理接口：健康检查、数据源状态、手动触发与 Prometheus 指标。
//
//	GET  /healthz
//	GET  /sources
//	GET  /sources/:name
//	POST /sources/:name/run
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/metrics"
	"github.com/ceyewan/harvest/pipeline"
	"github.com/ceyewan/harvest/trace"
	"github.com/ceyewan/harvest/xerrors"
)

// Server 管理接口
type Server struct {
	cfg      Config
	runner   *pipeline.Runner
	logger   clog.Logger
	meter    metrics.Meter
	router   *gin.Engine
	http     *http.Server
	throttle *triggerThrottle
}

// New 创建管理接口并注册路由
func New(cfg *Config, runner *pipeline.Runner, opts ...Option) (*Server, error) {
	if runner == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "server: runner is nil")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	httpMetrics, err := metrics.NewHTTPServerMetrics(o.meter, o.service)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if o.tracing {
		router.Use(trace.GinMiddleware(o.service))
	}
	router.Use(metrics.GinHTTPMiddleware(httpMetrics), requestLogger(o.logger))

	s := &Server{
		cfg:      c,
		runner:   runner,
		logger:   o.logger,
		meter:    o.meter,
		router:   router,
		throttle: newTriggerThrottle(c.TriggerRPS, o.logger),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              c.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/metrics", gin.WrapH(s.meter.Handler()))

	sources := s.router.Group("/sources")
	sources.GET("", s.listSources)
	sources.GET("/:name", s.getSource)
	sources.POST("/:name/run", requireToken(s.cfg.Token), s.throttle.handler(), s.runSource)
}

// Handler 返回路由，便于测试或挂载到其他服务
func (s *Server) Handler() http.Handler { return s.router }

// Serve 在 l 上提供服务，直到 Shutdown 被调用
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("admin server listening", clog.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return xerrors.Wrap(err, "admin server")
	}
	return nil
}

// ListenAndServe 监听配置的地址并提供服务
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "listen %s", s.cfg.Addr)
	}
	return s.Serve(l)
}

// Shutdown 停止接收新请求，等待进行中的请求在 shutdown_timeout 内结束
func (s *Server) Shutdown(ctx context.Context) error {
	s.throttle.Close()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout())
	defer cancel()
	return s.http.Shutdown(ctx)
}
