package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/xerrors"
)

type sqlConnector struct {
	cfg     *SQLConfig
	db      *gorm.DB
	logger  clog.Logger
	healthy atomic.Bool
	mu      sync.RWMutex
}

// NewSQL 创建关系型数据库连接器，实际连接在 Connect() 时建立
func NewSQL(cfg *SQLConfig, opts ...Option) (SQLConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "nil sql config")
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)
	return &sqlConnector{
		cfg:    &c,
		logger: opt.logger.With(clog.String("connector", c.Driver), clog.String("name", c.Name)),
	}, nil
}

// Connect 建立连接
func (c *sqlConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 幂等：如果已连接则直接返回
	if c.db != nil {
		return nil
	}

	c.logger.Info("attempting to connect to database", clog.String("host", c.cfg.Host))

	dial, err := dialector(c.cfg)
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	// SQL 日志由 db 组件通过 Session 注入，连接器自身保持静默
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		c.logger.Error("failed to open database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: failed to get db instance: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	// 配置连接池，sqlite 只允许单写连接
	if c.cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		c.logger.Error("failed to ping database", clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "%s connector[%s]: ping failed: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("successfully connected to database", clog.String("database", c.cfg.Database))
	return nil
}

// Close 关闭连接
func (c *sqlConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("failed to close database connection", clog.Error(err))
		return err
	}

	c.db = nil
	c.logger.Info("database connection closed")
	return nil
}

// HealthCheck 检查连接健康状态
func (c *sqlConnector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()

	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.cfg.Driver, c.cfg.Name)
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		c.healthy.Store(false)
		c.logger.Warn("database health check failed", clog.Error(err))
		return xerrors.Wrapf(ErrHealthCheck, "%s connector[%s]: %v", c.cfg.Driver, c.cfg.Name, err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *sqlConnector) IsHealthy() bool { return c.healthy.Load() }
func (c *sqlConnector) Name() string    { return c.cfg.Name }
func (c *sqlConnector) Driver() string  { return c.cfg.Driver }

// GetClient 返回 GORM 客户端
func (c *sqlConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}
