// Package db 在 SQL 连接器之上提供 GORM 数据库组件：事务、clog 日志适配与 OpenTelemetry 追踪。
//
// db 组件借用连接器的连接，不负责连接的生命周期：
//
//	conn, _ := connector.NewSQL(&cfg.Database, connector.WithLogger(logger))
//	defer conn.Close()
//	_ = conn.Connect(ctx)
//
//	database, _ := db.New(conn, &db.Config{SlowThreshold: 200 * time.Millisecond}, db.WithLogger(logger))
//	err := database.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
//		return tx.Table("teams").Create(&rows).Error
//	})
package db

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/harvest/clog"
	"github.com/ceyewan/harvest/connector"
	"github.com/ceyewan/harvest/xerrors"
)

// DB 数据库组件的核心能力
type DB interface {
	// DB 获取绑定 ctx 的 *gorm.DB
	DB(ctx context.Context) *gorm.DB

	// Transaction 执行事务，fn 返回错误时整体回滚
	Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error

	// Dialect 返回底层方言："sqlite"、"mysql" 或 "postgres"
	Dialect() string

	// Close 关闭组件，不关闭连接器
	Close() error
}

type database struct {
	client  *gorm.DB
	dialect string
	logger  clog.Logger
}

// New 创建数据库组件，conn 必须已经 Connect
func New(conn connector.SQLConnector, cfg *Config, opts ...Option) (DB, error) {
	if conn == nil {
		return nil, ErrConnectorRequired
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.setDefaults()

	gormDB := conn.GetClient()
	if gormDB == nil {
		return nil, xerrors.Wrapf(ErrConnectorRequired, "connector %s is not connected", conn.Name())
	}

	if c.Tracing {
		if err := gormDB.Use(otelgorm.NewPlugin(otelgorm.WithDBName(conn.Name()))); err != nil {
			// 同一连接被多次包装时插件已注册
			if !xerrors.Is(err, gorm.ErrRegistered) {
				return nil, xerrors.Wrap(err, "db: register tracing plugin")
			}
		}
	}

	session := gormDB.Session(&gorm.Session{
		Logger: newGormLogger(opt.logger, opt.silentMode || c.Silent, c.SlowThreshold),
	})

	return &database{
		client:  session,
		dialect: conn.Driver(),
		logger:  opt.logger,
	}, nil
}

func (d *database) DB(ctx context.Context) *gorm.DB {
	return d.client.WithContext(ctx)
}

func (d *database) Transaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	return d.client.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx)
	})
}

func (d *database) Dialect() string { return d.dialect }

// Close 连接由连接器管理，这里不需要额外关闭
func (d *database) Close() error {
	return nil
}
