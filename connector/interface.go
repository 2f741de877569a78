// Package connector 管理 harvest 使用的外部连接：关系型数据库（sqlite、mysql、postgres）与 redis。
//
// 连接器只负责连接的生命周期，业务组件借用 GetClient() 返回的客户端：
//
//	conn, err := connector.NewSQL(&connector.SQLConfig{Driver: "sqlite", DSN: "data/harvest.db"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	gormDB := conn.GetClient()
//
// 资源所有权：
//
//	Connector 拥有底层连接，应由创建者 Close()。
//	借用者（db、dlock）不关闭连接器。应用退出时先关闭借用者，再关闭连接器。
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// =============================================================================
// 基础接口
// =============================================================================

// Connector 所有连接器的通用行为，方法均并发安全。
type Connector interface {
	// Connect 建立连接，幂等。
	//
	// 返回错误：
	//   - ErrConnection: 连接建立失败
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等。
	Close() error

	// HealthCheck 发送一次探测请求并更新 IsHealthy 的缓存结果。
	//
	// 返回错误：
	//   - ErrClientNil: 未连接或已关闭
	//   - ErrHealthCheck: 探测失败
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最后一次 HealthCheck 的结果，无阻塞
	IsHealthy() bool

	// Name 连接实例名称，用于日志
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端，Connect 之前或 Close 之后返回 nil
	GetClient() T
}

// =============================================================================
// 具体连接器接口
// =============================================================================

// SQLConnector 基于 GORM 的关系型数据库连接器，Driver 决定方言
type SQLConnector interface {
	TypedConnector[*gorm.DB]

	// Driver 返回 "sqlite"、"mysql" 或 "postgres"
	Driver() string
}

// RedisConnector Redis 连接器，用于分布式锁
type RedisConnector interface {
	TypedConnector[*redis.Client]
}
