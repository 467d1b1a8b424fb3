package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog/pkg/health"
)

// NewHealthChecker 数据库与 Redis 的就绪检查，rdb 为 nil 时只检查数据库
func NewHealthChecker(db *gorm.DB, rdb redis.UniversalClient) *health.HealthChecker {
	checker := health.NewHealthChecker(3 * time.Second)
	checker.Register(health.NewPingChecker("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}))
	if rdb != nil {
		checker.Register(health.NewPingChecker("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	return checker
}
