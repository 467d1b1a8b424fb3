package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/infra"
	"catalog/cmd/collection-service/internal/server"
	"catalog/pkg/cache"
	"catalog/pkg/database"
	"catalog/pkg/events"
	"catalog/pkg/jobqueue"
)

func newDatabaseConfig(c *Config) *database.Config {
	return &c.Data.Database
}

func newHTTPConfig(c *Config) *server.HTTPConfig {
	return &c.Server.HTTP
}

func newCatalogOptions(c *Config) biz.CatalogOptions {
	return c.Catalog
}

// newRedis 创建 Redis 客户端，未配置地址时返回 nil
func newRedis(c *Config, logger log.Logger) (redis.UniversalClient, func(), error) {
	if c.Data.Redis.Addr == "" {
		return nil, func() {}, nil
	}
	helper := log.NewHelper(log.With(logger, "module", "redis"))

	client := redis.NewClient(&redis.Options{
		Addr:     c.Data.Redis.Addr,
		Password: c.Data.Redis.Password,
		DB:       c.Data.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	helper.Info("Redis client connected successfully")

	cleanup := func() {
		helper.Info("Closing Redis client...")
		if err := client.Close(); err != nil {
			helper.Errorf("Failed to close Redis client: %v", err)
		}
	}
	return client, cleanup, nil
}

// newSharedCache 多实例部署时根集合ID经 redis 共享
func newSharedCache(rdb redis.UniversalClient) cache.Cache {
	if rdb == nil {
		return nil
	}
	return cache.NewRedisCache(rdb, &cache.CacheOptions{KeyPrefix: "catalog"})
}

func newJobStore(c *Config, rdb redis.UniversalClient, logger log.Logger) (jobqueue.Store, error) {
	switch c.JobQueue.Backend {
	case "", "memory":
		return jobqueue.NewMemoryStore(), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("jobqueue backend redis requires data.redis.addr")
		}
		return jobqueue.NewRedisStore(rdb, jobqueue.RedisStoreConfig{
			GroupName:  Name,
			ConsumerID: id,
			MaxLen:     c.JobQueue.StreamMaxLen,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported jobqueue backend: %s", c.JobQueue.Backend)
	}
}

func newJobService(c *Config, store jobqueue.Store, logger log.Logger) *jobqueue.Service {
	return jobqueue.NewService(store, jobqueue.Options{
		Workers:     c.JobQueue.Workers,
		PollTimeout: c.JobQueue.PollTimeout,
		LeaseTTL:    c.JobQueue.LeaseTTL,
		Owner:       id,
	}, logger)
}

// newPublisher 配置了 brokers 时发布到 kafka，否则只记录在内存中
func newPublisher(c *Config, logger log.Logger) (events.Publisher, func(), error) {
	if len(c.Kafka.Brokers) == 0 {
		return events.NewMemoryPublisher(), func() {}, nil
	}
	pc := events.DefaultPublisherConfig()
	pc.Brokers = c.Kafka.Brokers
	if c.Kafka.CollectionTopic != "" {
		pc.Topic = c.Kafka.CollectionTopic
	}
	p, err := events.NewKafkaPublisher(pc)
	if err != nil {
		return nil, nil, err
	}
	helper := log.NewHelper(log.With(logger, "module", "publisher"))
	return p, func() {
		if err := p.Close(); err != nil {
			helper.Errorf("Failed to close kafka publisher: %v", err)
		}
	}, nil
}

// newProductConsumer 未配置 brokers 时返回 nil
func newProductConsumer(c *Config, channels domain.ChannelRepository, bus domain.EventBus, logger log.Logger) *infra.ProductConsumer {
	if len(c.Kafka.Brokers) == 0 {
		return nil
	}
	return infra.NewProductConsumer(infra.ConsumerConfig{
		Brokers: c.Kafka.Brokers,
		Topic:   c.Kafka.ProductTopic,
		GroupID: c.Kafka.GroupID,
	}, channels, bus, logger)
}
