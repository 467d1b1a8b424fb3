package main

import (
	"time"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/server"
	"catalog/pkg/config"
	"catalog/pkg/database"
	plog "catalog/pkg/log"
	"catalog/pkg/observability"
)

// Config is application config.
type Config struct {
	Server        ServerConf                  `mapstructure:"server"`
	Data          DataConf                    `mapstructure:"data"`
	Kafka         KafkaConf                   `mapstructure:"kafka"`
	JobQueue      JobQueueConf                `mapstructure:"jobqueue"`
	Catalog       biz.CatalogOptions          `mapstructure:"catalog"`
	Log           plog.Config                 `mapstructure:"log"`
	Observability observability.TracingConfig `mapstructure:"observability"`
}

// ServerConf is server config.
type ServerConf struct {
	HTTP server.HTTPConfig `mapstructure:"http"`
}

// DataConf is data config.
type DataConf struct {
	Database database.Config `mapstructure:"database"`
	Redis    RedisConf       `mapstructure:"redis"`
}

// RedisConf 为空 Addr 时不连接 redis，任务队列与根集合缓存退回进程内实现
type RedisConf struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConf 未配置 brokers 时不消费商品事件，集合事件只在进程内分发
type KafkaConf struct {
	Brokers         []string `mapstructure:"brokers"`
	ProductTopic    string   `mapstructure:"productTopic"`
	CollectionTopic string   `mapstructure:"collectionTopic"`
	GroupID         string   `mapstructure:"groupId"`
}

// JobQueueConf 任务队列配置
type JobQueueConf struct {
	Backend      string        `mapstructure:"backend"` // memory | redis
	Workers      int           `mapstructure:"workers"`
	PollTimeout  time.Duration `mapstructure:"pollTimeout"`
	LeaseTTL     time.Duration `mapstructure:"leaseTTL"`
	StreamMaxLen int64         `mapstructure:"streamMaxLen"`
}

// loadConfig 读取配置文件，COLLECTION_ 前缀的环境变量覆盖同名配置项
func loadConfig(path string) (*Config, error) {
	m := config.NewManager("COLLECTION")
	m.SetDefault("server.http.network", "tcp")
	m.SetDefault("server.http.addr", ":8000")
	m.SetDefault("server.http.timeout", "5s")
	m.SetDefault("data.database.driver", "sqlite")
	m.SetDefault("data.database.source", "file:catalog.db?_pragma=foreign_keys(1)")
	m.SetDefault("data.redis.addr", "")
	m.SetDefault("kafka.productTopic", "catalog.product.events")
	m.SetDefault("kafka.collectionTopic", "catalog.collection.events")
	m.SetDefault("kafka.groupId", "collection-service")
	m.SetDefault("jobqueue.backend", "memory")
	m.SetDefault("jobqueue.workers", 4)
	m.SetDefault("jobqueue.leaseTTL", "30s")
	m.SetDefault("log.level", "info")
	m.SetDefault("log.format", "json")

	if err := m.LoadConfig(path); err != nil {
		return nil, err
	}

	c := &Config{Catalog: biz.DefaultCatalogOptions()}
	if err := m.Unmarshal(c); err != nil {
		return nil, err
	}
	return c, nil
}
