package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig Redis 存储配置
type RedisStoreConfig struct {
	KeyPrefix  string // 默认 jobqueue
	GroupName  string // Consumer Group 名称
	ConsumerID string // Consumer ID，重启后保持不变才能接管未确认的消息
	MaxLen     int64  // Stream 最大长度
}

// 仅当 Hash 中任务的 state 等于 ARGV[2] 时写入
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then
	return -1
end
if cjson.decode(cur)['state'] ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// 空闲或由同一 owner 持有时写入并刷新过期时间
var acquireLeaseScript = redis.NewScript(`
local owner = redis.call('GET', KEYS[1])
if owner and owner ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore 基于 Redis Streams 的任务存储
//
// 每个队列一个 Stream，消息只携带任务ID；任务本体保存在 Hash 中，取消请求保存在 Set 中，
// partition 租约是带过期时间的 String，多个进程共享同一 partition 时以此保证串行。
type RedisStore struct {
	client redis.UniversalClient
	config RedisStoreConfig
	log    *log.Helper

	mu        sync.Mutex
	groups    map[string]bool
	recovered map[string]bool
	backlog   map[string][]*Job
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient, config RedisStoreConfig, logger log.Logger) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "jobqueue"
	}
	if config.GroupName == "" {
		config.GroupName = "workers"
	}
	if config.ConsumerID == "" {
		config.ConsumerID = "worker-1"
	}
	if config.MaxLen == 0 {
		config.MaxLen = 10000
	}
	return &RedisStore{
		client:    client,
		config:    config,
		log:       log.NewHelper(log.With(logger, "module", "jobqueue/redis")),
		groups:    make(map[string]bool),
		recovered: make(map[string]bool),
		backlog:   make(map[string][]*Job),
	}
}

func (s *RedisStore) streamKey(queue string) string {
	return fmt.Sprintf("%s:stream:%s", s.config.KeyPrefix, queue)
}

func (s *RedisStore) jobsKey() string {
	return s.config.KeyPrefix + ":jobs"
}

func (s *RedisStore) cancelKey() string {
	return s.config.KeyPrefix + ":cancelled"
}

func (s *RedisStore) leaseKey(queue, partition string) string {
	return fmt.Sprintf("%s:lease:%s:%s", s.config.KeyPrefix, queue, partition)
}

// ensureGroup 创建 Consumer Group（如果不存在）
func (s *RedisStore) ensureGroup(ctx context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[queue] {
		return nil
	}
	err := s.client.XGroupCreateMkStream(ctx, s.streamKey(queue), s.config.GroupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	s.groups[queue] = true
	return nil
}

// Enqueue 保存任务并写入 Stream
func (s *RedisStore) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.jobsKey(), job.ID, data)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey(job.Queue),
		MaxLen: s.config.MaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"job_id":    job.ID,
			"partition": job.Partition,
		},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Errorf("failed to enqueue job %s: %v", job.ID, err)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue 读取下一个任务。首次调用时先接管本 consumer 未确认的消息
func (s *RedisStore) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	if err := s.ensureGroup(ctx, queue); err != nil {
		return nil, err
	}

	s.mu.Lock()
	recovered := s.recovered[queue]
	s.mu.Unlock()
	if !recovered {
		if err := s.claimPending(ctx, queue); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if backlog := s.backlog[queue]; len(backlog) > 0 {
		job := backlog[0]
		s.backlog[queue] = backlog[1:]
		s.mu.Unlock()
		return job, nil
	}
	s.mu.Unlock()

	for {
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.config.GroupName,
			Consumer: s.config.ConsumerID,
			Streams:  []string{s.streamKey(queue), ">"},
			Count:    1,
			Block:    block,
		}).Result()
		if err != nil {
			// 超时不算错误
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			return nil, nil
		}
		if job := s.load(ctx, queue, streams[0].Messages[0]); job != nil {
			return job, nil
		}
	}
}

// claimPending 读取 Pending Entries List 中属于本 consumer 的消息
func (s *RedisStore) claimPending(ctx context.Context, queue string) error {
	var jobs []*Job
	last := "0"
	for {
		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.config.GroupName,
			Consumer: s.config.ConsumerID,
			Streams:  []string{s.streamKey(queue), last},
			Count:    100,
			Block:    -1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read pending jobs: %w", err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			break
		}
		for _, msg := range streams[0].Messages {
			last = msg.ID
			if job := s.load(ctx, queue, msg); job != nil {
				jobs = append(jobs, job)
			}
		}
	}
	if len(jobs) > 0 {
		s.log.Infof("recovered %d unacknowledged jobs on queue %s", len(jobs), queue)
	}

	s.mu.Lock()
	s.backlog[queue] = append(s.backlog[queue], jobs...)
	s.recovered[queue] = true
	s.mu.Unlock()
	return nil
}

// load 根据消息加载任务，任务不存在时确认并丢弃消息
func (s *RedisStore) load(ctx context.Context, queue string, msg redis.XMessage) *Job {
	jobID, _ := msg.Values["job_id"].(string)
	job, err := s.Get(ctx, jobID)
	if err != nil {
		s.log.Warnf("dropping stream message %s for job %q: %v", msg.ID, jobID, err)
		s.client.XAck(ctx, s.streamKey(queue), s.config.GroupName, msg.ID)
		return nil
	}
	job.messageID = msg.ID
	return job
}

// Ack 确认消息
func (s *RedisStore) Ack(ctx context.Context, job *Job) error {
	if job.messageID == "" {
		return nil
	}
	if err := s.client.XAck(ctx, s.streamKey(job.Queue), s.config.GroupName, job.messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", job.messageID, err)
	}
	return nil
}

// Save 保存任务
func (s *RedisStore) Save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.client.HSet(ctx, s.jobsKey(), job.ID, data).Err()
}

// Get 获取任务
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.HGet(ctx, s.jobsKey(), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	job.store = s
	return &job, nil
}

// RequestCancel 记录取消请求
func (s *RedisStore) RequestCancel(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, s.cancelKey(), id).Err()
}

// IsCancelled 是否已请求取消
func (s *RedisStore) IsCancelled(ctx context.Context, id string) (bool, error) {
	return s.client.SIsMember(ctx, s.cancelKey(), id).Result()
}

// Transition 比较并保存任务状态
func (s *RedisStore) Transition(ctx context.Context, job *Job, from State) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}
	n, err := transitionScript.Run(ctx, s.client, []string{s.jobsKey()}, job.ID, string(from), data).Int()
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s: %w", job.ID, err)
	}
	if n < 0 {
		return false, ErrJobNotFound
	}
	return n == 1, nil
}

// AcquireLease 获取或续期 partition 租约
func (s *RedisStore) AcquireLease(ctx context.Context, queue, partition, owner string, ttl time.Duration) (bool, error) {
	n, err := acquireLeaseScript.Run(ctx, s.client, []string{s.leaseKey(queue, partition)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s/%s: %w", queue, partition, err)
	}
	return n == 1, nil
}

// ReleaseLease 释放 partition 租约
func (s *RedisStore) ReleaseLease(ctx context.Context, queue, partition, owner string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{s.leaseKey(queue, partition)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s/%s: %w", queue, partition, err)
	}
	return nil
}

// Depth 队列中尚未被读取的消息数
func (s *RedisStore) Depth(ctx context.Context, queue string) (int64, error) {
	return s.client.XLen(ctx, s.streamKey(queue)).Result()
}
