package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Store 任务持久化与投递
type Store interface {
	// Enqueue 保存任务并投递到队列
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue 取出下一个任务，block 时间内没有任务返回 nil
	Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error)
	// Ack 确认任务已处理完毕
	Ack(ctx context.Context, job *Job) error
	// Save 保存任务状态
	Save(ctx context.Context, job *Job) error
	// Get 获取任务
	Get(ctx context.Context, id string) (*Job, error)
	// RequestCancel 记录取消请求
	RequestCancel(ctx context.Context, id string) error
	// IsCancelled 是否已请求取消
	IsCancelled(ctx context.Context, id string) (bool, error)
	// Transition 仅当已保存的状态仍为 from 时保存任务
	Transition(ctx context.Context, job *Job, from State) (bool, error)
	// AcquireLease 获取或续期 (queue, partition) 租约，被其他 owner 持有时返回 false
	AcquireLease(ctx context.Context, queue, partition, owner string, ttl time.Duration) (bool, error)
	// ReleaseLease 释放 owner 持有的租约
	ReleaseLease(ctx context.Context, queue, partition, owner string) error
}

// MemoryStore 进程内存储，用于测试与本地开发
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string][]byte
	queues    map[string][]string
	notify    map[string]chan struct{}
	cancelled map[string]struct{}
	leases    map[string]lease
}

type lease struct {
	owner   string
	expires time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string][]byte),
		queues:    make(map[string][]string),
		notify:    make(map[string]chan struct{}),
		cancelled: make(map[string]struct{}),
		leases:    make(map[string]lease),
	}
}

func (s *MemoryStore) signal(queue string) chan struct{} {
	ch, ok := s.notify[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		s.notify[queue] = ch
	}
	return ch
}

func (s *MemoryStore) Enqueue(ctx context.Context, job *Job) error {
	if err := s.Save(ctx, job); err != nil {
		return err
	}
	s.mu.Lock()
	s.queues[job.Queue] = append(s.queues[job.Queue], job.ID)
	ch := s.signal(job.Queue)
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
	return nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	timer := time.NewTimer(block)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if ids := s.queues[queue]; len(ids) > 0 {
			id := ids[0]
			s.queues[queue] = ids[1:]
			s.mu.Unlock()
			job, err := s.Get(ctx, id)
			if err == ErrJobNotFound {
				continue
			}
			return job, err
		}
		ch := s.signal(queue)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-ch:
		}
	}
}

func (s *MemoryStore) Ack(context.Context, *Job) error { return nil }

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[job.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	b, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, err
	}
	job.store = s
	return &job, nil
}

func (s *MemoryStore) RequestCancel(_ context.Context, id string) error {
	s.mu.Lock()
	s.cancelled[id] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) IsCancelled(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	_, ok := s.cancelled[id]
	s.mu.Unlock()
	return ok, nil
}

func (s *MemoryStore) Transition(_ context.Context, job *Job, from State) (bool, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.jobs[job.ID]
	if !ok {
		return false, ErrJobNotFound
	}
	var stored struct {
		State State `json:"state"`
	}
	if err := json.Unmarshal(cur, &stored); err != nil {
		return false, err
	}
	if stored.State != from {
		return false, nil
	}
	s.jobs[job.ID] = b
	return true, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, queue, partition, owner string, ttl time.Duration) (bool, error) {
	key := queue + ":" + partition
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leases[key]; ok && l.owner != owner && now.Before(l.expires) {
		return false, nil
	}
	s.leases[key] = lease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, queue, partition, owner string) error {
	key := queue + ":" + partition
	s.mu.Lock()
	if l, ok := s.leases[key]; ok && l.owner == owner {
		delete(s.leases, key)
	}
	s.mu.Unlock()
	return nil
}
