package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"catalog/pkg/monitoring"
)

// ProcessFunc 任务处理函数，返回值序列化后作为任务结果
type ProcessFunc func(ctx context.Context, job *Job) (any, error)

// Options 队列服务配置
type Options struct {
	Workers     int           // 全局并发上限，默认 4
	PollTimeout time.Duration // 单次阻塞读取时长，默认 1s
	LeaseTTL    time.Duration // partition 租约有效期，默认 30s
	Owner       string        // 租约持有者标识，默认随机生成
}

// Service 持久化任务队列
//
// 同一 (queue, partition) 内的任务严格串行，不同 partition 之间并发，
// 总并发受 Workers 限制。执行前需持有 Store 中的 partition 租约，
// 共享同一 Store 的多个进程之间同样串行。Service 实现 kratos transport.Server，可直接注册到 App。
type Service struct {
	store Store
	opts  Options
	log   *log.Helper

	sem chan struct{}

	mu      sync.Mutex
	queues  map[string]*Queue
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewService 创建队列服务
func NewService(store Store, opts Options, logger log.Logger) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 30 * time.Second
	}
	if opts.Owner == "" {
		opts.Owner = uuid.New().String()
	}
	return &Service{
		store:  store,
		opts:   opts,
		log:    log.NewHelper(log.With(logger, "module", "jobqueue")),
		sem:    make(chan struct{}, opts.Workers),
		queues: make(map[string]*Queue),
	}
}

// Queue 命名队列
type Queue struct {
	name    string
	process ProcessFunc
	svc     *Service

	mu    sync.Mutex
	lanes map[string][]*Job
}

// Name 队列名
func (q *Queue) Name() string { return q.name }

// CreateQueue 创建队列。服务已启动时立即开始消费
func (s *Service) CreateQueue(name string, process ProcessFunc) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[name]; ok {
		return q
	}
	q := &Queue{
		name:    name,
		process: process,
		svc:     s,
		lanes:   make(map[string][]*Job),
	}
	s.queues[name] = q
	if s.running {
		s.startQueue(q)
	}
	return q
}

// Add 入队任务
func (q *Queue) Add(ctx context.Context, partition string, data any) (*Job, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Queue:     q.name,
		Partition: partition,
		Data:      payload,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
		store:     q.svc.store,
	}
	if err := q.svc.store.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	q.svc.log.Debugf("job %s added to queue %s (partition=%s)", job.ID, q.name, partition)
	return job, nil
}

// Start 启动所有队列的消费循环
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	for _, q := range s.queues {
		s.startQueue(q)
	}
	s.log.Infof("job queue started with %d workers", s.opts.Workers)
	return nil
}

// Stop 停止消费并等待正在执行的任务结束
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("job queue stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get 获取任务
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// Cancel 取消任务。等待中的任务直接终止，运行中的任务在下一个检查点终止
func (s *Service) Cancel(ctx context.Context, id string) (*Job, error) {
	for {
		job, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		if err := s.store.RequestCancel(ctx, id); err != nil {
			return nil, err
		}
		if job.State != StatePending {
			return job, nil
		}
		job.Error = ErrCancelled.Error()
		job.settle(StateCancelled)
		ok, err := s.store.Transition(ctx, job, StatePending)
		if err != nil {
			return nil, err
		}
		if ok {
			return job, nil
		}
		// 已被执行者领取，重新读取
	}
}

// startQueue 调用方持有 s.mu
func (s *Service) startQueue(q *Queue) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		q.poll(s.ctx)
	}()
}

func (q *Queue) poll(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := q.svc.store.Dequeue(ctx, q.name, q.svc.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.svc.log.Errorf("failed to dequeue from %s: %v", q.name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.svc.opts.PollTimeout):
			}
			continue
		}
		if job != nil {
			q.dispatch(ctx, job)
		}
	}
}

// dispatch 放入 partition 通道，通道空闲时启动一个串行执行者
func (q *Queue) dispatch(ctx context.Context, job *Job) {
	q.mu.Lock()
	pending, busy := q.lanes[job.Partition]
	q.lanes[job.Partition] = append(pending, job)
	q.mu.Unlock()

	if busy {
		return
	}
	q.svc.wg.Add(1)
	go func() {
		defer q.svc.wg.Done()
		q.drain(ctx, job.Partition)
	}()
}

func (q *Queue) drain(ctx context.Context, partition string) {
	for {
		q.mu.Lock()
		pending := q.lanes[partition]
		if len(pending) == 0 {
			delete(q.lanes, partition)
			q.mu.Unlock()
			return
		}
		job := pending[0]
		q.mu.Unlock()

		if !q.acquire(ctx, partition) {
			return
		}
		select {
		case q.svc.sem <- struct{}{}:
		case <-ctx.Done():
			q.release(ctx, partition)
			return
		}
		stop := q.keepLease(ctx, partition)
		q.execute(ctx, job)
		stop()
		<-q.svc.sem
		q.release(ctx, partition)

		q.mu.Lock()
		q.lanes[partition] = q.lanes[partition][1:]
		q.mu.Unlock()
	}
}

func (q *Queue) execute(ctx context.Context, job *Job) {
	s := q.svc
	defer func() {
		if err := s.store.Ack(context.WithoutCancel(ctx), job); err != nil {
			s.log.Warnf("failed to ack job %s: %v", job.ID, err)
		}
	}()

	// 重新读取，排队期间可能已被取消
	if latest, err := s.store.Get(ctx, job.ID); err == nil {
		latest.messageID = job.messageID
		job = latest
	}
	if job.State.Terminal() {
		return
	}
	from := job.State
	if job.Cancelled(ctx) {
		job.Error = ErrCancelled.Error()
		job.settle(StateCancelled)
		q.finish(ctx, job, from)
		return
	}

	now := time.Now().UTC()
	job.State = StateRunning
	job.StartedAt = &now
	job.Attempts++
	if !q.transition(ctx, job, from) {
		return
	}

	result, err := q.run(ctx, job)
	switch {
	case err == nil:
		if result != nil {
			if b, mErr := json.Marshal(result); mErr == nil {
				job.Result = b
			}
		}
		job.Progress = 100
		job.settle(StateCompleted)
	case errors.Is(err, ErrCancelled):
		job.Error = err.Error()
		job.settle(StateCancelled)
	default:
		job.Error = err.Error()
		job.settle(StateFailed)
		s.log.Errorf("job %s on queue %s failed: %v", job.ID, q.name, err)
	}
	q.finish(ctx, job, StateRunning)
}

func (q *Queue) finish(ctx context.Context, job *Job, from State) {
	if q.transition(ctx, job, from) {
		monitoring.JobsTotal.WithLabelValues(q.name, string(job.State)).Inc()
	}
}

func (q *Queue) run(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return q.process(ctx, job)
}

// transition 保存状态变更，已保存的状态不再是 from 时放弃
func (q *Queue) transition(ctx context.Context, job *Job, from State) bool {
	ok, err := q.svc.store.Transition(context.WithoutCancel(ctx), job, from)
	if err != nil {
		q.svc.log.Errorf("failed to save job %s: %v", job.ID, err)
		return false
	}
	if !ok {
		q.svc.log.Warnf("job %s left state %s before it could move to %s", job.ID, from, job.State)
	}
	return ok
}

// acquire 等待 partition 租约，ctx 结束时返回 false
func (q *Queue) acquire(ctx context.Context, partition string) bool {
	s := q.svc
	for {
		ok, err := s.store.AcquireLease(ctx, q.name, partition, s.opts.Owner, s.opts.LeaseTTL)
		if ok {
			return true
		}
		if err != nil && ctx.Err() == nil {
			s.log.Warnf("failed to acquire lease %s/%s: %v", q.name, partition, err)
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.opts.PollTimeout):
		}
	}
}

func (q *Queue) release(ctx context.Context, partition string) {
	s := q.svc
	if err := s.store.ReleaseLease(context.WithoutCancel(ctx), q.name, partition, s.opts.Owner); err != nil {
		s.log.Warnf("failed to release lease %s/%s: %v", q.name, partition, err)
	}
}

// keepLease 任务执行期间按 LeaseTTL/3 续期，返回的函数停止续期
func (q *Queue) keepLease(ctx context.Context, partition string) func() {
	s := q.svc
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.store.AcquireLease(ctx, q.name, partition, s.opts.Owner, s.opts.LeaseTTL)
				if err == nil && !ok {
					s.log.Errorf("lease %s/%s taken over by another owner", q.name, partition)
				} else if err != nil && ctx.Err() == nil {
					s.log.Warnf("failed to renew lease %s/%s: %v", q.name, partition, err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
