package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"

	"catalog/cmd/collection-service/internal/domain"
	pkgerrors "catalog/pkg/errors"
	"catalog/pkg/jobqueue"
	"catalog/pkg/monitoring"
	"catalog/pkg/observability"
	"catalog/pkg/resilience"
)

// ApplyFiltersScheduler 集合过滤器重算调度
//
// 商品/规格变更事件按渠道 token 合并后入队一个“全部集合”任务；任务按渠道分区，
// 同一渠道同一时刻只有一个任务在执行。实现 kratos transport.Server 以便注册到 App。
type ApplyFiltersScheduler struct {
	queue       *jobqueue.Queue
	jobs        *jobqueue.Service
	collections domain.CollectionRepository
	channels    *ChannelResolver
	membership  *MembershipUsecase
	bus         domain.EventBus
	coalescer   *Coalescer[domain.RequestContext]
	opts        CatalogOptions
	log         *log.Helper

	applyOnUpdates atomic.Bool
	unsubscribe    func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewApplyFiltersScheduler 创建调度器并注册重算队列
func NewApplyFiltersScheduler(
	jobs *jobqueue.Service,
	collections domain.CollectionRepository,
	channels *ChannelResolver,
	membership *MembershipUsecase,
	bus domain.EventBus,
	opts CatalogOptions,
	logger log.Logger,
) *ApplyFiltersScheduler {
	opts = opts.withDefaults()
	s := &ApplyFiltersScheduler{
		jobs:        jobs,
		collections: collections,
		channels:    channels,
		membership:  membership,
		bus:         bus,
		opts:        opts,
		log:         log.NewHelper(log.With(logger, "module", "biz/apply-filters")),
	}
	s.applyOnUpdates.Store(opts.ApplyOnProductUpdates)
	s.coalescer = NewCoalescer(opts.DebounceWindow, opts.MaxDebounceWait, s.fire)
	s.queue = jobs.CreateQueue(domain.ApplyFiltersQueue, s.process)
	s.unsubscribe = bus.Subscribe(s.onProductChange, domain.EventTypeProduct, domain.EventTypeProductVariant)
	return s
}

// SetApplyAllFiltersOnProductUpdates 开关商品变更触发的自动重算。
// 批量导入期间可以关闭，导入结束后重新打开并手动调用 TriggerApplyFiltersJob。
func (s *ApplyFiltersScheduler) SetApplyAllFiltersOnProductUpdates(enabled bool) {
	s.applyOnUpdates.Store(enabled)
	s.log.Infof("apply filters on product updates set to %t", enabled)
}

// ApplyAllFiltersOnProductUpdates 当前开关状态
func (s *ApplyFiltersScheduler) ApplyAllFiltersOnProductUpdates() bool {
	return s.applyOnUpdates.Load()
}

func (s *ApplyFiltersScheduler) onProductChange(_ context.Context, event domain.Event) {
	if !s.applyOnUpdates.Load() {
		s.log.Debugf("detected product data change (%s), skipping because apply on product updates is disabled", event.EventType())
		return
	}

	var rc domain.RequestContext
	switch e := event.(type) {
	case domain.ProductEvent:
		rc = e.Ctx
	case domain.ProductVariantEvent:
		rc = e.Ctx
	default:
		return
	}
	monitoring.DebounceTriggers.WithLabelValues("received").Inc()
	s.coalescer.Notify(rc.ChannelToken(), rc)
}

func (s *ApplyFiltersScheduler) fire(token string, rc domain.RequestContext) {
	monitoring.DebounceTriggers.WithLabelValues("fired").Inc()
	if _, err := s.TriggerApplyFiltersJob(context.Background(), rc, domain.TriggerOptions{}); err != nil {
		s.log.Errorf("failed to trigger apply filters job for channel %s: %v", token, err)
	}
}

// TriggerApplyFiltersJob 入队一个重算任务。CollectionIDs 为空表示渠道内全部集合，
// ApplyToChangedVariantsOnly 默认 true
func (s *ApplyFiltersScheduler) TriggerApplyFiltersJob(ctx context.Context, rc domain.RequestContext, opts domain.TriggerOptions) (*jobqueue.Job, error) {
	changedOnly := true
	if opts.ApplyToChangedVariantsOnly != nil {
		changedOnly = *opts.ApplyToChangedVariantsOnly
	}
	ids := opts.CollectionIDs
	if ids == nil {
		ids = []string{}
	}

	data := domain.ApplyFiltersJobData{
		Ctx: domain.JobContext{
			ChannelToken: rc.ChannelToken(),
			LanguageCode: rc.LanguageCode,
		},
		CollectionIDs:              ids,
		ApplyToChangedVariantsOnly: changedOnly,
	}
	job, err := s.queue.Add(ctx, rc.ChannelToken(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue apply filters job: %w", err)
	}
	s.log.Debugf("enqueued apply filters job %s (channel=%s collections=%d)", job.ID, rc.ChannelToken(), len(ids))
	return job, nil
}

// GetJob 查询任务
func (s *ApplyFiltersScheduler) GetJob(ctx context.Context, id string) (*jobqueue.Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		return nil, pkgerrors.NewNotFound("job not found")
	}
	return job, err
}

// CancelJob 请求取消任务
func (s *ApplyFiltersScheduler) CancelJob(ctx context.Context, id string) (*jobqueue.Job, error) {
	job, err := s.jobs.Cancel(ctx, id)
	if errors.Is(err, jobqueue.ErrJobNotFound) {
		return nil, pkgerrors.NewNotFound("job not found")
	}
	return job, err
}

// process 处理一个重算任务，逐个集合计算并写入差异
func (s *ApplyFiltersScheduler) process(ctx context.Context, job *jobqueue.Job) (result any, err error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "collection.apply_filters_job",
		attribute.String("job.id", job.ID),
		attribute.String("job.partition", job.Partition),
	)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	var data domain.ApplyFiltersJobData
	if err := job.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid job data: %w", err)
	}
	rc, err := s.channels.Resolve(ctx, data.Ctx.ChannelToken, data.Ctx.LanguageCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %q: %w", data.Ctx.ChannelToken, err)
	}

	ids := data.CollectionIDs
	if len(ids) == 0 {
		// 处理时才展开全部集合，拿到最新的树
		if ids, err = s.collections.ListIDs(ctx, rc.ChannelID()); err != nil {
			return nil, fmt.Errorf("failed to list collections: %w", err)
		}
	}
	s.log.Infof("processing %d collections (job=%s channel=%s)", len(ids), job.ID, rc.ChannelToken())

	completed := 0
	for _, id := range ids {
		if job.Cancelled(ctx) {
			return nil, fmt.Errorf("%w: %w", jobqueue.ErrCancelled, domain.ErrJobCancelled)
		}

		collection, err := s.fetch(ctx, id)
		completed++
		if err != nil {
			s.log.Warnf("could not find collection %s, skipping: %v", id, err)
		} else {
			s.applyOne(ctx, rc, collection, data.ApplyToChangedVariantsOnly)
		}

		if err := job.SetProgress(ctx, progressPercent(completed, len(ids))); err != nil {
			s.log.Warnf("failed to report progress of job %s: %v", job.ID, err)
		}
	}
	return domain.ApplyFiltersJobResult{ProcessedCollections: completed}, nil
}

// fetch 带重试读取集合，容忍刚创建时的只读副本延迟
func (s *ApplyFiltersScheduler) fetch(ctx context.Context, id string) (*domain.Collection, error) {
	return resilience.Do(ctx, resilience.Fixed(s.opts.FetchRetries, s.opts.FetchRetryDelay), func() (*domain.Collection, error) {
		return s.collections.GetByID(ctx, id)
	})
}

func (s *ApplyFiltersScheduler) applyOne(ctx context.Context, rc domain.RequestContext, c *domain.Collection, changedOnly bool) {
	result, err := s.membership.Apply(ctx, c, changedOnly)
	if err != nil {
		name := c.Translate(rc.Language(), rc.Channel.DefaultLanguageCode).Name
		s.log.Errorf("an error occurred when processing the filters for the collection %q (id: %s): %v", name, c.ID, err)
		return
	}
	for _, chunk := range chunkStrings(result.Affected, s.opts.NotifyChunkSize) {
		s.bus.Publish(ctx, domain.CollectionModificationEvent{
			Ctx:               rc,
			Collection:        c,
			ProductVariantIDs: chunk,
		})
	}
}

func progressPercent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (done*100 + total - 1) / total
}

// Start 启动事件合并循环
func (s *ApplyFiltersScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.coalescer.Run(runCtx)
	}()
	return nil
}

// Stop 停止合并循环，等待中的触发立即入队
func (s *ApplyFiltersScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.coalescer.FlushAll()
	return nil
}

// Close 取消事件订阅
func (s *ApplyFiltersScheduler) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
