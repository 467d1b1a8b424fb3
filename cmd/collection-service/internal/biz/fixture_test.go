package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"catalog/cmd/collection-service/internal/data"
	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/filters"
	"catalog/cmd/collection-service/internal/infra"
	"catalog/pkg/database"
	"catalog/pkg/jobqueue"
)

// countingStore 统计入队次数
type countingStore struct {
	*jobqueue.MemoryStore
	enqueued atomic.Int32
}

func (s *countingStore) Enqueue(ctx context.Context, job *jobqueue.Job) error {
	s.enqueued.Add(1)
	return s.MemoryStore.Enqueue(ctx, job)
}

type fixture struct {
	db          *gorm.DB
	store       *countingStore
	jobs        *jobqueue.Service
	bus         *infra.EventBus
	registry    *filters.Registry
	collections domain.CollectionRepository
	membership  *MembershipUsecase
	resolver    *FilterResolver
	roots       *RootCache
	scheduler   *ApplyFiltersScheduler
	uc          *CollectionUsecase
	rc          domain.RequestContext

	mu     sync.Mutex
	events []domain.Event
}

func newFixture(t *testing.T, mutate ...func(*CatalogOptions)) *fixture {
	t.Helper()
	logger := log.DefaultLogger
	ctx := context.Background()

	opts := DefaultCatalogOptions()
	opts.FetchRetries = 1
	opts.FetchRetryDelay = time.Millisecond
	for _, m := range mutate {
		m(&opts)
	}

	db, err := data.NewDB(&database.Config{Driver: "sqlite", LogLevel: "silent"}, logger)
	require.NoError(t, err)
	d, cleanup, err := data.NewData(db, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	require.NoError(t, db.Create(&data.ChannelPO{
		ID:                  "ch-default",
		Code:                "default",
		Token:               "default-token",
		DefaultLanguageCode: "en",
		IsDefault:           true,
	}).Error)

	registry := filters.NewDefaultRegistry()
	collections := data.NewCollectionRepo(d, logger)
	membershipRepo := data.NewMembershipRepo(d, registry, logger)
	channelRepo := data.NewChannelRepo(d, logger)

	store := &countingStore{MemoryStore: jobqueue.NewMemoryStore()}
	jobs := jobqueue.NewService(store, jobqueue.Options{Workers: 1, PollTimeout: 20 * time.Millisecond}, logger)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = jobs.Stop(stopCtx)
	})

	bus := infra.NewEventBus(logger)
	resolver := NewFilterResolver(collections, opts, logger)
	roots := NewRootCache(collections, nil, opts, logger)
	channels := NewChannelResolver(channelRepo)
	membership := NewMembershipUsecase(membershipRepo, resolver, opts, logger)
	scheduler := NewApplyFiltersScheduler(jobs, collections, channels, membership, bus, opts, logger)
	t.Cleanup(scheduler.Close)

	uc := NewCollectionUsecase(collections, membershipRepo, channelRepo, registry, resolver, roots,
		scheduler, bus, data.NewTransaction(d), opts, logger)

	rc, err := channels.Resolve(ctx, "default-token", "")
	require.NoError(t, err)

	f := &fixture{
		db:          db,
		store:       store,
		jobs:        jobs,
		bus:         bus,
		registry:    registry,
		collections: collections,
		membership:  membership,
		resolver:    resolver,
		roots:       roots,
		scheduler:   scheduler,
		uc:          uc,
		rc:          rc,
	}
	bus.Subscribe(f.record, domain.EventTypeCollection, domain.EventTypeCollectionModification)
	return f
}

func (f *fixture) record(_ context.Context, e domain.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fixture) recorded() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...)
}

func (f *fixture) resetEvents() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

// runJobs 同步处理队列中的全部任务
func (f *fixture) runJobs(t *testing.T) []domain.ApplyFiltersJobResult {
	t.Helper()
	ctx := context.Background()
	var results []domain.ApplyFiltersJobResult
	for {
		job, err := f.store.Dequeue(ctx, domain.ApplyFiltersQueue, 10*time.Millisecond)
		require.NoError(t, err)
		if job == nil {
			return results
		}
		job.State = jobqueue.StateRunning
		require.NoError(t, f.store.Save(ctx, job))
		result, err := f.scheduler.process(ctx, job)
		require.NoError(t, err)
		results = append(results, result.(domain.ApplyFiltersJobResult))
	}
}

func (f *fixture) seedVariants(t *testing.T, productID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	rows := make([]data.ProductVariantPO, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-v%02d", productID, i)
		ids = append(ids, id)
		rows = append(rows, data.ProductVariantPO{ID: id, ProductID: productID, Name: id, Price: int64(i)})
	}
	require.NoError(t, f.db.Create(&rows).Error)
	return ids
}

func (f *fixture) create(t *testing.T, parentID, name string, inherit bool, fs ...domain.FilterInput) *domain.Collection {
	t.Helper()
	c, err := f.uc.Create(context.Background(), f.rc, CreateCollectionInput{
		ParentID:       parentID,
		InheritFilters: &inherit,
		Filters:        fs,
		Translations:   []domain.CollectionTranslation{{LanguageCode: "en", Name: name}},
	})
	require.NoError(t, err)
	return c
}

func productIDs(ids ...string) domain.FilterInput {
	b, _ := json.Marshal(ids)
	return domain.FilterInput{
		Code:      filters.ProductIDFilterCode,
		Arguments: []domain.FilterArg{{Name: "productIds", Value: string(b)}},
	}
}

func priceRange(minPrice, maxPrice int) domain.FilterInput {
	return domain.FilterInput{
		Code: filters.VariantPriceFilterCode,
		Arguments: []domain.FilterArg{
			{Name: "minPrice", Value: fmt.Sprint(minPrice)},
			{Name: "maxPrice", Value: fmt.Sprint(maxPrice)},
		},
	}
}
