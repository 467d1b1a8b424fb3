package biz

import (
	"context"
	"errors"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/cache"
)

// RootCache 按渠道 token 缓存根集合
//
// 进程内 map 为一级缓存，cache.Cache（通常是 Redis）保存根集合ID供其他实例复用。
// 根集合不存在时惰性创建，创建使用基础连接，调用方事务回滚后根集合依然存在。
type RootCache struct {
	repo            domain.CollectionRepository
	shared          cache.Cache
	defaultLanguage string
	log             *log.Helper

	group singleflight.Group
	mu    sync.RWMutex
	roots map[string]*domain.Collection
}

// NewRootCache 创建根集合缓存，shared 可以为 nil
func NewRootCache(repo domain.CollectionRepository, shared cache.Cache, opts CatalogOptions, logger log.Logger) *RootCache {
	return &RootCache{
		repo:            repo,
		shared:          shared,
		defaultLanguage: opts.withDefaults().DefaultLanguageCode,
		log:             log.NewHelper(log.With(logger, "module", "biz/root-cache")),
		roots:           make(map[string]*domain.Collection),
	}
}

func rootKey(token string) string {
	return "root:" + token
}

// Get 获取渠道根集合，不存在时创建
func (c *RootCache) Get(ctx context.Context, rc domain.RequestContext) (*domain.Collection, error) {
	token := rc.ChannelToken()
	c.mu.RLock()
	root, ok := c.roots[token]
	c.mu.RUnlock()
	if ok {
		return root, nil
	}

	v, err, _ := c.group.Do(token, func() (interface{}, error) {
		root, err := c.load(ctx, rc)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.roots[token] = root
		c.mu.Unlock()
		return root, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Collection), nil
}

func (c *RootCache) load(ctx context.Context, rc domain.RequestContext) (*domain.Collection, error) {
	token := rc.ChannelToken()

	if c.shared != nil {
		id, err := c.shared.Get(ctx, rootKey(token))
		switch {
		case err == nil:
			root, err := c.repo.GetByID(ctx, id)
			if err == nil && root.IsRoot {
				return root, nil
			}
			c.log.Warnf("cached root %s for channel %s is stale", id, token)
		case !errors.Is(err, cache.ErrMiss):
			c.log.Warnf("failed to read root id from shared cache: %v", err)
		}
	}

	root, err := c.repo.FindRoot(ctx, rc.ChannelID())
	if err != nil {
		return nil, err
	}
	if root == nil {
		if root, err = c.create(ctx, rc); err != nil {
			return nil, err
		}
	}

	if c.shared != nil {
		if err := c.shared.Set(ctx, rootKey(token), root.ID, 0); err != nil {
			c.log.Warnf("failed to store root id in shared cache: %v", err)
		}
	}
	return root, nil
}

func (c *RootCache) create(ctx context.Context, rc domain.RequestContext) (*domain.Collection, error) {
	lang := c.defaultLanguage
	if rc.Channel != nil && rc.Channel.DefaultLanguageCode != "" {
		lang = rc.Channel.DefaultLanguageCode
	}
	root := &domain.Collection{
		ID:       uuid.NewString(),
		IsRoot:   true,
		Position: 0,
		Filters:  []domain.Filter{},
		Translations: []domain.CollectionTranslation{{
			LanguageCode: lang,
			Name:         domain.RootCollectionName,
			Slug:         domain.RootCollectionName,
			Description:  "The root of the Collection tree.",
		}},
		ChannelIDs: []string{rc.ChannelID()},
	}
	if err := c.repo.CreateRoot(ctx, root); err != nil {
		return nil, err
	}
	c.log.Infof("created root collection %s for channel %s", root.ID, rc.ChannelToken())
	return root, nil
}

// Invalidate 清除某个渠道的缓存
func (c *RootCache) Invalidate(ctx context.Context, token string) {
	c.mu.Lock()
	delete(c.roots, token)
	c.mu.Unlock()
	if c.shared != nil {
		if err := c.shared.Delete(ctx, rootKey(token)); err != nil {
			c.log.Warnf("failed to invalidate shared root id: %v", err)
		}
	}
}

// Reset 清空进程内缓存
func (c *RootCache) Reset() {
	c.mu.Lock()
	c.roots = make(map[string]*domain.Collection)
	c.mu.Unlock()
}
