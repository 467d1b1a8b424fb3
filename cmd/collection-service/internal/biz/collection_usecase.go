package biz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/filters"
)

// CreateCollectionInput 创建集合
type CreateCollectionInput struct {
	ParentID       string
	IsPrivate      bool
	InheritFilters *bool // 默认 true
	Filters        []domain.FilterInput
	Translations   []domain.CollectionTranslation
}

// UpdateCollectionInput 更新集合，nil 字段保持不变
type UpdateCollectionInput struct {
	ID             string
	IsPrivate      *bool
	InheritFilters *bool
	Filters        *[]domain.FilterInput
	Translations   []domain.CollectionTranslation
}

// MoveCollectionInput 移动集合到新的父集合下的指定位置
type MoveCollectionInput struct {
	CollectionID string
	ParentID     string
	Index        int
}

// PreviewInput 预览过滤器匹配的规格
type PreviewInput struct {
	ParentID       string
	InheritFilters bool
	Filters        []domain.FilterInput
	Skip           int
	Take           int
}

// Breadcrumb 面包屑节点
type Breadcrumb struct {
	ID   string
	Name string
	Slug string
}

// CollectionUsecase 集合树操作与查询
type CollectionUsecase struct {
	repo       domain.CollectionRepository
	membership domain.MembershipRepository
	channels   domain.ChannelRepository
	registry   *filters.Registry
	resolver   *FilterResolver
	roots      *RootCache
	scheduler  *ApplyFiltersScheduler
	bus        domain.EventBus
	tx         domain.Transaction
	opts       CatalogOptions
	log        *log.Helper
}

// NewCollectionUsecase 创建集合用例
func NewCollectionUsecase(
	repo domain.CollectionRepository,
	membership domain.MembershipRepository,
	channels domain.ChannelRepository,
	registry *filters.Registry,
	resolver *FilterResolver,
	roots *RootCache,
	scheduler *ApplyFiltersScheduler,
	bus domain.EventBus,
	tx domain.Transaction,
	opts CatalogOptions,
	logger log.Logger,
) *CollectionUsecase {
	return &CollectionUsecase{
		repo:       repo,
		membership: membership,
		channels:   channels,
		registry:   registry,
		resolver:   resolver,
		roots:      roots,
		scheduler:  scheduler,
		bus:        bus,
		tx:         tx,
		opts:       opts.withDefaults(),
		log:        log.NewHelper(log.With(logger, "module", "biz/collection")),
	}
}

// Create 创建集合并触发该集合的重算
func (uc *CollectionUsecase) Create(ctx context.Context, rc domain.RequestContext, input CreateCollectionInput) (*domain.Collection, error) {
	chain, err := uc.registry.ParseInputs(input.Filters)
	if err != nil {
		return nil, err
	}

	// 根集合必须在任何事务之外解析
	root, err := uc.roots.Get(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root collection: %w", err)
	}
	parentID := root.ID
	if input.ParentID != "" {
		parent, err := uc.repo.GetByIDInChannel(ctx, input.ParentID, rc.ChannelID())
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				return nil, fmt.Errorf("%w: %s", domain.ErrParentCollectionNotFound, input.ParentID)
			}
			return nil, err
		}
		parentID = parent.ID
	}

	c := &domain.Collection{
		ID:             uuid.NewString(),
		ParentID:       parentID,
		IsPrivate:      input.IsPrivate,
		InheritFilters: input.InheritFilters == nil || *input.InheritFilters,
		Filters:        chain,
		ChannelIDs:     []string{rc.ChannelID()},
	}
	if c.Translations, err = uc.prepareTranslations(ctx, rc, c.ID, input.Translations); err != nil {
		return nil, err
	}

	maxPosition, err := uc.repo.MaxChildPosition(ctx, parentID)
	if err != nil {
		return nil, err
	}
	c.Position = maxPosition + 1

	if err := uc.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if _, err := uc.scheduler.TriggerApplyFiltersJob(ctx, rc, domain.TriggerOptions{CollectionIDs: []string{c.ID}}); err != nil {
		return nil, err
	}

	created, err := uc.repo.GetByIDInChannel(ctx, c.ID, rc.ChannelID())
	if err != nil {
		return nil, err
	}
	uc.bus.Publish(ctx, domain.CollectionEvent{Ctx: rc, Collection: created, Action: domain.CollectionCreated, Input: input})
	return created, nil
}

// Update 更新集合。过滤器变化时重算该集合并通知全部成员，否则直接通知当前成员
func (uc *CollectionUsecase) Update(ctx context.Context, rc domain.RequestContext, input UpdateCollectionInput) (*domain.Collection, error) {
	c, err := uc.repo.GetByIDInChannel(ctx, input.ID, rc.ChannelID())
	if err != nil {
		return nil, err
	}

	filtersChanged := false
	if input.Filters != nil {
		chain, err := uc.registry.ParseInputs(*input.Filters)
		if err != nil {
			return nil, err
		}
		c.Filters = chain
		filtersChanged = true
	}
	if input.InheritFilters != nil && *input.InheritFilters != c.InheritFilters {
		c.InheritFilters = *input.InheritFilters
		filtersChanged = true
	}
	if input.IsPrivate != nil {
		c.IsPrivate = *input.IsPrivate
	}
	if input.Translations != nil {
		if c.Translations, err = uc.prepareTranslations(ctx, rc, c.ID, input.Translations); err != nil {
			return nil, err
		}
	}

	if err := uc.repo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}

	if filtersChanged {
		changedOnly := false
		if _, err := uc.scheduler.TriggerApplyFiltersJob(ctx, rc, domain.TriggerOptions{
			CollectionIDs:              []string{c.ID},
			ApplyToChangedVariantsOnly: &changedOnly,
		}); err != nil {
			return nil, err
		}
	} else {
		ids, err := uc.membership.VariantIDs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		uc.publishModification(ctx, rc, c, ids)
	}

	updated, err := uc.repo.GetByIDInChannel(ctx, c.ID, rc.ChannelID())
	if err != nil {
		return nil, err
	}
	uc.bus.Publish(ctx, domain.CollectionEvent{Ctx: rc, Collection: updated, Action: domain.CollectionUpdated, Input: input})
	return updated, nil
}

// Move 移动集合。目标父集合不能是自身或自身的后代
func (uc *CollectionUsecase) Move(ctx context.Context, rc domain.RequestContext, input MoveCollectionInput) (*domain.Collection, error) {
	target, err := uc.repo.GetByIDInChannel(ctx, input.CollectionID, rc.ChannelID())
	if err != nil {
		return nil, err
	}
	if target.IsRoot {
		return nil, domain.ErrCannotMoveRoot
	}

	descendants, err := uc.resolver.Descendants(ctx, target.ID, 0)
	if err != nil {
		return nil, err
	}
	if input.ParentID == target.ID || containsCollection(descendants, input.ParentID) {
		return nil, domain.ErrCannotMoveIntoSelf
	}
	if _, err := uc.repo.GetByIDInChannel(ctx, input.ParentID, rc.ChannelID()); err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrParentCollectionNotFound, input.ParentID)
		}
		return nil, err
	}

	siblings, err := uc.repo.GetChildren(ctx, input.ParentID)
	if err != nil {
		return nil, err
	}
	target.ParentID = input.ParentID
	siblings = moveToIndex(input.Index, target, siblings)
	if err := uc.repo.SavePositions(ctx, siblings); err != nil {
		return nil, fmt.Errorf("failed to move collection: %w", err)
	}

	// 继承的过滤器随父集合变化，整棵子树都需要重算
	ids := make([]string, 0, len(descendants)+1)
	ids = append(ids, target.ID)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}
	if _, err := uc.scheduler.TriggerApplyFiltersJob(ctx, rc, domain.TriggerOptions{CollectionIDs: ids}); err != nil {
		return nil, err
	}
	return uc.repo.GetByIDInChannel(ctx, target.ID, rc.ChannelID())
}

// moveToIndex 把 target 插入到 siblings 的 index 处并重新编号
func moveToIndex(index int, target *domain.Collection, siblings []*domain.Collection) []*domain.Collection {
	ordered := make([]*domain.Collection, 0, len(siblings)+1)
	for _, s := range siblings {
		if s.ID != target.ID {
			ordered = append(ordered, s)
		}
	}
	if index < 0 {
		index = 0
	}
	if index > len(ordered) {
		index = len(ordered)
	}
	ordered = append(ordered, nil)
	copy(ordered[index+1:], ordered[index:])
	ordered[index] = target

	for i, c := range ordered {
		c.Position = i + 1
	}
	return ordered
}

func containsCollection(list []*domain.Collection, id string) bool {
	for _, c := range list {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Delete 删除集合及其全部后代，后代按最深优先处理
func (uc *CollectionUsecase) Delete(ctx context.Context, rc domain.RequestContext, id string) error {
	c, err := uc.repo.GetByIDInChannel(ctx, id, rc.ChannelID())
	if err != nil {
		return err
	}
	if c.IsRoot {
		return domain.ErrCannotDeleteRoot
	}
	descendants, err := uc.resolver.Descendants(ctx, c.ID, 0)
	if err != nil {
		return err
	}

	order := make([]*domain.Collection, 0, len(descendants)+1)
	for i := len(descendants) - 1; i >= 0; i-- {
		order = append(order, descendants[i])
	}
	order = append(order, c)

	type orphaned struct {
		collection *domain.Collection
		variantIDs []string
	}
	var events []orphaned
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		for _, coll := range order {
			ids, err := uc.membership.VariantIDs(ctx, coll.ID)
			if err != nil {
				return err
			}
			if err := uc.membership.Unlink(ctx, coll.ID, ids, uc.opts.DeleteChunkSize); err != nil {
				return err
			}
			if err := uc.repo.Delete(ctx, coll.ID); err != nil {
				return err
			}
			events = append(events, orphaned{coll, ids})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", id, err)
	}

	for _, e := range events {
		uc.bus.Publish(ctx, domain.CollectionModificationEvent{Ctx: rc, Collection: e.collection, ProductVariantIDs: e.variantIDs})
	}
	uc.bus.Publish(ctx, domain.CollectionEvent{Ctx: rc, Collection: c, Action: domain.CollectionDeleted, Input: id})
	return nil
}

// AssignToChannel 关联集合到渠道并触发重算
func (uc *CollectionUsecase) AssignToChannel(ctx context.Context, rc domain.RequestContext, ids []string, channelID string) ([]*domain.Collection, error) {
	if _, err := uc.channels.GetByID(ctx, channelID); err != nil {
		return nil, err
	}
	collections, err := uc.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := collectionIDs(collections)
	if err := uc.repo.AssignToChannel(ctx, found, channelID); err != nil {
		return nil, fmt.Errorf("failed to assign collections to channel: %w", err)
	}
	if len(found) > 0 {
		if _, err := uc.scheduler.TriggerApplyFiltersJob(ctx, rc, domain.TriggerOptions{CollectionIDs: found}); err != nil {
			return nil, err
		}
	}
	return uc.inChannel(ctx, found, rc.ChannelID())
}

// RemoveFromChannel 解除集合与渠道的关联，默认渠道不允许移除
func (uc *CollectionUsecase) RemoveFromChannel(ctx context.Context, rc domain.RequestContext, ids []string, channelID string) ([]*domain.Collection, error) {
	defaultChannel, err := uc.channels.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if channelID == defaultChannel.ID {
		return nil, domain.ErrDefaultChannelRemoval
	}

	collections, err := uc.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		affected, err := uc.membership.VariantIDs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if err := uc.repo.RemoveFromChannel(ctx, []string{c.ID}, channelID); err != nil {
			return nil, fmt.Errorf("failed to remove collection %s from channel: %w", c.ID, err)
		}
		uc.publishModification(ctx, rc, c, affected)
	}
	return uc.inChannel(ctx, collectionIDs(collections), rc.ChannelID())
}

func (uc *CollectionUsecase) inChannel(ctx context.Context, ids []string, channelID string) ([]*domain.Collection, error) {
	collections, err := uc.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := collections[:0]
	for _, c := range collections {
		if c.InChannel(channelID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func collectionIDs(collections []*domain.Collection) []string {
	ids := make([]string, 0, len(collections))
	for _, c := range collections {
		ids = append(ids, c.ID)
	}
	return ids
}

func (uc *CollectionUsecase) publishModification(ctx context.Context, rc domain.RequestContext, c *domain.Collection, ids []string) {
	chunks := chunkStrings(ids, uc.opts.NotifyChunkSize)
	if len(chunks) == 0 {
		chunks = [][]string{{}}
	}
	for _, chunk := range chunks {
		uc.bus.Publish(ctx, domain.CollectionModificationEvent{Ctx: rc, Collection: c, ProductVariantIDs: chunk})
	}
}

// prepareTranslations 校验名称，补全并去重 slug
func (uc *CollectionUsecase) prepareTranslations(ctx context.Context, rc domain.RequestContext, id string, in []domain.CollectionTranslation) ([]domain.CollectionTranslation, error) {
	if len(in) == 0 {
		return nil, domain.ErrInvalidCollectionName
	}
	out := make([]domain.CollectionTranslation, 0, len(in))
	for _, t := range in {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, domain.ErrInvalidCollectionName
		}
		if t.LanguageCode == "" {
			t.LanguageCode = rc.Language()
		}
		base := t.Slug
		if base == "" {
			base = t.Name
		}
		unique, err := uc.uniqueSlug(ctx, rc, id, slug.Make(base))
		if err != nil {
			return nil, err
		}
		t.Slug = unique
		out = append(out, t)
	}
	return out, nil
}

// uniqueSlug 渠道内 slug 已被其他集合占用时追加数字后缀
func (uc *CollectionUsecase) uniqueSlug(ctx context.Context, rc domain.RequestContext, id, base string) (string, error) {
	candidate := base
	for i := 1; i <= 100; i++ {
		owners, err := uc.repo.FindBySlug(ctx, rc.ChannelID(), candidate)
		if err != nil {
			return "", err
		}
		taken := false
		for _, o := range owners {
			if o.ID != id {
				taken = true
				break
			}
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// FindAll 分页列出渠道内的集合
func (uc *CollectionUsecase) FindAll(ctx context.Context, rc domain.RequestContext, opts domain.CollectionListOptions) ([]*domain.Collection, int64, error) {
	return uc.repo.List(ctx, rc.ChannelID(), opts)
}

// FindOne 获取渠道内的集合
func (uc *CollectionUsecase) FindOne(ctx context.Context, rc domain.RequestContext, id string) (*domain.Collection, error) {
	return uc.repo.GetByIDInChannel(ctx, id, rc.ChannelID())
}

// FindOneBySlug 按 slug 查找，优先匹配请求语言，其次渠道默认语言
func (uc *CollectionUsecase) FindOneBySlug(ctx context.Context, rc domain.RequestContext, slug string) (*domain.Collection, error) {
	candidates, err := uc.repo.FindBySlug(ctx, rc.ChannelID(), slug)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.ErrCollectionNotFound
	}

	defaultLang := ""
	if rc.Channel != nil {
		defaultLang = rc.Channel.DefaultLanguageCode
	}
	for _, lang := range []string{rc.LanguageCode, defaultLang} {
		if lang == "" {
			continue
		}
		for _, c := range candidates {
			for _, t := range c.Translations {
				if t.Slug == slug && t.LanguageCode == lang {
					return c, nil
				}
			}
		}
	}
	return candidates[0], nil
}

// GetParent 父集合，根集合返回 nil
func (uc *CollectionUsecase) GetParent(ctx context.Context, id string) (*domain.Collection, error) {
	return uc.repo.GetParent(ctx, id)
}

// GetChildren 直接子集合
func (uc *CollectionUsecase) GetChildren(ctx context.Context, id string) ([]*domain.Collection, error) {
	return uc.resolver.Descendants(ctx, id, 1)
}

// GetDescendants 后代集合，maxDepth <= 0 表示不限
func (uc *CollectionUsecase) GetDescendants(ctx context.Context, id string, maxDepth int) ([]*domain.Collection, error) {
	return uc.resolver.Descendants(ctx, id, maxDepth)
}

// GetAncestors 祖先集合，从父集合到根集合之下
func (uc *CollectionUsecase) GetAncestors(ctx context.Context, id string) ([]*domain.Collection, error) {
	return uc.resolver.Ancestors(ctx, id)
}

// GetBreadcrumbs 从根集合到自身的路径
func (uc *CollectionUsecase) GetBreadcrumbs(ctx context.Context, rc domain.RequestContext, id string) ([]Breadcrumb, error) {
	root, err := uc.roots.Get(ctx, rc)
	if err != nil {
		return nil, err
	}
	crumb := func(c *domain.Collection) Breadcrumb {
		defaultLang := uc.opts.DefaultLanguageCode
		if rc.Channel != nil {
			defaultLang = rc.Channel.DefaultLanguageCode
		}
		t := c.Translate(rc.Language(), defaultLang)
		return Breadcrumb{ID: c.ID, Name: t.Name, Slug: t.Slug}
	}
	if id == root.ID {
		return []Breadcrumb{crumb(root)}, nil
	}

	c, err := uc.repo.GetByIDInChannel(ctx, id, rc.ChannelID())
	if err != nil {
		return nil, err
	}
	ancestors, err := uc.resolver.Ancestors(ctx, id)
	if err != nil {
		return nil, err
	}
	crumbs := make([]Breadcrumb, 0, len(ancestors)+2)
	crumbs = append(crumbs, crumb(root))
	for i := len(ancestors) - 1; i >= 0; i-- {
		crumbs = append(crumbs, crumb(ancestors[i]))
	}
	return append(crumbs, crumb(c)), nil
}

// GetCollectionsByProductID 包含该商品任一规格的集合
func (uc *CollectionUsecase) GetCollectionsByProductID(ctx context.Context, rc domain.RequestContext, productID string, publicOnly bool) ([]*domain.Collection, error) {
	return uc.repo.ListByProductID(ctx, rc.ChannelID(), productID, publicOnly)
}

// GetAvailableFilters 已注册的过滤器定义
func (uc *CollectionUsecase) GetAvailableFilters() []*filters.Definition {
	return uc.registry.Definitions()
}

// PreviewCollectionVariants 预览过滤器匹配的规格。指定父集合且继承过滤器时带上父集合的有效过滤器链
func (uc *CollectionUsecase) PreviewCollectionVariants(ctx context.Context, rc domain.RequestContext, input PreviewInput) ([]*domain.ProductVariant, int64, error) {
	chain, err := uc.registry.ParseInputs(input.Filters)
	if err != nil {
		return nil, 0, err
	}
	if input.ParentID != "" && input.InheritFilters {
		parent, err := uc.repo.GetByIDInChannel(ctx, input.ParentID, rc.ChannelID())
		if err != nil {
			return nil, 0, err
		}
		inherited, err := uc.resolver.EffectiveFilters(ctx, parent)
		if err != nil {
			return nil, 0, err
		}
		chain = append(inherited, chain...)
	}
	return uc.membership.Preview(ctx, chain, input.Skip, input.Take)
}

// GetCollectionProductVariantIDs 当前成员
func (uc *CollectionUsecase) GetCollectionProductVariantIDs(ctx context.Context, id string) ([]string, error) {
	return uc.membership.VariantIDs(ctx, id)
}

// SetApplyAllFiltersOnProductUpdates 见 ApplyFiltersScheduler
func (uc *CollectionUsecase) SetApplyAllFiltersOnProductUpdates(enabled bool) {
	uc.scheduler.SetApplyAllFiltersOnProductUpdates(enabled)
}
