package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/filters"
	"catalog/pkg/middleware"
)

// CollectionService 集合服务
type CollectionService struct {
	uc        *biz.CollectionUsecase
	scheduler *biz.ApplyFiltersScheduler
	channels  *biz.ChannelResolver
	log       *log.Helper
}

// NewCollectionService 创建集合服务
func NewCollectionService(
	uc *biz.CollectionUsecase,
	scheduler *biz.ApplyFiltersScheduler,
	channels *biz.ChannelResolver,
	logger log.Logger,
) *CollectionService {
	return &CollectionService{
		uc:        uc,
		scheduler: scheduler,
		channels:  channels,
		log:       log.NewHelper(log.With(logger, "module", "service/collection")),
	}
}

// requestContext 由请求头中的渠道 token 与语言解析请求上下文
func (s *CollectionService) requestContext(ctx context.Context) (domain.RequestContext, error) {
	info := middleware.ChannelFromContext(ctx)
	return s.channels.Resolve(ctx, info.Token, info.LanguageCode)
}

// ListCollections 分页列出集合
func (s *CollectionService) ListCollections(ctx context.Context, req *ListCollectionsRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, total, err := s.uc.FindAll(ctx, rc, domain.CollectionListOptions{
		TopLevelOnly: req.TopLevelOnly,
		Skip:         req.Skip,
		Take:         req.Take,
	})
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: total}, nil
}

// GetCollection 获取集合
func (s *CollectionService) GetCollection(ctx context.Context, req *CollectionIDRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.FindOne(ctx, rc, req.ID)
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// GetCollectionBySlug 按 slug 获取集合
func (s *CollectionService) GetCollectionBySlug(ctx context.Context, req *SlugRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.FindOneBySlug(ctx, rc, req.Slug)
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// CreateCollection 创建集合
func (s *CollectionService) CreateCollection(ctx context.Context, req *CreateCollectionRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.Create(ctx, rc, biz.CreateCollectionInput{
		ParentID:       req.ParentID,
		IsPrivate:      req.IsPrivate,
		InheritFilters: req.InheritFilters,
		Filters:        req.Filters,
		Translations:   toTranslations(req.Translations),
	})
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// UpdateCollection 更新集合
func (s *CollectionService) UpdateCollection(ctx context.Context, req *UpdateCollectionRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.Update(ctx, rc, biz.UpdateCollectionInput{
		ID:             req.ID,
		IsPrivate:      req.IsPrivate,
		InheritFilters: req.InheritFilters,
		Filters:        req.Filters,
		Translations:   toTranslations(req.Translations),
	})
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// MoveCollection 移动集合
func (s *CollectionService) MoveCollection(ctx context.Context, req *MoveCollectionRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.Move(ctx, rc, biz.MoveCollectionInput{
		CollectionID: req.ID,
		ParentID:     req.ParentID,
		Index:        req.Index,
	})
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// DeleteCollection 删除集合及其后代
func (s *CollectionService) DeleteCollection(ctx context.Context, req *CollectionIDRequest) (*DeletionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.uc.Delete(ctx, rc, req.ID); err != nil {
		return nil, err
	}
	return &DeletionReply{Result: "DELETED"}, nil
}

// GetParent 父集合
func (s *CollectionService) GetParent(ctx context.Context, req *CollectionIDRequest) (*CollectionReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.uc.GetParent(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toCollectionReply(c, rc), nil
}

// GetChildren 子集合
func (s *CollectionService) GetChildren(ctx context.Context, req *CollectionIDRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.GetChildren(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}

// GetDescendants 后代集合
func (s *CollectionService) GetDescendants(ctx context.Context, req *DescendantsRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.GetDescendants(ctx, req.ID, req.Depth)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}

// GetAncestors 祖先集合
func (s *CollectionService) GetAncestors(ctx context.Context, req *CollectionIDRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.GetAncestors(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}

// GetBreadcrumbs 面包屑
func (s *CollectionService) GetBreadcrumbs(ctx context.Context, req *CollectionIDRequest) (*BreadcrumbsReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	crumbs, err := s.uc.GetBreadcrumbs(ctx, rc, req.ID)
	if err != nil {
		return nil, err
	}
	return &BreadcrumbsReply{Items: crumbs}, nil
}

// GetProductVariantIDs 集合当前成员
func (s *CollectionService) GetProductVariantIDs(ctx context.Context, req *CollectionIDRequest) (*VariantIDsReply, error) {
	ids, err := s.uc.GetCollectionProductVariantIDs(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &VariantIDsReply{ProductVariantIDs: ids}, nil
}

// GetCollectionsForProduct 商品所属集合
func (s *CollectionService) GetCollectionsForProduct(ctx context.Context, req *ProductCollectionsRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.GetCollectionsByProductID(ctx, rc, req.ProductID, req.PublicOnly)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}

// ListFilters 可用的过滤器定义
func (s *CollectionService) ListFilters(_ context.Context, _ *struct{}) ([]*filters.Definition, error) {
	return s.uc.GetAvailableFilters(), nil
}

// PreviewCollectionVariants 预览过滤器匹配的规格
func (s *CollectionService) PreviewCollectionVariants(ctx context.Context, req *PreviewRequest) (*PreviewReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	variants, total, err := s.uc.PreviewCollectionVariants(ctx, rc, biz.PreviewInput{
		ParentID:       req.ParentID,
		InheritFilters: req.InheritFilters,
		Filters:        req.Filters,
		Skip:           req.Skip,
		Take:           req.Take,
	})
	if err != nil {
		return nil, err
	}
	items := make([]*VariantReply, 0, len(variants))
	for _, v := range variants {
		items = append(items, &VariantReply{ID: v.ID, ProductID: v.ProductID, Name: v.Name, SKU: v.SKU, Price: v.Price})
	}
	return &PreviewReply{Items: items, TotalItems: total}, nil
}

// TriggerApplyFilters 手动触发重算
func (s *CollectionService) TriggerApplyFilters(ctx context.Context, req *TriggerRequest) (*JobReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	job, err := s.scheduler.TriggerApplyFiltersJob(ctx, rc, domain.TriggerOptions{
		CollectionIDs:              req.CollectionIDs,
		ApplyToChangedVariantsOnly: req.ApplyToChangedVariantsOnly,
	})
	if err != nil {
		return nil, err
	}
	return toJobReply(job), nil
}

// SetApplyOnProductUpdates 开关商品变更自动重算
func (s *CollectionService) SetApplyOnProductUpdates(_ context.Context, req *ToggleRequest) (*ToggleReply, error) {
	s.uc.SetApplyAllFiltersOnProductUpdates(req.Enabled)
	return &ToggleReply{Enabled: s.scheduler.ApplyAllFiltersOnProductUpdates()}, nil
}

// GetJob 查询任务
func (s *CollectionService) GetJob(ctx context.Context, req *JobIDRequest) (*JobReply, error) {
	job, err := s.scheduler.GetJob(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toJobReply(job), nil
}

// CancelJob 取消任务
func (s *CollectionService) CancelJob(ctx context.Context, req *JobIDRequest) (*JobReply, error) {
	job, err := s.scheduler.CancelJob(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return toJobReply(job), nil
}

// AssignCollectionsToChannel 关联集合到渠道
func (s *CollectionService) AssignCollectionsToChannel(ctx context.Context, req *ChannelCollectionsRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.AssignToChannel(ctx, rc, req.CollectionIDs, req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}

// RemoveCollectionsFromChannel 解除集合与渠道的关联
func (s *CollectionService) RemoveCollectionsFromChannel(ctx context.Context, req *ChannelCollectionsRequest) (*CollectionListReply, error) {
	rc, err := s.requestContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.uc.RemoveFromChannel(ctx, rc, req.CollectionIDs, req.ChannelID)
	if err != nil {
		return nil, err
	}
	return &CollectionListReply{Items: toCollectionReplies(items, rc), TotalItems: int64(len(items))}, nil
}
