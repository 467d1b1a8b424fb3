package biz

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"catalog/cmd/collection-service/internal/domain"
)

// FilterResolver 沿邻接表向上/向下遍历集合树
//
// 所有遍历都是迭代实现，带访问集合和深度上限，树中出现环时记录错误并返回已收集的结果。
type FilterResolver struct {
	repo     domain.CollectionRepository
	maxDepth int
	log      *log.Helper
}

// NewFilterResolver 创建过滤器解析器
func NewFilterResolver(repo domain.CollectionRepository, opts CatalogOptions, logger log.Logger) *FilterResolver {
	return &FilterResolver{
		repo:     repo,
		maxDepth: opts.withDefaults().MaxTreeDepth,
		log:      log.NewHelper(log.With(logger, "module", "biz/filter-resolver")),
	}
}

// EffectiveFilters 集合实际生效的过滤器链
//
// inheritFilters 为 true 时向上收集祖先的过滤器，遇到 inheritFilters 为 false 的祖先
// 收集其过滤器后停止，根集合不参与。祖先过滤器按从根到近的顺序排在自身过滤器之前。
func (r *FilterResolver) EffectiveFilters(ctx context.Context, c *domain.Collection) ([]domain.Filter, error) {
	if !c.InheritFilters {
		return append([]domain.Filter(nil), c.Filters...), nil
	}

	ancestors, err := r.walkUp(ctx, c, true)
	if err != nil {
		return nil, err
	}

	var chain []domain.Filter
	for i := len(ancestors) - 1; i >= 0; i-- {
		chain = append(chain, ancestors[i].Filters...)
	}
	return append(chain, c.Filters...), nil
}

// Ancestors 祖先集合，从父集合开始，不含根集合
func (r *FilterResolver) Ancestors(ctx context.Context, id string) ([]*domain.Collection, error) {
	c, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.walkUp(ctx, c, false)
}

// walkUp 向上遍历。stopAtCutoff 为 true 时在第一个 inheritFilters=false 的祖先处停止（含该祖先）
func (r *FilterResolver) walkUp(ctx context.Context, c *domain.Collection, stopAtCutoff bool) ([]*domain.Collection, error) {
	var ancestors []*domain.Collection
	visited := map[string]struct{}{c.ID: {}}

	parentID := c.ParentID
	for depth := 0; parentID != ""; depth++ {
		if depth >= r.maxDepth {
			r.log.Errorf("collection %s exceeds the maximum tree depth of %d", c.ID, r.maxDepth)
			return ancestors, nil
		}
		if _, seen := visited[parentID]; seen {
			r.log.Errorf("circular reference detected in collection tree: %s is its own ancestor", parentID)
			return ancestors, nil
		}
		visited[parentID] = struct{}{}

		parent, err := r.repo.GetByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, domain.ErrCollectionNotFound) {
				r.log.Warnf("collection %s references missing parent %s", c.ID, parentID)
				return ancestors, nil
			}
			return nil, err
		}
		if parent.IsRoot {
			return ancestors, nil
		}
		ancestors = append(ancestors, parent)
		if stopAtCutoff && !parent.InheritFilters {
			return ancestors, nil
		}
		parentID = parent.ParentID
	}
	return ancestors, nil
}

// Descendants 后代集合，先序遍历，兄弟之间按 position 排序。maxDepth <= 0 表示不限（仍受全局深度上限约束）
func (r *FilterResolver) Descendants(ctx context.Context, id string, maxDepth int) ([]*domain.Collection, error) {
	if maxDepth <= 0 || maxDepth > r.maxDepth {
		maxDepth = r.maxDepth
	}

	type frame struct {
		collection *domain.Collection
		depth      int
	}

	children, err := r.repo.GetChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	visited := map[string]struct{}{id: {}}
	stack := make([]frame, 0, len(children))
	for i := len(children) - 1; i >= 0; i-- {
		stack = append(stack, frame{children[i], 1})
	}

	var descendants []*domain.Collection
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[top.collection.ID]; seen {
			r.log.Errorf("circular reference detected in collection tree below %s at %s", id, top.collection.ID)
			continue
		}
		visited[top.collection.ID] = struct{}{}
		descendants = append(descendants, top.collection)

		if top.depth >= maxDepth {
			continue
		}
		children, err := r.repo.GetChildren(ctx, top.collection.ID)
		if err != nil {
			return nil, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{children[i], top.depth + 1})
		}
	}
	return descendants, nil
}
