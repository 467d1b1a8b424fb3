package domain

import (
	"context"
)

// CollectionRepository 集合树存储接口
type CollectionRepository interface {
	// Create 创建集合 (含翻译与渠道关联)
	Create(ctx context.Context, collection *Collection) error

	// CreateRoot 在事务之外创建根集合，保证触发操作回滚时根集合仍然存在
	CreateRoot(ctx context.Context, root *Collection) error

	// Update 更新集合并替换翻译
	Update(ctx context.Context, collection *Collection) error

	// Delete 删除集合实体
	Delete(ctx context.Context, id string) error

	// GetByID 根据ID获取集合
	GetByID(ctx context.Context, id string) (*Collection, error)

	// GetByIDInChannel 根据ID获取渠道内的集合
	GetByIDInChannel(ctx context.Context, id, channelID string) (*Collection, error)

	// ListByIDs 批量获取集合，忽略不存在的ID
	ListByIDs(ctx context.Context, ids []string) ([]*Collection, error)

	// FindRoot 获取渠道的根集合，不存在时返回 nil
	FindRoot(ctx context.Context, channelID string) (*Collection, error)

	// GetParent 获取父集合，根集合返回 nil
	GetParent(ctx context.Context, id string) (*Collection, error)

	// GetChildren 获取子集合，按 position 排序
	GetChildren(ctx context.Context, parentID string) ([]*Collection, error)

	// MaxChildPosition 子集合最大 position，无子集合时返回 0
	MaxChildPosition(ctx context.Context, parentID string) (int, error)

	// SavePositions 保存兄弟集合的父节点与 position
	SavePositions(ctx context.Context, collections []*Collection) error

	// ListIDs 渠道内全部非根集合ID
	ListIDs(ctx context.Context, channelID string) ([]string, error)

	// List 分页列出渠道内的集合
	List(ctx context.Context, channelID string, opts CollectionListOptions) ([]*Collection, int64, error)

	// FindBySlug 根据 slug 查找渠道内的集合
	FindBySlug(ctx context.Context, channelID, slug string) ([]*Collection, error)

	// AssignToChannel 关联集合到渠道
	AssignToChannel(ctx context.Context, ids []string, channelID string) error

	// RemoveFromChannel 解除集合与渠道的关联
	RemoveFromChannel(ctx context.Context, ids []string, channelID string) error

	// ListByProductID 包含指定商品任一规格的集合
	ListByProductID(ctx context.Context, channelID, productID string, publicOnly bool) ([]*Collection, error)
}

// MembershipRepository 集合成员 (集合-规格多对多关系) 存储接口
type MembershipRepository interface {
	// Diff 计算过滤器链与当前成员之间的差异
	Diff(ctx context.Context, collectionID string, filters []Filter) (*MembershipDelta, error)

	// VariantIDs 当前成员
	VariantIDs(ctx context.Context, collectionID string) ([]string, error)

	// ApplyDelta 在单个事务内分块应用差异
	ApplyDelta(ctx context.Context, collectionID string, delta *MembershipDelta, chunkSize int) error

	// Unlink 分块移除成员关联
	Unlink(ctx context.Context, collectionID string, variantIDs []string, chunkSize int) error

	// Preview 预览过滤器链匹配的规格
	Preview(ctx context.Context, filters []Filter, skip, take int) ([]*ProductVariant, int64, error)
}

// ChannelRepository 渠道接口
type ChannelRepository interface {
	GetByToken(ctx context.Context, token string) (*Channel, error)
	GetByID(ctx context.Context, id string) (*Channel, error)
	GetDefault(ctx context.Context) (*Channel, error)
}

// Transaction 事务执行器
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
