package data

import (
	"context"
	"errors"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalog/cmd/collection-service/internal/domain"
)

// CollectionRepository 集合树存储实现 (邻接表)
type CollectionRepository struct {
	data *Data
	log  *log.Helper
}

// NewCollectionRepo 创建集合仓储
func NewCollectionRepo(data *Data, logger log.Logger) domain.CollectionRepository {
	return &CollectionRepository{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/collection")),
	}
}

func inChannel(channelID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("collections.id IN (SELECT collection_id FROM collection_channels WHERE channel_id = ?)", channelID)
	}
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Translations", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Preload("Channels")
}

// Create 创建集合
func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := r.data.DB(ctx).Create(toCollectionPO(c)).Error; err != nil {
		r.log.Errorf("failed to create collection: %v", err)
		return err
	}
	return nil
}

// CreateRoot 使用基础连接创建根集合
func (r *CollectionRepository) CreateRoot(ctx context.Context, root *domain.Collection) error {
	now := time.Now().UTC()
	root.CreatedAt, root.UpdatedAt = now, now
	if err := r.data.Base(ctx).Create(toCollectionPO(root)).Error; err != nil {
		r.log.Errorf("failed to create root collection: %v", err)
		return err
	}
	return nil
}

// Update 更新集合并替换翻译
func (r *CollectionRepository) Update(ctx context.Context, c *domain.Collection) error {
	c.UpdatedAt = time.Now().UTC()
	po := toCollectionPO(c)

	return r.data.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CollectionPO{}).
			Where("id = ?", c.ID).
			Updates(map[string]interface{}{
				"is_private":      c.IsPrivate,
				"inherit_filters": c.InheritFilters,
				"filters":         datatypes.NewJSONType(nonNilFilters(c.Filters)),
				"parent_id":       po.ParentID,
				"position":        c.Position,
				"updated_at":      c.UpdatedAt,
			}).Error; err != nil {
			r.log.Errorf("failed to update collection %s: %v", c.ID, err)
			return err
		}
		if err := tx.Where("collection_id = ?", c.ID).Delete(&CollectionTranslationPO{}).Error; err != nil {
			return err
		}
		if len(po.Translations) > 0 {
			if err := tx.Create(&po.Translations).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 删除集合及其翻译、渠道关联和剩余成员关联
func (r *CollectionRepository) Delete(ctx context.Context, id string) error {
	return r.data.DB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&CollectionTranslationPO{}, &CollectionChannelPO{}, &CollectionVariantPO{}} {
			if err := tx.Where("collection_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&CollectionPO{}, "id = ?", id).Error; err != nil {
			r.log.Errorf("failed to delete collection %s: %v", id, err)
			return err
		}
		return nil
	})
}

// GetByID 根据ID获取集合
func (r *CollectionRepository) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	return r.first(r.data.DB(ctx).Where("collections.id = ?", id))
}

// GetByIDInChannel 根据ID获取渠道内的集合
func (r *CollectionRepository) GetByIDInChannel(ctx context.Context, id, channelID string) (*domain.Collection, error) {
	return r.first(r.data.DB(ctx).Scopes(inChannel(channelID)).Where("collections.id = ?", id))
}

func (r *CollectionRepository) first(q *gorm.DB) (*domain.Collection, error) {
	var po CollectionPO
	if err := q.Scopes(withRelations).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCollectionNotFound
		}
		r.log.Errorf("failed to get collection: %v", err)
		return nil, err
	}
	return po.toDomain(), nil
}

func (r *CollectionRepository) find(q *gorm.DB) ([]*domain.Collection, error) {
	var pos []CollectionPO
	if err := q.Scopes(withRelations).Find(&pos).Error; err != nil {
		r.log.Errorf("failed to list collections: %v", err)
		return nil, err
	}
	out := make([]*domain.Collection, 0, len(pos))
	for i := range pos {
		out = append(out, pos[i].toDomain())
	}
	return out, nil
}

// ListByIDs 批量获取集合
func (r *CollectionRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Collection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(r.data.DB(ctx).Where("collections.id IN ?", ids).Order("position, id"))
}

// FindRoot 获取渠道根集合
func (r *CollectionRepository) FindRoot(ctx context.Context, channelID string) (*domain.Collection, error) {
	root, err := r.first(r.data.DB(ctx).Scopes(inChannel(channelID)).Where("is_root = ?", true))
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return nil, nil
	}
	return root, err
}

// GetParent 获取父集合
func (r *CollectionRepository) GetParent(ctx context.Context, id string) (*domain.Collection, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParent() {
		return nil, nil
	}
	parent, err := r.GetByID(ctx, c.ParentID)
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return nil, nil
	}
	return parent, err
}

// GetChildren 获取子集合
func (r *CollectionRepository) GetChildren(ctx context.Context, parentID string) ([]*domain.Collection, error) {
	return r.find(r.data.DB(ctx).Where("parent_id = ?", parentID).Order("position, id"))
}

// MaxChildPosition 子集合最大 position
func (r *CollectionRepository) MaxChildPosition(ctx context.Context, parentID string) (int, error) {
	var maxPosition int
	if err := r.data.DB(ctx).
		Model(&CollectionPO{}).
		Select("COALESCE(MAX(position), 0)").
		Where("parent_id = ?", parentID).
		Scan(&maxPosition).Error; err != nil {
		return 0, err
	}
	return maxPosition, nil
}

// SavePositions 保存父节点与排序
func (r *CollectionRepository) SavePositions(ctx context.Context, collections []*domain.Collection) error {
	return r.data.DB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range collections {
			var parentID *string
			if c.ParentID != "" {
				parentID = &c.ParentID
			}
			if err := tx.Model(&CollectionPO{}).
				Where("id = ?", c.ID).
				Updates(map[string]interface{}{
					"parent_id":  parentID,
					"position":   c.Position,
					"updated_at": time.Now().UTC(),
				}).Error; err != nil {
				r.log.Errorf("failed to save position of collection %s: %v", c.ID, err)
				return err
			}
		}
		return nil
	})
}

// ListIDs 渠道内全部非根集合ID
func (r *CollectionRepository) ListIDs(ctx context.Context, channelID string) ([]string, error) {
	var ids []string
	if err := r.data.DB(ctx).
		Model(&CollectionPO{}).
		Scopes(inChannel(channelID)).
		Where("is_root = ?", false).
		Order("position, id").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// List 分页列出渠道内的集合
func (r *CollectionRepository) List(ctx context.Context, channelID string, opts domain.CollectionListOptions) ([]*domain.Collection, int64, error) {
	query := func() *gorm.DB {
		q := r.data.DB(ctx).Model(&CollectionPO{}).Scopes(inChannel(channelID)).Where("is_root = ?", false)
		if opts.TopLevelOnly {
			q = q.Where("parent_id IN (SELECT id FROM collections WHERE is_root = ?)", true)
		}
		return q
	}

	// 查询总数
	var total int64
	if err := query().Count(&total).Error; err != nil {
		r.log.Errorf("failed to count collections: %v", err)
		return nil, 0, err
	}

	// 查询列表
	q := query().Order("position, id")
	if opts.Skip > 0 {
		q = q.Offset(opts.Skip)
	}
	if opts.Take > 0 {
		q = q.Limit(opts.Take)
	}
	items, err := r.find(q)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindBySlug 根据 slug 查找
func (r *CollectionRepository) FindBySlug(ctx context.Context, channelID, slug string) ([]*domain.Collection, error) {
	return r.find(r.data.DB(ctx).
		Scopes(inChannel(channelID)).
		Where("collections.id IN (SELECT collection_id FROM collection_translations WHERE slug = ?)", slug).
		Order("id"))
}

// AssignToChannel 关联集合到渠道
func (r *CollectionRepository) AssignToChannel(ctx context.Context, ids []string, channelID string) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]CollectionChannelPO, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, CollectionChannelPO{CollectionID: id, ChannelID: channelID})
	}
	return r.data.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// RemoveFromChannel 解除渠道关联
func (r *CollectionRepository) RemoveFromChannel(ctx context.Context, ids []string, channelID string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.data.DB(ctx).
		Where("channel_id = ? AND collection_id IN ?", channelID, ids).
		Delete(&CollectionChannelPO{}).Error
}

// ListByProductID 包含该商品任一规格的集合
func (r *CollectionRepository) ListByProductID(ctx context.Context, channelID, productID string, publicOnly bool) ([]*domain.Collection, error) {
	q := r.data.DB(ctx).
		Scopes(inChannel(channelID)).
		Where(`collections.id IN (
			SELECT cpv.collection_id FROM collection_product_variants cpv
			JOIN product_variants pv ON pv.id = cpv.product_variant_id
			WHERE pv.product_id = ? AND pv.deleted_at IS NULL)`, productID)
	if publicOnly {
		q = q.Where("is_private = ?", false)
	}
	return r.find(q.Order("position, id"))
}
