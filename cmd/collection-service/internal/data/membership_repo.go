package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/cmd/collection-service/internal/filters"
	"catalog/pkg/database"
)

const (
	// DefaultChunkSize 单条语句处理的最大规格数
	DefaultChunkSize = 5000

	chunkConcurrency = 4
)

// MembershipRepository 集合成员存储：差异计算与分块写入
type MembershipRepository struct {
	data     *Data
	registry *filters.Registry
	log      *log.Helper
}

// NewMembershipRepo 创建成员仓储
func NewMembershipRepo(data *Data, registry *filters.Registry, logger log.Logger) domain.MembershipRepository {
	return &MembershipRepository{
		data:     data,
		registry: registry,
		log:      log.NewHelper(log.With(logger, "module", "data/membership")),
	}
}

// candidates 过滤器链匹配的未删除规格ID子查询
func (r *MembershipRepository) candidates(db *gorm.DB, chain []domain.Filter) (*gorm.DB, error) {
	filtered, err := r.registry.ApplyChain(db.Table(filters.VariantTable).Select("product_variants.id"), chain)
	if err != nil {
		return nil, err
	}
	// 外层包裹一次，避免 OR 组合的过滤器绕过软删除条件
	return db.Table(filters.VariantTable).
		Select("id").
		Where("deleted_at IS NULL").
		Where("id IN (?)", filtered), nil
}

// Diff 计算差异：toAdd = 候选 ∖ 现有，toRemove = 现有 ∖ 候选。始终读主库
func (r *MembershipRepository) Diff(ctx context.Context, collectionID string, chain []domain.Filter) (*domain.MembershipDelta, error) {
	db := database.Primary(r.data.DB(ctx))

	candidate, err := r.candidates(db, chain)
	if err != nil {
		return nil, err
	}
	existing := db.Model(&CollectionVariantPO{}).
		Select("product_variant_id").
		Where("collection_id = ?", collectionID)

	delta := &domain.MembershipDelta{}
	if err := db.Table("(?) AS candidate", candidate).
		Where("candidate.id NOT IN (?)", existing).
		Order("candidate.id").
		Pluck("candidate.id", &delta.ToAdd).Error; err != nil {
		r.log.Errorf("failed to compute additions for collection %s: %v", collectionID, err)
		return nil, err
	}

	candidate, err = r.candidates(db, chain)
	if err != nil {
		return nil, err
	}
	if err := db.Model(&CollectionVariantPO{}).
		Where("collection_id = ?", collectionID).
		Where("product_variant_id NOT IN (?)", candidate).
		Order("product_variant_id").
		Pluck("product_variant_id", &delta.ToRemove).Error; err != nil {
		r.log.Errorf("failed to compute removals for collection %s: %v", collectionID, err)
		return nil, err
	}
	return delta, nil
}

// VariantIDs 当前成员
func (r *MembershipRepository) VariantIDs(ctx context.Context, collectionID string) ([]string, error) {
	var ids []string
	if err := database.Primary(r.data.DB(ctx)).
		Model(&CollectionVariantPO{}).
		Where("collection_id = ?", collectionID).
		Order("product_variant_id").
		Pluck("product_variant_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ApplyDelta 在单个事务内并发写入各个分块
func (r *MembershipRepository) ApplyDelta(ctx context.Context, collectionID string, delta *domain.MembershipDelta, chunkSize int) error {
	if delta == nil || delta.Empty() {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	// 分块共享同一事务，失败的分块不取消其它语句
	return r.data.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var g errgroup.Group
		g.SetLimit(chunkConcurrency)

		for _, chunk := range chunkIDs(delta.ToRemove, chunkSize) {
			chunk := chunk
			g.Go(func() error {
				return tx.
					Where("collection_id = ? AND product_variant_id IN ?", collectionID, chunk).
					Delete(&CollectionVariantPO{}).Error
			})
		}
		for _, chunk := range chunkIDs(delta.ToAdd, chunkSize) {
			rows := make([]CollectionVariantPO, 0, len(chunk))
			for _, id := range chunk {
				rows = append(rows, CollectionVariantPO{CollectionID: collectionID, ProductVariantID: id})
			}
			g.Go(func() error {
				return tx.
					Clauses(clause.OnConflict{DoNothing: true}).
					Create(&rows).Error
			})
		}

		if err := g.Wait(); err != nil {
			r.log.Errorf("failed to apply delta to collection %s (+%d -%d): %v",
				collectionID, len(delta.ToAdd), len(delta.ToRemove), err)
			return err
		}
		return nil
	})
}

// Unlink 分块移除成员关联
func (r *MembershipRepository) Unlink(ctx context.Context, collectionID string, variantIDs []string, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	db := r.data.DB(ctx)
	for _, chunk := range chunkIDs(variantIDs, chunkSize) {
		if err := db.Where("collection_id = ? AND product_variant_id IN ?", collectionID, chunk).
			Delete(&CollectionVariantPO{}).Error; err != nil {
			r.log.Errorf("failed to unlink variants from collection %s: %v", collectionID, err)
			return err
		}
	}
	return nil
}

// Preview 预览过滤器链匹配的规格
func (r *MembershipRepository) Preview(ctx context.Context, chain []domain.Filter, skip, take int) ([]*domain.ProductVariant, int64, error) {
	query := func() (*gorm.DB, error) {
		db := r.data.DB(ctx)
		candidate, err := r.candidates(db, chain)
		if err != nil {
			return nil, err
		}
		return db.Model(&ProductVariantPO{}).Where("id IN (?)", candidate), nil
	}

	// 查询总数
	q, err := query()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 查询列表
	if q, err = query(); err != nil {
		return nil, 0, err
	}
	q = q.Order("name, id")
	if skip > 0 {
		q = q.Offset(skip)
	}
	if take > 0 {
		q = q.Limit(take)
	}
	var pos []ProductVariantPO
	if err := q.Find(&pos).Error; err != nil {
		return nil, 0, err
	}
	items := make([]*domain.ProductVariant, 0, len(pos))
	for i := range pos {
		items = append(items, pos[i].toDomain())
	}
	return items, total, nil
}

func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
