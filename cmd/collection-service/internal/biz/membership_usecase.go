package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/monitoring"
	"catalog/pkg/observability"
)

const tracerName = "collection-service/biz"

// MembershipUsecase 集合成员重算：解析过滤器链、计算差异、分块写入
type MembershipUsecase struct {
	repo      domain.MembershipRepository
	resolver  *FilterResolver
	chunkSize int
	log       *log.Helper
}

// NewMembershipUsecase 创建成员用例
func NewMembershipUsecase(repo domain.MembershipRepository, resolver *FilterResolver, opts CatalogOptions, logger log.Logger) *MembershipUsecase {
	return &MembershipUsecase{
		repo:      repo,
		resolver:  resolver,
		chunkSize: opts.withDefaults().ChunkSize,
		log:       log.NewHelper(log.With(logger, "module", "biz/membership")),
	}
}

// ComputeDelta 计算集合的成员差异。过滤器链为空时目标成员集合为空
func (uc *MembershipUsecase) ComputeDelta(ctx context.Context, c *domain.Collection) (*domain.MembershipDelta, error) {
	chain, err := uc.resolver.EffectiveFilters(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve filters of collection %s: %w", c.ID, err)
	}
	delta, err := uc.repo.Diff(ctx, c.ID, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to diff collection %s: %w", c.ID, err)
	}
	return delta, nil
}

// ApplyResult 单个集合的重算结果
type ApplyResult struct {
	Delta *domain.MembershipDelta
	// Affected 需要通知下游的规格ID
	Affected []string
	// Applied 差异是否已写入
	Applied bool
}

// Apply 计算并写入差异
//
// 写入失败只记录日志，不返回错误，避免单个集合中断整批重算；此时 Affected 为差异本身。
// changedOnly 为 false 时 Affected 为写入后的全部成员加上被移除的规格。
func (uc *MembershipUsecase) Apply(ctx context.Context, c *domain.Collection, changedOnly bool) (*ApplyResult, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "collection.apply_filters",
		attribute.String("collection.id", c.ID),
		attribute.Bool("collection.changed_only", changedOnly),
	)
	defer span.End()
	start := time.Now()

	delta, err := uc.ComputeDelta(ctx, c)
	if err != nil {
		observability.RecordError(span, err)
		monitoring.ObserveEvaluation(start, 0, 0, err)
		return nil, err
	}

	result := &ApplyResult{Delta: delta, Applied: true}
	if err := uc.repo.ApplyDelta(ctx, c.ID, delta, uc.chunkSize); err != nil {
		uc.log.Errorf("failed to apply membership delta to collection %s: %v", c.ID, err)
		observability.RecordError(span, err)
		monitoring.ObserveEvaluation(start, 0, 0, err)
		result.Applied = false
	} else {
		monitoring.ObserveEvaluation(start, len(delta.ToAdd), len(delta.ToRemove), nil)
	}
	span.SetAttributes(
		attribute.Int("collection.variants_added", len(delta.ToAdd)),
		attribute.Int("collection.variants_removed", len(delta.ToRemove)),
	)

	if changedOnly || !result.Applied {
		result.Affected = append(append([]string{}, delta.ToAdd...), delta.ToRemove...)
		return result, nil
	}

	current, err := uc.repo.VariantIDs(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of collection %s: %w", c.ID, err)
	}
	result.Affected = append(current, delta.ToRemove...)
	return result, nil
}
