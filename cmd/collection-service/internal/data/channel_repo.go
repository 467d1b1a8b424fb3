package data

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"

	"catalog/cmd/collection-service/internal/domain"
)

// ChannelRepository 渠道仓储实现
type ChannelRepository struct {
	data *Data
	log  *log.Helper
}

// NewChannelRepo 创建渠道仓储
func NewChannelRepo(data *Data, logger log.Logger) domain.ChannelRepository {
	return &ChannelRepository{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/channel")),
	}
}

// GetByToken 根据 token 获取渠道
func (r *ChannelRepository) GetByToken(ctx context.Context, token string) (*domain.Channel, error) {
	return r.first(r.data.DB(ctx).Where("token = ?", token))
}

// GetByID 根据ID获取渠道
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	return r.first(r.data.DB(ctx).Where("id = ?", id))
}

// GetDefault 获取默认渠道
func (r *ChannelRepository) GetDefault(ctx context.Context) (*domain.Channel, error) {
	return r.first(r.data.DB(ctx).Where("is_default = ?", true))
}

func (r *ChannelRepository) first(q *gorm.DB) (*domain.Channel, error) {
	var po ChannelPO
	if err := q.First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChannelNotFound
		}
		r.log.Errorf("failed to get channel: %v", err)
		return nil, err
	}
	return po.toDomain(), nil
}
