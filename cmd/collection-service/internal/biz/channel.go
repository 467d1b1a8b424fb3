package biz

import (
	"context"

	"catalog/cmd/collection-service/internal/domain"
)

// ChannelResolver 根据渠道 token 构造请求上下文
type ChannelResolver struct {
	channels domain.ChannelRepository
}

// NewChannelResolver 创建渠道解析器
func NewChannelResolver(channels domain.ChannelRepository) *ChannelResolver {
	return &ChannelResolver{channels: channels}
}

// Resolve token 为空时使用默认渠道，languageCode 为空时使用渠道默认语言
func (r *ChannelResolver) Resolve(ctx context.Context, token, languageCode string) (domain.RequestContext, error) {
	var (
		channel *domain.Channel
		err     error
	)
	if token == "" {
		channel, err = r.channels.GetDefault(ctx)
	} else {
		channel, err = r.channels.GetByToken(ctx, token)
	}
	if err != nil {
		return domain.RequestContext{}, err
	}
	if languageCode == "" {
		languageCode = channel.DefaultLanguageCode
	}
	return domain.RequestContext{Channel: channel, LanguageCode: languageCode}, nil
}
