package middleware

import (
	"context"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

const (
	// HeaderChannelToken 渠道 token 请求头
	HeaderChannelToken = "X-Channel-Token"
	// HeaderLanguageCode 语言请求头
	HeaderLanguageCode = "X-Language-Code"
)

type channelKey struct{}

// ChannelInfo 请求头中的渠道信息
type ChannelInfo struct {
	Token        string
	LanguageCode string
}

// Channel 从请求头提取渠道 token 与语言
func Channel() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				ctx = WithChannel(ctx, ChannelInfo{
					Token:        tr.RequestHeader().Get(HeaderChannelToken),
					LanguageCode: tr.RequestHeader().Get(HeaderLanguageCode),
				})
			}
			return handler(ctx, req)
		}
	}
}

// WithChannel 写入渠道信息
func WithChannel(ctx context.Context, info ChannelInfo) context.Context {
	return context.WithValue(ctx, channelKey{}, info)
}

// ChannelFromContext 读取渠道信息
func ChannelFromContext(ctx context.Context) ChannelInfo {
	info, _ := ctx.Value(channelKey{}).(ChannelInfo)
	return info
}
