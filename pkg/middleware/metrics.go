package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"catalog/pkg/monitoring"
)

// Metrics 记录请求数与耗时，path 取路由模板
func Metrics(service string) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			start := time.Now()
			reply, err := handler(ctx, req)

			method, path := "", ""
			if tr, ok := transport.FromServerContext(ctx); ok {
				path = tr.Operation()
				if ht, ok := tr.(khttp.Transporter); ok {
					method = ht.Request().Method
					path = ht.PathTemplate()
				}
			}
			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}
			monitoring.RequestsTotal.WithLabelValues(service, method, path, strconv.Itoa(status)).Inc()
			monitoring.RequestDuration.WithLabelValues(service, method, path).Observe(time.Since(start).Seconds())
			return reply, err
		}
	}
}
