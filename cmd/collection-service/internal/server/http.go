package server

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog/cmd/collection-service/internal/service"
	"catalog/pkg/health"
	"catalog/pkg/middleware"
)

const serviceName = "collection-service"

// HTTPConfig HTTP server configuration
type HTTPConfig struct {
	Network string `mapstructure:"network"`
	Addr    string `mapstructure:"addr"`
	Timeout string `mapstructure:"timeout"`
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(
	cfg *HTTPConfig,
	collections *service.CollectionService,
	checker *health.HealthChecker,
	logger log.Logger,
) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			tracing.Server(),
			logging.Server(logger),
			middleware.Metrics(serviceName),
			middleware.Channel(),
		),
	}

	if cfg.Network != "" {
		opts = append(opts, http.Network(cfg.Network))
	}
	if cfg.Addr != "" {
		opts = append(opts, http.Address(cfg.Addr))
	} else {
		opts = append(opts, http.Address(":8000"))
	}
	if cfg.Timeout != "" {
		if timeout, err := time.ParseDuration(cfg.Timeout); err == nil {
			opts = append(opts, http.Timeout(timeout))
		}
	}

	srv := http.NewServer(opts...)
	RegisterCollectionHTTPServer(srv, collections)
	srv.Handle("/metrics", promhttp.Handler())
	srv.HandleFunc("/healthz", healthHandler(checker))
	return srv
}

// RegisterCollectionHTTPServer 注册集合路由
func RegisterCollectionHTTPServer(s *http.Server, svc *service.CollectionService) {
	r := s.Route("/v1")

	// 固定路径先于 {id} 注册
	r.GET("/collection-filters", handle("ListFilters", bindNone, svc.ListFilters))
	r.POST("/collections/preview", handle("PreviewCollectionVariants", bindBody, svc.PreviewCollectionVariants))
	r.POST("/collections/apply-filters", handle("TriggerApplyFilters", bindBody, svc.TriggerApplyFilters))
	r.PUT("/collections/apply-on-product-updates", handle("SetApplyOnProductUpdates", bindBody, svc.SetApplyOnProductUpdates))
	r.GET("/collections/slug/{slug}", handle("GetCollectionBySlug", bindVars, svc.GetCollectionBySlug))

	r.GET("/collections", handle("ListCollections", bindQuery, svc.ListCollections))
	r.POST("/collections", handle("CreateCollection", bindBody, svc.CreateCollection))
	r.GET("/collections/{id}", handle("GetCollection", bindVars, svc.GetCollection))
	r.PUT("/collections/{id}", handle("UpdateCollection", bindBody|bindVars, svc.UpdateCollection))
	r.DELETE("/collections/{id}", handle("DeleteCollection", bindVars, svc.DeleteCollection))
	r.POST("/collections/{id}/move", handle("MoveCollection", bindBody|bindVars, svc.MoveCollection))
	r.GET("/collections/{id}/parent", handle("GetParent", bindVars, svc.GetParent))
	r.GET("/collections/{id}/children", handle("GetChildren", bindVars, svc.GetChildren))
	r.GET("/collections/{id}/descendants", handle("GetDescendants", bindQuery|bindVars, svc.GetDescendants))
	r.GET("/collections/{id}/ancestors", handle("GetAncestors", bindVars, svc.GetAncestors))
	r.GET("/collections/{id}/breadcrumbs", handle("GetBreadcrumbs", bindVars, svc.GetBreadcrumbs))
	r.GET("/collections/{id}/variant-ids", handle("GetProductVariantIDs", bindVars, svc.GetProductVariantIDs))
	r.GET("/products/{productId}/collections", handle("GetCollectionsForProduct", bindQuery|bindVars, svc.GetCollectionsForProduct))

	r.GET("/jobs/{id}", handle("GetJob", bindVars, svc.GetJob))
	r.POST("/jobs/{id}/cancel", handle("CancelJob", bindVars, svc.CancelJob))

	r.POST("/channels/{id}/collections", handle("AssignCollectionsToChannel", bindBody|bindVars, svc.AssignCollectionsToChannel))
	r.DELETE("/channels/{id}/collections", handle("RemoveCollectionsFromChannel", bindBody|bindVars, svc.RemoveCollectionsFromChannel))
}

type binding uint8

const (
	bindNone binding = 0
	bindBody binding = 1 << iota
	bindQuery
	bindVars
)

// handle 把服务方法包装为 kratos 路由处理函数，执行顺序与生成代码一致：
// 绑定参数、设置 operation、经过中间件链、编码结果
func handle[Req, Reply any](operation string, b binding, call func(context.Context, *Req) (Reply, error)) http.HandlerFunc {
	operation = "/catalog.collection.v1.Collection/" + operation
	return func(ctx http.Context) error {
		var in Req
		if b&bindBody != 0 {
			if err := ctx.Bind(&in); err != nil {
				return err
			}
		}
		if b&bindQuery != 0 {
			if err := ctx.BindQuery(&in); err != nil {
				return err
			}
		}
		if b&bindVars != 0 {
			if err := ctx.BindVars(&in); err != nil {
				return err
			}
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func healthHandler(checker *health.HealthChecker) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		status, results := checker.GetStatus(r.Context())
		code := nethttp.StatusOK
		if status != health.StatusHealthy {
			code = nethttp.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": results,
		})
	}
}
