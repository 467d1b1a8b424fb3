package main

import (
	"context"
	"flag"
	"os"
	"syscall"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/infra"
	"catalog/pkg/jobqueue"
	plog "catalog/pkg/log"
	"catalog/pkg/observability"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name string = "collection-service"
	// Version is the version of the compiled software.
	Version string = "v1.0.0"
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/collection-service.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	bc, err := loadConfig(flagconf)
	if err != nil {
		log.Fatalf("Failed to load config from %s: %v", flagconf, err)
	}

	if bc.Log.Service == "" {
		bc.Log.Service = Name
	}
	if bc.Log.Version == "" {
		bc.Log.Version = Version
	}
	zl, err := plog.NewZap(bc.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	zapLogger := plog.NewZapLogger(zl)
	defer zapLogger.Sync()

	logger := log.With(zapLogger,
		"service.id", id,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)
	helper := log.NewHelper(logger)

	if bc.Observability.ServiceName == "" {
		bc.Observability.ServiceName = Name
	}
	if bc.Observability.ServiceVersion == "" {
		bc.Observability.ServiceVersion = Version
	}
	shutdownTracing, err := observability.InitTracing(context.Background(), bc.Observability)
	if err != nil {
		helper.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			helper.Errorf("Failed to shutdown tracing: %v", err)
		}
	}()

	// 使用Wire构建应用
	app, cleanup, err := wireApp(bc, logger)
	if err != nil {
		helper.Fatalf("Failed to initialize application: %v", err)
	}
	defer cleanup()

	helper.Infof("Starting %s %s", Name, Version)
	if err := app.Run(); err != nil {
		helper.Fatalf("Failed to run application: %v", err)
	}
}

// newApp 创建Kratos应用，未配置 kafka 时不注册商品事件消费者
func newApp(
	logger log.Logger,
	hs *http.Server,
	jobs *jobqueue.Service,
	scheduler *biz.ApplyFiltersScheduler,
	consumer *infra.ProductConsumer,
	_ *infra.EventForwarder,
) *kratos.App {
	servers := []transport.Server{hs, jobs, scheduler}
	if consumer != nil {
		servers = append(servers, consumer)
	}
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(servers...),
		kratos.Signal(syscall.SIGTERM, syscall.SIGINT),
	)
}
