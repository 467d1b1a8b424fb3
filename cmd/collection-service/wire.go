//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"catalog/cmd/collection-service/internal/biz"
	"catalog/cmd/collection-service/internal/data"
	"catalog/cmd/collection-service/internal/filters"
	"catalog/cmd/collection-service/internal/infra"
	"catalog/cmd/collection-service/internal/server"
	"catalog/cmd/collection-service/internal/service"
)

// wireApp init kratos application.
func wireApp(*Config, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		// Config
		newDatabaseConfig,
		newHTTPConfig,
		newCatalogOptions,

		// Infrastructure
		newRedis,
		newSharedCache,
		newJobStore,
		newJobService,
		newPublisher,
		newProductConsumer,
		infra.ProviderSet,

		// Data layer
		filters.NewDefaultRegistry,
		data.ProviderSet,

		// Business logic layer
		biz.ProviderSet,

		// Service layer
		service.ProviderSet,

		// Server layer
		server.ProviderSet,

		// App
		newApp,
	))
}
