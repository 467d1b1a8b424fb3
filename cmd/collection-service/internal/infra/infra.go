package infra

import (
	"github.com/google/wire"

	"catalog/cmd/collection-service/internal/domain"
)

// ProviderSet is infra providers.
var ProviderSet = wire.NewSet(
	NewEventBus,
	wire.Bind(new(domain.EventBus), new(*EventBus)),
	NewEventForwarder,
)
