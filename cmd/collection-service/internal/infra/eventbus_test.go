package infra

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"

	"catalog/cmd/collection-service/internal/domain"
)

func TestEventBus_TypedSubscription(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	ctx := context.Background()

	var products, all []string
	bus.Subscribe(func(_ context.Context, e domain.Event) {
		products = append(products, e.EventType())
	}, domain.EventTypeProduct, domain.EventTypeProductVariant)
	bus.Subscribe(func(_ context.Context, e domain.Event) {
		all = append(all, e.EventType())
	})

	bus.Publish(ctx, domain.ProductEvent{ProductID: "p1"})
	bus.Publish(ctx, domain.CollectionEvent{Action: domain.CollectionCreated})
	bus.Publish(ctx, domain.ProductVariantEvent{VariantIDs: []string{"v1"}})

	assert.Equal(t, []string{domain.EventTypeProduct, domain.EventTypeProductVariant}, products)
	assert.Equal(t, []string{domain.EventTypeProduct, domain.EventTypeCollection, domain.EventTypeProductVariant}, all)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	calls := 0
	unsubscribe := bus.Subscribe(func(context.Context, domain.Event) { calls++ })

	bus.Publish(context.Background(), domain.ProductEvent{})
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), domain.ProductEvent{})

	assert.Equal(t, 1, calls)
}

func TestEventBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	delivered := false
	bus.Subscribe(func(context.Context, domain.Event) { panic("boom") })
	bus.Subscribe(func(context.Context, domain.Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), domain.ProductEvent{})
	})
	assert.True(t, delivered)
}
