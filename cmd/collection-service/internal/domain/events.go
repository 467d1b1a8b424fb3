package domain

import "context"

// 事件类型
const (
	EventTypeProduct                = "catalog.product"
	EventTypeProductVariant         = "catalog.product_variant"
	EventTypeCollection             = "catalog.collection"
	EventTypeCollectionModification = "catalog.collection_modification"
)

// CollectionAction 集合生命周期动作
type CollectionAction string

const (
	CollectionCreated CollectionAction = "created"
	CollectionUpdated CollectionAction = "updated"
	CollectionDeleted CollectionAction = "deleted"
)

// Event 领域事件
type Event interface {
	EventType() string
}

// ProductEvent 商品变更事件 (上游)
type ProductEvent struct {
	Ctx       RequestContext
	ProductID string
	Action    string
}

func (ProductEvent) EventType() string { return EventTypeProduct }

// ProductVariantEvent 商品规格变更事件 (上游)
type ProductVariantEvent struct {
	Ctx        RequestContext
	VariantIDs []string
	Action     string
}

func (ProductVariantEvent) EventType() string { return EventTypeProductVariant }

// CollectionEvent 集合生命周期事件
type CollectionEvent struct {
	Ctx        RequestContext
	Collection *Collection
	Action     CollectionAction
	Input      any
}

func (CollectionEvent) EventType() string { return EventTypeCollection }

// CollectionModificationEvent 集合成员变更事件
type CollectionModificationEvent struct {
	Ctx               RequestContext
	Collection        *Collection
	ProductVariantIDs []string
}

func (CollectionModificationEvent) EventType() string { return EventTypeCollectionModification }

// EventHandler 事件处理函数
type EventHandler func(ctx context.Context, event Event)

// EventBus 进程内事件总线
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(handler EventHandler, types ...string) (unsubscribe func())
}
