package infra

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"catalog/cmd/collection-service/internal/domain"
	"catalog/pkg/events"
)

// CollectionPayload 对外发布的集合事件
type CollectionPayload struct {
	CollectionID string                         `json:"collectionId"`
	Action       string                         `json:"action"`
	ParentID     string                         `json:"parentId,omitempty"`
	Translations []domain.CollectionTranslation `json:"translations,omitempty"`
}

// ModificationPayload 对外发布的成员变更事件
type ModificationPayload struct {
	CollectionID      string   `json:"collectionId"`
	ProductVariantIDs []string `json:"productVariantIds"`
}

// EventForwarder 把集合事件转发到外部消息系统
type EventForwarder struct {
	publisher   events.Publisher
	unsubscribe func()
	log         *log.Helper
}

// NewEventForwarder 订阅集合事件并转发，返回的 cleanup 取消订阅
func NewEventForwarder(bus domain.EventBus, publisher events.Publisher, logger log.Logger) (*EventForwarder, func()) {
	f := &EventForwarder{
		publisher: publisher,
		log:       log.NewHelper(log.With(logger, "module", "infra/forwarder")),
	}
	f.unsubscribe = bus.Subscribe(f.handle, domain.EventTypeCollection, domain.EventTypeCollectionModification)
	return f, f.unsubscribe
}

func (f *EventForwarder) handle(ctx context.Context, event domain.Event) {
	envelope, err := toEnvelope(event)
	if err != nil {
		f.log.Errorf("failed to encode %s event: %v", event.EventType(), err)
		return
	}
	if envelope == nil {
		return
	}
	if err := f.publisher.Publish(ctx, envelope); err != nil {
		f.log.Errorf("failed to forward %s event for collection %s: %v", envelope.Type, envelope.AggregateID, err)
	}
}

func toEnvelope(event domain.Event) (*events.Envelope, error) {
	switch e := event.(type) {
	case domain.CollectionEvent:
		if e.Collection == nil {
			return nil, nil
		}
		return events.NewEnvelope(e.EventType(), e.Collection.ID, e.Ctx.ChannelToken(), CollectionPayload{
			CollectionID: e.Collection.ID,
			Action:       string(e.Action),
			ParentID:     e.Collection.ParentID,
			Translations: e.Collection.Translations,
		})
	case domain.CollectionModificationEvent:
		if e.Collection == nil {
			return nil, nil
		}
		ids := e.ProductVariantIDs
		if ids == nil {
			ids = []string{}
		}
		return events.NewEnvelope(e.EventType(), e.Collection.ID, e.Ctx.ChannelToken(), ModificationPayload{
			CollectionID:      e.Collection.ID,
			ProductVariantIDs: ids,
		})
	}
	return nil, nil
}
