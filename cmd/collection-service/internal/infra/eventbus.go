package infra

import (
	"context"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"catalog/cmd/collection-service/internal/domain"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
	types   map[string]struct{}
}

func (s *subscription) accepts(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// EventBus 进程内事件总线，同步分发给订阅者
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*subscription
	log    *log.Helper
}

// NewEventBus 创建事件总线
func NewEventBus(logger log.Logger) *EventBus {
	return &EventBus{
		log: log.NewHelper(log.With(logger, "module", "infra/eventbus")),
	}
}

// Publish 按订阅顺序依次调用处理函数。单个处理函数 panic 不影响其他订阅者
func (b *EventBus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.accepts(event.EventType()) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, s, event)
	}
}

func (b *EventBus) dispatch(ctx context.Context, s *subscription, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("event handler for %s panicked: %v", event.EventType(), r)
		}
	}()
	s.handler(ctx, event)
}

// Subscribe 订阅指定类型的事件，types 为空表示全部事件
func (b *EventBus) Subscribe(handler domain.EventHandler, types ...string) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &subscription{id: b.nextID, handler: handler, types: make(map[string]struct{}, len(types))}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	b.subs = append(b.subs, s)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(s.id) })
	}
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}
