package infra

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/cmd/collection-service/internal/domain"
)

type fakeChannels struct {
	channels []*domain.Channel
}

func (f *fakeChannels) GetByToken(_ context.Context, token string) (*domain.Channel, error) {
	for _, c := range f.channels {
		if c.Token == token {
			return c, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (f *fakeChannels) GetByID(_ context.Context, id string) (*domain.Channel, error) {
	for _, c := range f.channels {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (f *fakeChannels) GetDefault(context.Context) (*domain.Channel, error) {
	for _, c := range f.channels {
		if c.IsDefault {
			return c, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{channels: []*domain.Channel{
		{ID: "ch-default", Token: "default-token", DefaultLanguageCode: "en", IsDefault: true},
		{ID: "ch-eu", Token: "eu-token", DefaultLanguageCode: "de"},
	}}
}

// fakeReader 依次返回预置消息，耗尽后阻塞到 ctx 结束
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func message(t *testing.T, offset int64, pm ProductMessage) kafka.Message {
	t.Helper()
	b, err := json.Marshal(pm)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestProductConsumer_Handle(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	var received []domain.Event
	bus.Subscribe(func(_ context.Context, e domain.Event) { received = append(received, e) })

	c := NewProductConsumerWithReader(&fakeReader{}, newFakeChannels(), bus, log.DefaultLogger)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, message(t, 1, ProductMessage{Type: "product", Action: "updated", ChannelToken: "eu-token", ProductID: "p1"})))
	require.NoError(t, c.Handle(ctx, message(t, 2, ProductMessage{Type: "product_variant", Action: "created", VariantIDs: []string{"v1", "v2"}})))

	require.Len(t, received, 2)
	pe, ok := received[0].(domain.ProductEvent)
	require.True(t, ok)
	assert.Equal(t, "p1", pe.ProductID)
	assert.Equal(t, "ch-eu", pe.Ctx.ChannelID())
	assert.Equal(t, "de", pe.Ctx.Language())

	ve, ok := received[1].(domain.ProductVariantEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"v1", "v2"}, ve.VariantIDs)
	assert.Equal(t, "ch-default", ve.Ctx.ChannelID())
}

func TestProductConsumer_HandleErrors(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	c := NewProductConsumerWithReader(&fakeReader{}, newFakeChannels(), bus, log.DefaultLogger)
	ctx := context.Background()

	assert.Error(t, c.Handle(ctx, kafka.Message{Value: []byte("{not json")}))
	err := c.Handle(ctx, message(t, 1, ProductMessage{Type: "product", ChannelToken: "missing"}))
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestProductConsumer_StartCommitsAndStops(t *testing.T) {
	bus := NewEventBus(log.DefaultLogger)
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(context.Context, domain.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, domain.EventTypeProduct)

	reader := &fakeReader{messages: []kafka.Message{
		message(t, 10, ProductMessage{Type: "product", ProductID: "p1"}),
		{Offset: 11, Value: []byte("garbage")},
		message(t, 12, ProductMessage{Type: "product", ProductID: "p2"}),
	}}
	c := NewProductConsumerWithReader(reader, newFakeChannels(), bus, log.DefaultLogger)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
	assert.Equal(t, []int64{10, 11, 12}, reader.committedOffsets())
}
