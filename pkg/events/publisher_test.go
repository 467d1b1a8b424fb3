package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "mods" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "c1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	cfg := DefaultPublisherConfig()
	cfg.Topics = map[string]string{"catalog.collection-modification": "mods"}
	p := NewKafkaPublisherWithProducer(producer, cfg)

	env, err := NewEnvelope("catalog.collection-modification", "c1", "tok", map[string]any{"ids": []string{"v1"}})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), env))
	require.NoError(t, p.Close())

	var payload map[string][]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, []string{"v1"}, payload["ids"])
}

func TestKafkaPublisher_Batch(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	p := NewKafkaPublisherWithProducer(producer, nil)
	events := []*Envelope{{Type: "a", AggregateID: "1"}, {Type: "b", AggregateID: "2"}}
	require.NoError(t, p.PublishBatch(context.Background(), events))
	require.NoError(t, p.PublishBatch(context.Background(), nil))
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "v1", e.Version)
	}
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_BreakerOpens(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	cfg := DefaultPublisherConfig()
	cfg.BreakerFailures = 2
	p := NewKafkaPublisherWithProducer(producer, cfg)

	for i := 0; i < 2; i++ {
		err := p.Publish(context.Background(), &Envelope{Type: "a"})
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	// 熔断打开后不再调用 producer
	err := p.Publish(context.Background(), &Envelope{Type: "a"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.NoError(t, p.Close())
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Publish(context.Background(), &Envelope{Type: "a"}))
	require.NoError(t, p.PublishBatch(context.Background(), []*Envelope{{Type: "b"}}))
	assert.Len(t, p.Events(), 2)
	assert.Equal(t, "b", p.Events()[1].Type)
}
