package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// Envelope 对外发布的事件信封，Payload 为 JSON
type Envelope struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Version      string          `json:"version"`
	AggregateID  string          `json:"aggregateId"`
	ChannelToken string          `json:"channelToken,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

// NewEnvelope 构造信封并序列化 payload
func NewEnvelope(eventType, aggregateID, channelToken string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return &Envelope{
		ID:           uuid.NewString(),
		Type:         eventType,
		Version:      "v1",
		AggregateID:  aggregateID,
		ChannelToken: channelToken,
		Timestamp:    time.Now().UTC(),
		Payload:      raw,
	}, nil
}

// Publisher 事件发布器接口
type Publisher interface {
	// Publish 发布事件
	Publish(ctx context.Context, event *Envelope) error

	// PublishBatch 批量发布事件
	PublishBatch(ctx context.Context, events []*Envelope) error

	// Close 关闭发布器
	Close() error
}

// PublisherConfig 发布器配置
type PublisherConfig struct {
	Brokers      []string
	Topic        string            // 默认 topic
	Topics       map[string]string // 事件类型 -> topic
	RetryMax     int
	RequiredAcks sarama.RequiredAcks

	// 熔断：连续失败 BreakerFailures 次后打开，BreakerTimeout 后半开
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultPublisherConfig 默认配置
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		Brokers:         []string{"localhost:9092"},
		Topic:           "catalog.collection.events",
		RetryMax:        3,
		RequiredAcks:    sarama.WaitForLocal,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// KafkaPublisher Kafka 事件发布器，发送经过熔断器
type KafkaPublisher struct {
	producer sarama.SyncProducer
	breaker  *gobreaker.CircuitBreaker
	config   *PublisherConfig
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(config *PublisherConfig) (*KafkaPublisher, error) {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.RequiredAcks = config.RequiredAcks
	kafkaConfig.Producer.Retry.Max = config.RetryMax
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	kafkaConfig.Version = sarama.V3_6_0_0

	producer, err := sarama.NewSyncProducer(config.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, config), nil
}

// NewKafkaPublisherWithProducer 使用已有 producer 创建发布器
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, config *PublisherConfig) *KafkaPublisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	failures := config.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-publisher",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})

	return &KafkaPublisher{
		producer: producer,
		breaker:  breaker,
		config:   config,
	}
}

// Publish 发布事件
func (p *KafkaPublisher) Publish(ctx context.Context, event *Envelope) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		_, _, err := p.producer.SendMessage(msg)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishBatch 批量发布事件
func (p *KafkaPublisher) PublishBatch(ctx context.Context, events []*Envelope) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]*sarama.ProducerMessage, 0, len(events))
	for _, event := range events {
		msg, err := p.message(event)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.producer.SendMessages(messages)
	})
	if err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	return nil
}

// State 熔断器状态
func (p *KafkaPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func (p *KafkaPublisher) message(event *Envelope) (*sarama.ProducerMessage, error) {
	if event == nil {
		return nil, errors.New("nil event")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Version == "" {
		event.Version = "v1"
	}

	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic: p.topicFor(event.Type),
		Key:   sarama.StringEncoder(event.AggregateID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("channel_token"), Value: []byte(event.ChannelToken)},
		},
		Timestamp: event.Timestamp,
	}, nil
}

// topicFor 根据事件类型获取 Topic
func (p *KafkaPublisher) topicFor(eventType string) string {
	if topic, ok := p.config.Topics[eventType]; ok {
		return topic
	}
	return p.config.Topic
}

// MemoryPublisher 内存发布器（用于测试和本地开发）
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*Envelope
}

// NewMemoryPublisher 创建内存发布器
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 发布事件
func (m *MemoryPublisher) Publish(_ context.Context, event *Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// PublishBatch 批量发布
func (m *MemoryPublisher) PublishBatch(_ context.Context, events []*Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Close 关闭
func (m *MemoryPublisher) Close() error {
	return nil
}

// Events 已发布事件的副本
func (m *MemoryPublisher) Events() []*Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Envelope, len(m.events))
	copy(out, m.events)
	return out
}
