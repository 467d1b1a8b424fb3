package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/segmentio/kafka-go"

	"catalog/cmd/collection-service/internal/domain"
)

// ProductMessage 上游商品变更消息
type ProductMessage struct {
	Type         string   `json:"type"` // product | product_variant
	Action       string   `json:"action"`
	ChannelToken string   `json:"channelToken"`
	LanguageCode string   `json:"languageCode"`
	ProductID    string   `json:"productId"`
	VariantIDs   []string `json:"variantIds"`
}

const (
	messageTypeProduct        = "product"
	messageTypeProductVariant = "product_variant"
)

// MessageReader kafka.Reader 的子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig 商品事件消费者配置
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// ProductConsumer 消费上游商品事件并转发到进程内事件总线
type ProductConsumer struct {
	reader   MessageReader
	channels domain.ChannelRepository
	bus      domain.EventBus
	log      *log.Helper

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewProductConsumer 创建 kafka 消费者
func NewProductConsumer(cfg ConsumerConfig, channels domain.ChannelRepository, bus domain.EventBus, logger log.Logger) *ProductConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return NewProductConsumerWithReader(reader, channels, bus, logger)
}

// NewProductConsumerWithReader 使用已有 reader 创建消费者
func NewProductConsumerWithReader(reader MessageReader, channels domain.ChannelRepository, bus domain.EventBus, logger log.Logger) *ProductConsumer {
	return &ProductConsumer{
		reader:   reader,
		channels: channels,
		bus:      bus,
		log:      log.NewHelper(log.With(logger, "module", "infra/consumer")),
	}
}

// Start 阻塞消费直到 Stop 或 ctx 结束
func (c *ProductConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.log.Info("starting product event consumer")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.Errorf("error fetching message: %v", err)
			return err
		}

		if err := c.Handle(ctx, msg); err != nil {
			// 无法解析的消息同样提交，避免阻塞分区
			c.log.Errorf("error processing message at offset %d: %v", msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warnf("error committing message: %v", err)
		}
	}
}

// Stop 停止消费并关闭 reader
func (c *ProductConsumer) Stop(_ context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.log.Info("stopping product event consumer")
	return c.reader.Close()
}

// Handle 解析一条消息并发布对应的领域事件
func (c *ProductConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var pm ProductMessage
	if err := json.Unmarshal(msg.Value, &pm); err != nil {
		return fmt.Errorf("invalid product message: %w", err)
	}

	rc, err := c.requestContext(ctx, pm)
	if err != nil {
		return err
	}

	switch pm.Type {
	case messageTypeProduct:
		c.bus.Publish(ctx, domain.ProductEvent{Ctx: rc, ProductID: pm.ProductID, Action: pm.Action})
	case messageTypeProductVariant:
		c.bus.Publish(ctx, domain.ProductVariantEvent{Ctx: rc, VariantIDs: pm.VariantIDs, Action: pm.Action})
	default:
		c.log.Warnf("unknown product message type: %q", pm.Type)
	}
	return nil
}

func (c *ProductConsumer) requestContext(ctx context.Context, pm ProductMessage) (domain.RequestContext, error) {
	var (
		channel *domain.Channel
		err     error
	)
	if pm.ChannelToken == "" {
		channel, err = c.channels.GetDefault(ctx)
	} else {
		channel, err = c.channels.GetByToken(ctx, pm.ChannelToken)
	}
	if err != nil {
		return domain.RequestContext{}, fmt.Errorf("failed to resolve channel %q: %w", pm.ChannelToken, err)
	}
	return domain.RequestContext{Channel: channel, LanguageCode: pm.LanguageCode}, nil
}
