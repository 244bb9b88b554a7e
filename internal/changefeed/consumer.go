package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-erboard/internal/common/redis"
	"wisefido-erboard/internal/models"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	defaultBlock   = 2 * time.Second
)

// Handler 处理一条变更事件；返回 nil 后消息被确认
type Handler func(ctx context.Context, event models.BedEvent) error

// Consumer 变更流消费者
type Consumer struct {
	client       *redis.Client
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration
	handler      Handler
	logger       *zap.Logger
}

// NewConsumer 创建消费者
func NewConsumer(
	client *redis.Client,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
	handler Handler,
	logger *zap.Logger,
) *Consumer {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Consumer{
		client:       client,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        defaultBlock,
		handler:      handler,
		logger:       logger,
	}
}

// EnsureGroup 创建本客户端的消费者组，只接收此后发布的事件
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.client, c.stream, c.groupName, "$"); err != nil {
		return &models.TransientIOError{Op: "CreateConsumerGroup", Err: err}
	}
	return nil
}

// DropGroup 删除本客户端的消费者组（组名为临时生成时在退出前调用）
func (c *Consumer) DropGroup(ctx context.Context) error {
	if err := rediscommon.DestroyConsumerGroup(ctx, c.client, c.stream, c.groupName); err != nil {
		return &models.TransientIOError{Op: "DestroyConsumerGroup", Err: err}
	}
	return nil
}

// Start 启动消费循环（阻塞），读取失败时指数退避 1s → 30s
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Change feed consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume change feed",
				zap.Error(err),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = nextBackoff(backoff)
			}
			continue
		}
		backoff = initialBackoff
	}
}

// ConsumeOnce 读取并处理一批消息，返回成功确认的条数
func (c *Consumer) ConsumeOnce(ctx context.Context) (int, error) {
	messages, err := rediscommon.ReadFromStream(ctx, c.client, c.stream, c.groupName, c.consumerName, c.batchSize, c.block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	acked := 0
	for _, msg := range messages {
		event, err := ParseEvent(msg)
		if err != nil {
			c.logger.Warn("Dropping malformed change event",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			c.ack(ctx, msg.ID)
			continue
		}
		if err := c.handler(ctx, event); err != nil {
			// 不确认，留在 pending 列表中；周期性全量同步会修复本地副本
			c.logger.Error("Failed to apply change event",
				zap.String("message_id", msg.ID),
				zap.String("bed_id", event.Bed.ID),
				zap.Error(err),
			)
			continue
		}
		if c.ack(ctx, msg.ID) {
			acked++
		}
	}
	return acked, nil
}

func (c *Consumer) ack(ctx context.Context, id string) bool {
	if err := rediscommon.Ack(ctx, c.client, c.stream, c.groupName, id); err != nil {
		c.logger.Warn("Failed to ack message",
			zap.String("message_id", id),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ParseEvent 解析流消息中的 data 字段
func ParseEvent(msg rediscommon.StreamMessage) (models.BedEvent, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return models.BedEvent{}, fmt.Errorf("message %s has no data field", msg.ID)
	}
	var event models.BedEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return models.BedEvent{}, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	switch event.EventType {
	case models.EventInsert, models.EventUpdate, models.EventDelete:
	default:
		return models.BedEvent{}, fmt.Errorf("message %s: unknown event type %q", msg.ID, event.EventType)
	}
	if event.Bed.ID == "" {
		return models.BedEvent{}, fmt.Errorf("message %s: missing bed id", msg.ID)
	}
	return event, nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
