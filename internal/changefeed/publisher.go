// Package changefeed carries whole-row bed changes between board clients over
// a Redis Stream. Every client reads with its own consumer group, so each one
// sees every event.
package changefeed

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-erboard/internal/common/redis"
	"wisefido-erboard/internal/models"
)

// Publisher 变更事件发布器
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
	origin string
	logger *zap.Logger
}

// NewPublisher 创建发布器；origin 为本客户端 id，写入每条事件
func NewPublisher(client *redis.Client, stream string, maxLen int64, origin string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		origin: origin,
		logger: logger,
	}
}

// Publish 发布一行的整行替换事件
func (p *Publisher) Publish(ctx context.Context, eventType models.BedEventType, bed models.Bed) error {
	event := models.BedEvent{
		EventType:   eventType,
		Bed:         bed,
		Origin:      p.origin,
		PublishedAt: time.Now(),
	}
	id, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, event)
	if err != nil {
		return &models.TransientIOError{Op: "PublishChange", Err: err}
	}

	p.logger.Debug("Bed change published",
		zap.String("stream", p.stream),
		zap.String("message_id", id),
		zap.String("event_type", string(eventType)),
		zap.String("bed_id", bed.ID),
		zap.Int64("version", bed.Version),
	)
	return nil
}
