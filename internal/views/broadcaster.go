package views

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// MessagePublisher MQTT 发布接口（*mqtt.Client 实现）
type MessagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Broadcaster 通过 MQTT 向看板终端推送派生视图（retained，终端上线即得最新值）
type Broadcaster struct {
	publisher MessagePublisher
	qos       byte
	logger    *zap.Logger
}

// NewBroadcaster 创建推送器
func NewBroadcaster(publisher MessagePublisher, qos byte, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{publisher: publisher, qos: qos, logger: logger}
}

// TaskQueueTopic 分区任务队列主题
func TaskQueueTopic(section string) string {
	return fmt.Sprintf("erboard/%s/tasks", section)
}

// AssignmentTopic 负载评分主题
const AssignmentTopic = "erboard/assignment"

// PublishTaskQueue 推送任务队列
func (b *Broadcaster) PublishTaskQueue(view TaskQueueView) error {
	return b.publishJSON(TaskQueueTopic(view.Section), view)
}

// PublishAssignment 推送负载评分
func (b *Broadcaster) PublishAssignment(view AssignmentView) error {
	return b.publishJSON(AssignmentTopic, view)
}

func (b *Broadcaster) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	if err := b.publisher.Publish(topic, b.qos, true, payload); err != nil {
		return err
	}
	b.logger.Debug("Board view broadcast",
		zap.String("topic", topic),
		zap.Int("bytes", len(payload)),
	)
	return nil
}
