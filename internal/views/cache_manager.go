package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	taskQueueKeyPrefix = "erboard:tasks:"
	assignmentKey      = "erboard:assignment"
)

// ErrCacheMiss 视图未缓存或已过期
var ErrCacheMiss = errors.New("board view not cached")

// ViewStore 视图缓存存储；SetAll 的键一起生效，读方不会看到半次刷新
type ViewStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetAll(ctx context.Context, values map[string]string, ttl time.Duration) error
}

// RedisViewStore 用 MULTI/EXEC 写入一次刷新的全部键
type RedisViewStore struct {
	client *redis.Client
}

func NewRedisViewStore(client *redis.Client) *RedisViewStore {
	return &RedisViewStore{client: client}
}

func (s *RedisViewStore) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return raw, err
}

func (s *RedisViewStore) SetAll(ctx context.Context, values map[string]string, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, raw := range values {
			pipe.Set(ctx, key, raw, ttl)
		}
		return nil
	})
	return err
}

// CacheManager 派生视图缓存（供报表、看板等只读方读取）
type CacheManager struct {
	kv     ViewStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(kv ViewStore, ttl time.Duration, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// TaskQueueKey 任务队列缓存键
func TaskQueueKey(section string) string {
	return taskQueueKeyPrefix + section
}

// UpdateBoard 一次写入所有分区的任务队列和负载评分
func (c *CacheManager) UpdateBoard(ctx context.Context, queues []TaskQueueView, assign AssignmentView) error {
	values := make(map[string]string, len(queues)+1)
	for _, q := range queues {
		if err := encodeInto(values, TaskQueueKey(q.Section), q); err != nil {
			return err
		}
	}
	if err := encodeInto(values, assignmentKey, assign); err != nil {
		return err
	}
	if err := c.kv.SetAll(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("failed to write board views: %w", err)
	}
	c.logger.Debug("Updated board view cache",
		zap.Int("queue_count", len(queues)),
		zap.String("suggested", assign.Suggested),
	)
	return nil
}

// UpdateTaskQueue 写入单个任务队列缓存
func (c *CacheManager) UpdateTaskQueue(ctx context.Context, view TaskQueueView) error {
	key := TaskQueueKey(view.Section)
	if err := c.setJSON(ctx, key, view); err != nil {
		return err
	}
	c.logger.Debug("Updated task queue cache",
		zap.String("section", view.Section),
		zap.String("key", key),
		zap.Int("task_count", len(view.Tasks)),
	)
	return nil
}

// GetTaskQueue 读取任务队列缓存；不存在时返回 ErrCacheMiss
func (c *CacheManager) GetTaskQueue(ctx context.Context, section string) (*TaskQueueView, error) {
	var view TaskQueueView
	if err := c.getJSON(ctx, TaskQueueKey(section), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateAssignment 写入负载评分缓存
func (c *CacheManager) UpdateAssignment(ctx context.Context, view AssignmentView) error {
	if err := c.setJSON(ctx, assignmentKey, view); err != nil {
		return err
	}
	c.logger.Debug("Updated assignment cache",
		zap.String("suggested", view.Suggested),
		zap.Int("clinician_count", len(view.Scores)),
	)
	return nil
}

// GetAssignment 读取负载评分缓存
func (c *CacheManager) GetAssignment(ctx context.Context) (*AssignmentView, error) {
	var view AssignmentView
	if err := c.getJSON(ctx, assignmentKey, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *CacheManager) setJSON(ctx context.Context, key string, v interface{}) error {
	values := make(map[string]string, 1)
	if err := encodeInto(values, key, v); err != nil {
		return err
	}
	if err := c.kv.SetAll(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func encodeInto(values map[string]string, key string, v interface{}) error {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	values[key] = string(jsonData)
	return nil
}

func (c *CacheManager) getJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
