package views

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-erboard/internal/assignment"
	"wisefido-erboard/internal/replica"
	"wisefido-erboard/internal/scheduler"
)

// Refresher 在副本变化后重新计算派生视图，写入缓存并推送
// Trigger 只保留最新的快照，Run 在后台逐个处理
type Refresher struct {
	cache       *CacheManager
	broadcaster *Broadcaster // 可以为 nil
	thresholds  scheduler.Thresholds
	weights     assignment.Weights
	now         func() time.Time
	logger      *zap.Logger

	pending chan replica.Snapshot
}

// NewRefresher 创建视图刷新器
func NewRefresher(cache *CacheManager, broadcaster *Broadcaster, th scheduler.Thresholds, w assignment.Weights, logger *zap.Logger) *Refresher {
	return &Refresher{
		cache:       cache,
		broadcaster: broadcaster,
		thresholds:  th,
		weights:     w,
		now:         time.Now,
		logger:      logger,
		pending:     make(chan replica.Snapshot, 1),
	}
}

// Trigger 提交最新快照；已有未处理快照时替换之（可作为 replica.Listener）
func (r *Refresher) Trigger(snap replica.Snapshot) {
	for {
		select {
		case r.pending <- snap:
			return
		default:
		}
		select {
		case <-r.pending:
		default:
		}
	}
}

// Run 处理快照直到 ctx 结束
func (r *Refresher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-r.pending:
			if err := r.Refresh(ctx, snap); err != nil {
				r.logger.Error("Failed to refresh board views", zap.Error(err))
			}
		}
	}
}

// Refresh 同步计算并发布一次视图
func (r *Refresher) Refresh(ctx context.Context, snap replica.Snapshot) error {
	now := r.now()
	queues := BuildTaskQueues(snap, now, r.thresholds)
	assign := BuildAssignment(snap, now, r.weights)

	cacheErr := r.cache.UpdateBoard(ctx, queues, assign)

	if r.broadcaster != nil {
		for _, q := range queues {
			if err := r.broadcaster.PublishTaskQueue(q); err != nil {
				r.logger.Warn("Failed to broadcast task queue",
					zap.String("section", q.Section),
					zap.Error(err),
				)
			}
		}
		if err := r.broadcaster.PublishAssignment(assign); err != nil {
			r.logger.Warn("Failed to broadcast assignment", zap.Error(err))
		}
	}

	r.logger.Debug("Board views refreshed",
		zap.Int("bed_count", len(snap.Beds)),
		zap.Int("queue_count", len(queues)),
	)
	return cacheErr
}
