package replica

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wisefido-erboard/internal/models"
)

// Feed 变更流消费者（阻塞运行直到 ctx 结束）
type Feed interface {
	Start(ctx context.Context) error
}

// Resync 全量重新读取床位与医生名册，替换本地集合
func (r *Replica) Resync(ctx context.Context) error {
	beds, err := r.store.FetchBySections(ctx, r.opts.Sections)
	if err != nil {
		return err
	}

	now := r.opts.Now()
	clinicians, cErr := r.store.ListActiveClinicians(ctx)
	var shifts []models.WorkShift
	var sErr error
	if cErr == nil {
		shifts, sErr = r.store.ListActiveShifts(ctx, now)
	}
	if cErr != nil || sErr != nil {
		// 名册读取失败时沿用旧名册
		r.logger.Warn("Failed to refresh clinician roster",
			zap.NamedError("clinicians_error", cErr),
			zap.NamedError("shifts_error", sErr),
		)
	}

	next := make(map[string]models.Bed, len(beds))
	for _, b := range beds {
		next[b.ID] = b
	}

	r.mu.Lock()
	r.beds = next
	if cErr == nil && sErr == nil {
		r.clinicians = clinicians
		r.shifts = shifts
		r.rosterLoaded = true
	}
	r.mu.Unlock()

	r.logger.Debug("Replica resynced",
		zap.Int("bed_count", len(beds)),
		zap.Int("clinician_count", len(clinicians)),
	)
	r.notify()
	return nil
}

// ApplyEvent 合并一条变更流事件
// 插入/更新：版本不低于本地时按 id 整行替换；删除：移除本地行
func (r *Replica) ApplyEvent(_ context.Context, event models.BedEvent) error {
	incoming := event.Bed
	applied := false

	r.mu.Lock()
	local, exists := r.beds[incoming.ID]
	switch event.EventType {
	case models.EventDelete:
		if exists {
			delete(r.beds, incoming.ID)
			applied = true
		}
	case models.EventInsert, models.EventUpdate:
		switch {
		case !r.inScope(incoming.Section):
			// 床位被划出本客户端关注的分区
			if exists {
				delete(r.beds, incoming.ID)
				applied = true
			}
		case exists && incoming.Version < local.Version:
		default:
			r.beds[incoming.ID] = incoming.Clone()
			applied = true
		}
	default:
		r.mu.Unlock()
		return models.Invalid("ApplyEvent", "unknown event type %q", event.EventType)
	}
	r.mu.Unlock()

	if !applied {
		r.logger.Debug("Stale change event dropped",
			zap.String("bed_id", incoming.ID),
			zap.Int64("version", incoming.Version),
			zap.Int64("local_version", local.Version),
		)
		return nil
	}

	r.logger.Debug("Change event applied",
		zap.String("event_type", string(event.EventType)),
		zap.String("bed_id", incoming.ID),
		zap.Int64("version", incoming.Version),
		zap.String("origin", event.Origin),
	)
	r.notify()
	return nil
}

// Run 首次全量同步后，按固定间隔重新同步；feed 不为 nil 时同时运行变更流消费者
func (r *Replica) Run(ctx context.Context, interval time.Duration, feed Feed) error {
	if err := r.Resync(ctx); err != nil {
		r.logger.Error("Initial resync failed", zap.Error(err))
	}

	feedErr := make(chan error, 1)
	if feed != nil {
		go func() {
			feedErr <- feed.Start(ctx)
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-feedErr:
			// 变更流不可用时退化为仅轮询
			if err != nil {
				r.logger.Error("Change feed stopped, continuing with periodic resync", zap.Error(err))
			}
			feedErr = nil
		case <-ticker.C:
			if err := r.Resync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("Periodic resync failed", zap.Error(err))
			}
		}
	}
}

// refresh 重新读取指定床位并替换本地行；远端已删除则移除
func (r *Replica) refresh(ctx context.Context, bedIDs ...string) {
	for _, id := range bedIDs {
		bed, err := r.store.FetchByID(ctx, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			r.mu.Lock()
			delete(r.beds, id)
			r.mu.Unlock()
		case err != nil:
			r.logger.Warn("Failed to re-read bed after conflict",
				zap.String("bed_id", id),
				zap.Error(err),
			)
		default:
			r.mu.Lock()
			r.beds[id] = bed
			r.mu.Unlock()
		}
	}
	r.notify()
}
