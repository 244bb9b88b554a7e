package replica

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wisefido-erboard/internal/bedstate"
	"wisefido-erboard/internal/models"
	"wisefido-erboard/internal/scheduler"
)

// RegisterPatient 在空床登记新患者
func (r *Replica) RegisterPatient(ctx context.Context, bedID string, draft models.PatientDraft, doctorID string) (models.Bed, error) {
	const op = "RegisterPatient"
	return r.mutate(ctx, op, bedID, func(b models.Bed) (bedstate.Outcome, error) {
		if err := r.checkDoctor(op, doctorID); err != nil {
			return bedstate.Outcome{}, err
		}
		return r.machine.RegisterPatient(b, draft, doctorID)
	})
}

// ChangeStatus 在占用状态之间切换
func (r *Replica) ChangeStatus(ctx context.Context, bedID string, status models.BedStatus) (models.Bed, error) {
	return r.mutate(ctx, "ChangeStatus", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.ChangeStatus(b, status)
	})
}

// Discharge 出院，床位进入 Cleaning
func (r *Replica) Discharge(ctx context.Context, bedID string) (models.Bed, error) {
	return r.mutate(ctx, "Discharge", bedID, r.machine.Discharge)
}

// ConfirmCleaned 清洁完成，床位回到 Empty
func (r *Replica) ConfirmCleaned(ctx context.Context, bedID string) (models.Bed, error) {
	return r.mutate(ctx, "ConfirmCleaned", bedID, r.machine.ConfirmCleaned)
}

// AssignDoctor 分配（或清除）主管医生
func (r *Replica) AssignDoctor(ctx context.Context, bedID, doctorID string) (models.Bed, error) {
	const op = "AssignDoctor"
	return r.mutate(ctx, op, bedID, func(b models.Bed) (bedstate.Outcome, error) {
		if err := r.checkDoctor(op, doctorID); err != nil {
			return bedstate.Outcome{}, err
		}
		return r.machine.AssignDoctor(b, doctorID)
	})
}

// SetComment 设置床位备注
func (r *Replica) SetComment(ctx context.Context, bedID, comment string) (models.Bed, error) {
	return r.mutate(ctx, "SetComment", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.SetComment(b, comment)
	})
}

// UpdateVitals 更新生命体征
func (r *Replica) UpdateVitals(ctx context.Context, bedID string, vitals models.Vitals) (models.Bed, error) {
	return r.mutate(ctx, "UpdateVitals", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.UpdateVitals(b, vitals)
	})
}

// OrderMedication 开立用药医嘱
func (r *Replica) OrderMedication(ctx context.Context, bedID string, draft models.MedicationDraft, orderedBy string) (models.Bed, error) {
	return r.mutate(ctx, "OrderMedication", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.OrderMedication(b, draft, orderedBy)
	})
}

// AdministerMedication 执行用药
func (r *Replica) AdministerMedication(ctx context.Context, bedID, orderID, by string) (models.Bed, error) {
	return r.mutate(ctx, "AdministerMedication", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.AdministerMedication(b, orderID, by)
	})
}

// CancelMedication 取消用药医嘱
func (r *Replica) CancelMedication(ctx context.Context, bedID, orderID string) (models.Bed, error) {
	return r.mutate(ctx, "CancelMedication", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.CancelMedication(b, orderID)
	})
}

// RequestAction 申请临床操作
func (r *Replica) RequestAction(ctx context.Context, bedID string, draft models.ActionDraft) (models.Bed, error) {
	return r.mutate(ctx, "RequestAction", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.RequestAction(b, draft)
	})
}

// CompleteAction 完成临床操作
func (r *Replica) CompleteAction(ctx context.Context, bedID, actionID string) (models.Bed, error) {
	return r.mutate(ctx, "CompleteAction", bedID, func(b models.Bed) (bedstate.Outcome, error) {
		return r.machine.CompleteAction(b, actionID)
	})
}

// CompleteTask 完成派生任务（用药、临床操作、清洁），重复完成为空操作
func (r *Replica) CompleteTask(ctx context.Context, task models.DerivedTask, by string) (models.Bed, error) {
	return r.mutate(ctx, "CompleteTask", task.BedID, func(b models.Bed) (bedstate.Outcome, error) {
		return scheduler.Complete(r.machine, b, task, by)
	})
}

// MovePatient 转床：两行在一个事务中写入
func (r *Replica) MovePatient(ctx context.Context, fromID, toID string) (models.Bed, models.Bed, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	from, okFrom := r.beds[fromID]
	to, okTo := r.beds[toID]
	if !okFrom || !okTo {
		r.mu.Unlock()
		missing := fromID
		if okFrom {
			missing = toID
		}
		return models.Bed{}, models.Bed{}, fmt.Errorf("MovePatient: bed %s: %w", missing, models.ErrNotFound)
	}
	out, err := r.machine.MovePatient(from.Clone(), to.Clone())
	if err != nil {
		r.mu.Unlock()
		return models.Bed{}, models.Bed{}, err
	}
	nextFrom := r.stamp(out.From)
	nextTo := r.stamp(out.To)
	r.beds[fromID] = nextFrom
	r.beds[toID] = nextTo
	r.mu.Unlock()
	r.notify()

	savedFrom, savedTo, err := r.store.SaveMove(ctx, nextFrom, nextTo, from.Version, to.Version)
	if err != nil {
		return nextFrom, nextTo, r.writeFailed(ctx, "MovePatient", err, fromID, toID)
	}

	r.adopt(savedFrom, savedTo)
	r.publish(ctx, savedFrom)
	r.publish(ctx, savedTo)
	return savedFrom, savedTo, nil
}

// mutate 本地乐观更新后写入远端，确认后发布变更并追加历史
func (r *Replica) mutate(ctx context.Context, op, bedID string, fn func(models.Bed) (bedstate.Outcome, error)) (models.Bed, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	current, ok := r.beds[bedID]
	if !ok {
		r.mu.Unlock()
		return models.Bed{}, fmt.Errorf("%s: bed %s: %w", op, bedID, models.ErrNotFound)
	}
	out, err := fn(current.Clone())
	if err != nil {
		r.mu.Unlock()
		return models.Bed{}, err
	}
	if !out.Changed {
		r.mu.Unlock()
		return current.Clone(), nil
	}
	next := r.stamp(out.Bed)
	r.beds[bedID] = next
	r.mu.Unlock()
	r.notify()

	saved, err := r.store.Save(ctx, next, current.Version)
	if err != nil {
		return next, r.writeFailed(ctx, op, err, bedID)
	}

	r.adopt(saved)
	r.publish(ctx, saved)
	r.appendHistory(ctx, op, out.History)
	return saved, nil
}

// stamp 标记写入方；Version 保持为写入前的值，由存储在成功时递增
func (r *Replica) stamp(b models.Bed) models.Bed {
	b.UpdatedAt = r.opts.Now()
	b.UpdatedBy = r.opts.ClientID
	return b
}

// adopt 采用远端确认后的行（带新版本），除非变更流已送达更新的版本
func (r *Replica) adopt(saved ...models.Bed) {
	r.mu.Lock()
	for _, b := range saved {
		if local, ok := r.beds[b.ID]; ok && local.Version > b.Version {
			continue
		}
		r.beds[b.ID] = b.Clone()
	}
	r.mu.Unlock()
	r.notify()
}

// writeFailed 冲突或行缺失时重新读取受影响的行；瞬时错误保留本地乐观结果，等待周期性同步
func (r *Replica) writeFailed(ctx context.Context, op string, err error, bedIDs ...string) error {
	switch {
	case models.IsConflict(err), errors.Is(err, models.ErrNotFound):
		r.logger.Warn("Remote write rejected, re-reading beds",
			zap.String("op", op),
			zap.Strings("bed_ids", bedIDs),
			zap.Error(err),
		)
		r.refresh(ctx, bedIDs...)
	case models.IsTransient(err):
		r.logger.Error("Remote write failed, local change kept until next resync",
			zap.String("op", op),
			zap.Strings("bed_ids", bedIDs),
			zap.Error(err),
		)
	default:
		r.logger.Error("Remote write failed",
			zap.String("op", op),
			zap.Strings("bed_ids", bedIDs),
			zap.Error(err),
		)
	}
	return err
}

func (r *Replica) publish(ctx context.Context, bed models.Bed) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, models.EventUpdate, bed); err != nil {
		r.logger.Warn("Failed to publish bed change",
			zap.String("bed_id", bed.ID),
			zap.Int64("version", bed.Version),
			zap.Error(err),
		)
	}
}

func (r *Replica) appendHistory(ctx context.Context, op string, records []models.HistoryRecord) {
	if len(records) == 0 {
		return
	}
	if err := r.store.AppendHistory(ctx, records...); err != nil {
		r.logger.Error("Failed to append history",
			zap.String("op", op),
			zap.Int("count", len(records)),
			zap.Error(err),
		)
	}
}

// checkDoctor 医生必须在在岗名册中；名册尚未加载时放行
func (r *Replica) checkDoctor(op, doctorID string) error {
	if doctorID == "" {
		return nil
	}
	// 调用方已持有 r.mu
	if !r.rosterLoaded {
		return nil
	}
	for _, c := range r.clinicians {
		if c.ID == doctorID && c.Active {
			return nil
		}
	}
	return models.Invalid(op, "clinician %s is not on the active roster", doctorID)
}
