package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wisefido-erboard/internal/models"
)

// AppendHistory 追加历史记录；重复 ID 忽略，重放安全
func (r *PostgresBedStore) AppendHistory(ctx context.Context, records ...models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return transient("AppendHistory", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO er_bed_history (history_id, kind, bed_id, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (history_id) DO NOTHING
	`
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode history record %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, rec.ID, string(rec.Kind), rec.BedID, payload, rec.RecordedAt); err != nil {
			return transient("AppendHistory", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return transient("AppendHistory", err)
	}
	committed = true

	r.logger.Debug("History appended", zap.Int("count", len(records)))
	return nil
}
