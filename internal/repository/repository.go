package repository

import (
	"context"
	"time"

	"wisefido-erboard/internal/models"
)

// BedStore 床位资源存储接口（远端共享表）
// 所有写入都是整行替换，并以 expectedVersion 做比较交换
type BedStore interface {
	FetchAll(ctx context.Context) ([]models.Bed, error)
	FetchByID(ctx context.Context, bedID string) (models.Bed, error)
	FetchBySections(ctx context.Context, sections []string) ([]models.Bed, error)

	// Save 写入整行；版本不匹配返回 ConflictError，行不存在返回 ErrNotFound
	Save(ctx context.Context, bed models.Bed, expectedVersion int64) (models.Bed, error)
	// SaveMove 在一个事务内写入转床涉及的两行
	SaveMove(ctx context.Context, from, to models.Bed, expectedFrom, expectedTo int64) (models.Bed, models.Bed, error)
}

// HistoryStore 历史记录追加通道（只写）
type HistoryStore interface {
	AppendHistory(ctx context.Context, records ...models.HistoryRecord) error
}

// RosterStore 医生名册与排班（只读）
type RosterStore interface {
	ListActiveClinicians(ctx context.Context) ([]models.Clinician, error)
	ListActiveShifts(ctx context.Context, at time.Time) ([]models.WorkShift, error)
}
