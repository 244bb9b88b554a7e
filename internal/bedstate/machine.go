// Package bedstate owns the legal lifecycle of a bed/patient pairing.
//
// Every operation works on value copies: it validates the input bed, builds the
// next row (and any history records) and returns them. The caller's bed is never
// modified, so a failed precondition leaves no partial state behind.
package bedstate

import (
	"time"

	"wisefido-erboard/internal/models"

	"github.com/google/uuid"
)

// Outcome 单床操作结果
type Outcome struct {
	Bed     models.Bed
	History []models.HistoryRecord
	Changed bool // false 表示幂等空操作，无需远端写入
}

// MoveOutcome 转床结果（两行必须作为一次合并更新写入）
type MoveOutcome struct {
	From models.Bed
	To   models.Bed
}

// Machine 床位状态机
type Machine struct {
	now   func() time.Time
	newID func() string
}

// NewMachine creates a state machine. nil clock/id functions fall back to
// time.Now and uuid.NewString.
func NewMachine(now func() time.Time, newID func() string) *Machine {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Machine{now: now, newID: newID}
}

func unchanged(b models.Bed) Outcome {
	return Outcome{Bed: b, Changed: false}
}

func changed(b models.Bed, history ...models.HistoryRecord) Outcome {
	return Outcome{Bed: b, History: history, Changed: true}
}

func (m *Machine) historyFor(kind models.HistoryKind, b models.Bed, at time.Time) models.HistoryRecord {
	rec := models.HistoryRecord{
		ID:         m.newID(),
		Kind:       kind,
		BedID:      b.ID,
		BedLabel:   b.Label,
		Section:    b.Section,
		DoctorID:   b.AssignedDoctorID,
		RecordedAt: at,
	}
	if b.Patient != nil {
		snapshot := b.Patient.Clone()
		rec.Patient = &snapshot
	}
	return rec
}

func requirePatient(op string, b models.Bed) error {
	if b.Patient == nil {
		return models.Invalid(op, "bed %s has no patient", b.ID)
	}
	return nil
}
