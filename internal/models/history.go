package models

import "time"

// HistoryKind 历史记录类型
type HistoryKind string

const (
	HistoryRegistration HistoryKind = "registration"
	HistoryAssignment   HistoryKind = "assignment"
	HistoryDischarge    HistoryKind = "discharge"
)

// HistoryRecord 不可变历史记录（登记、分配医生、出院），供报表读取
// Patient 为写入时刻的完整快照，不引用床位上的活动数据
type HistoryRecord struct {
	ID          string      `json:"id"`
	Kind        HistoryKind `json:"kind"`
	BedID       string      `json:"bed_id"`
	BedLabel    string      `json:"bed_label"`
	Section     string      `json:"section"`
	DoctorID    string      `json:"doctor_id,omitempty"`
	Patient     *Patient    `json:"patient,omitempty"`
	FinalStatus BedStatus   `json:"final_status,omitempty"`
	StayMinutes int         `json:"stay_minutes,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}
