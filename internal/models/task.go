package models

import "time"

// TaskKind 派生任务类型
type TaskKind string

const (
	TaskMedication     TaskKind = "Medication"
	TaskClinicalAction TaskKind = "ClinicalAction"
	TaskCleaning       TaskKind = "Cleaning"
)

// DerivedTask 派生任务（每次读取时由床位快照重新计算，不持久化）
// SourceID 为医嘱 id、操作 id，或 Cleaning 任务的床位 id
type DerivedTask struct {
	Kind           TaskKind  `json:"kind"`
	SourceID       string    `json:"source_id"`
	BedID          string    `json:"bed_id"`
	BedLabel       string    `json:"bed_label"`
	Section        string    `json:"section"`
	DoctorID       string    `json:"doctor_id,omitempty"`
	PatientID      string    `json:"patient_id,omitempty"`
	PatientName    string    `json:"patient_name,omitempty"`
	TriageCategory int       `json:"triage_category,omitempty"`
	Title          string    `json:"title"`
	Timestamp      time.Time `json:"timestamp"`
	IsOverdue      bool      `json:"is_overdue"`
	IsUrgent       bool      `json:"is_urgent"`
}
