package models

import "time"

// ShiftType 班次类型
type ShiftType string

const (
	ShiftDay   ShiftType = "Day"
	ShiftNight ShiftType = "Night"
)

// WorkShift 医生排班（由排班子系统维护，负载评分只读）
type WorkShift struct {
	DoctorID string    `json:"doctor_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Type     ShiftType `json:"type"`
}

// ActiveAt reports whether the shift covers t.
func (s WorkShift) ActiveAt(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// EndsWithin reports whether the shift is active at t and ends within d.
func (s WorkShift) EndsWithin(t time.Time, d time.Duration) bool {
	return s.ActiveAt(t) && s.End.Sub(t) <= d
}

// Clinician 在岗医生
type Clinician struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Section string `json:"section"`
	Active  bool   `json:"active"`
}
