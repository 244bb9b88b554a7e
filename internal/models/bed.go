package models

import (
	"fmt"
	"time"
)

// BedStatus 床位状态
type BedStatus string

const (
	StatusEmpty        BedStatus = "Empty"
	StatusWaitingExam  BedStatus = "WaitingExam"
	StatusAdmitting    BedStatus = "Admitting"
	StatusDischarging  BedStatus = "Discharging"
	StatusIvDrip       BedStatus = "IvDrip"
	StatusWaitingTests BedStatus = "WaitingTests"
	StatusObservation  BedStatus = "Observation"
	StatusCleaning     BedStatus = "Cleaning"
)

// AllStatuses lists every bed status in lifecycle order.
var AllStatuses = []BedStatus{
	StatusEmpty,
	StatusWaitingExam,
	StatusAdmitting,
	StatusDischarging,
	StatusIvDrip,
	StatusWaitingTests,
	StatusObservation,
	StatusCleaning,
}

// Valid reports whether s is a known status.
func (s BedStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Occupied reports whether a bed in this status holds a patient.
func (s BedStatus) Occupied() bool {
	return s.Valid() && s != StatusEmpty && s != StatusCleaning
}

// Bed 床位（共享资源表中的一行）
// 每次写入都是整行替换；Version 为乐观并发令牌，每次远端写入成功后 +1
type Bed struct {
	ID               string    `json:"id"`
	Label            string    `json:"label"`
	Section          string    `json:"section"`
	Status           BedStatus `json:"status"`
	AssignedDoctorID string    `json:"assigned_doctor_id,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	Patient          *Patient  `json:"patient,omitempty"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updated_at"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
}

// Clone returns a deep copy of the bed, including the patient and its orders.
func (b Bed) Clone() Bed {
	out := b
	if b.Patient != nil {
		p := b.Patient.Clone()
		out.Patient = &p
	}
	return out
}

// HasPatient reports whether a patient is attached.
func (b Bed) HasPatient() bool {
	return b.Patient != nil
}

// Validate checks the occupancy invariant: a patient is present iff the
// status is neither Empty nor Cleaning.
func (b Bed) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bed id is required")
	}
	if !b.Status.Valid() {
		return fmt.Errorf("bed %s: unknown status %q", b.ID, b.Status)
	}
	if b.Status.Occupied() && b.Patient == nil {
		return fmt.Errorf("bed %s: status %s requires a patient", b.ID, b.Status)
	}
	if !b.Status.Occupied() && b.Patient != nil {
		return fmt.Errorf("bed %s: status %s must not hold a patient", b.ID, b.Status)
	}
	return nil
}

// ElapsedSince returns now - arrival. A negative delta means the clock wrapped
// past midnight relative to a time-of-day arrival, so 24h is added.
func ElapsedSince(arrival, now time.Time) time.Duration {
	d := now.Sub(arrival)
	if d < 0 {
		d += 24 * time.Hour
	}
	return d
}
