package models

import "time"

// MedicationStatus 用药医嘱状态
type MedicationStatus string

const (
	MedicationPending   MedicationStatus = "Pending"
	MedicationGiven     MedicationStatus = "Given"
	MedicationCancelled MedicationStatus = "Cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s MedicationStatus) Terminal() bool {
	return s == MedicationGiven || s == MedicationCancelled
}

// ActionType 临床检查/操作类型
type ActionType string

const (
	ActionLabs       ActionType = "Labs"
	ActionXRay       ActionType = "XRay"
	ActionCT         ActionType = "CT"
	ActionConsult    ActionType = "Consult"
	ActionUltrasound ActionType = "Ultrasound"
	ActionEKG        ActionType = "EKG"
	ActionOther      ActionType = "Other"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionLabs, ActionXRay, ActionCT, ActionConsult, ActionUltrasound, ActionEKG, ActionOther:
		return true
	}
	return false
}

// Vitals 生命体征（均为可选）
type Vitals struct {
	HeartRate       *int     `json:"heart_rate,omitempty"`
	RespiratoryRate *int     `json:"respiratory_rate,omitempty"`
	SystolicBP      *int     `json:"systolic_bp,omitempty"`
	DiastolicBP     *int     `json:"diastolic_bp,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	SpO2            *int     `json:"spo2,omitempty"`
}

// Patient 患者（由床位独占持有，不单独持久化）
type Patient struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Symptoms       string            `json:"symptoms"`
	TriageCategory int               `json:"triage_category"` // 1 = most severe, 5 = least
	ArrivalTime    time.Time         `json:"arrival_time"`
	Allergies      string            `json:"allergies,omitempty"`
	Vitals         *Vitals           `json:"vitals,omitempty"`
	Medications    []MedicationOrder `json:"medications"`
	Actions        []ClinicalAction  `json:"actions"`
}

// PatientDraft is the triage form content used to register a patient.
type PatientDraft struct {
	Name           string
	Symptoms       string
	TriageCategory int
	Allergies      string
	Vitals         *Vitals
}

// MedicationOrder 用药医嘱
// AdministeredAt 仅在状态为 Given 时设置
type MedicationOrder struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Dose           string           `json:"dose"`
	Route          string           `json:"route"`
	OrderedBy      string           `json:"ordered_by"`
	OrderedAt      time.Time        `json:"ordered_at"`
	Status         MedicationStatus `json:"status"`
	AdministeredBy string           `json:"administered_by,omitempty"`
	AdministeredAt *time.Time       `json:"administered_at,omitempty"`
}

// MedicationDraft carries the fields a clinician enters when ordering.
type MedicationDraft struct {
	Name  string
	Dose  string
	Route string
}

// ClinicalAction 临床操作（检验、影像、会诊等），完成后不可回退
type ClinicalAction struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Name        string     `json:"name"`
	IsCompleted bool       `json:"is_completed"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ActionDraft carries the fields a clinician enters when requesting an action.
type ActionDraft struct {
	Type ActionType
	Name string
}

// Clone returns a deep copy of the patient.
func (p Patient) Clone() Patient {
	out := p
	if p.Vitals != nil {
		v := *p.Vitals
		out.Vitals = &v
	}
	out.Medications = make([]MedicationOrder, len(p.Medications))
	for i, m := range p.Medications {
		if m.AdministeredAt != nil {
			at := *m.AdministeredAt
			m.AdministeredAt = &at
		}
		out.Medications[i] = m
	}
	out.Actions = make([]ClinicalAction, len(p.Actions))
	for i, a := range p.Actions {
		if a.CompletedAt != nil {
			at := *a.CompletedAt
			a.CompletedAt = &at
		}
		out.Actions[i] = a
	}
	return out
}

// IsUrgent reports whether the triage category is at or above the urgency cut-off.
func (p Patient) IsUrgent(urgentTriageMax int) bool {
	return p.TriageCategory <= urgentTriageMax
}
