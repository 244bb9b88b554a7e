// Package scheduler derives the prioritized queue of outstanding clinical work
// from a snapshot of beds. It keeps no state between calls.
package scheduler

import (
	"sort"
	"time"

	"wisefido-erboard/internal/models"
)

// Thresholds 派生任务的超时/紧急阈值
type Thresholds struct {
	MedicationOverdue time.Duration
	ActionOverdue     time.Duration
	UrgentTriageMax   int
}

// DefaultThresholds: medication 60m, clinical action 90m, triage 1-2 urgent.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MedicationOverdue: 60 * time.Minute,
		ActionOverdue:     90 * time.Minute,
		UrgentTriageMax:   2,
	}
}

// Derive builds the task list for the given beds and returns it sorted.
//
// Rules:
//   - Cleaning bed: one Cleaning task, always overdue, never urgent
//   - Pending medication: overdue after MedicationOverdue
//   - Incomplete clinical action: overdue after ActionOverdue
func Derive(beds []models.Bed, now time.Time, th Thresholds) []models.DerivedTask {
	tasks := make([]models.DerivedTask, 0)

	for _, bed := range beds {
		if bed.Status == models.StatusCleaning {
			tasks = append(tasks, models.DerivedTask{
				Kind:      models.TaskCleaning,
				SourceID:  bed.ID,
				BedID:     bed.ID,
				BedLabel:  bed.Label,
				Section:   bed.Section,
				Title:     "Clean bed " + bed.Label,
				Timestamp: bed.UpdatedAt,
				IsOverdue: true,
				IsUrgent:  false,
			})
			continue
		}

		p := bed.Patient
		if p == nil {
			continue
		}
		urgent := p.IsUrgent(th.UrgentTriageMax)

		for _, med := range p.Medications {
			if med.Status != models.MedicationPending {
				continue
			}
			t := baseTask(bed, p, urgent)
			t.Kind = models.TaskMedication
			t.SourceID = med.ID
			t.Title = med.Name
			if med.Dose != "" {
				t.Title += " " + med.Dose
			}
			t.Timestamp = med.OrderedAt
			t.IsOverdue = now.Sub(med.OrderedAt) > th.MedicationOverdue
			tasks = append(tasks, t)
		}

		for _, action := range p.Actions {
			if action.IsCompleted {
				continue
			}
			t := baseTask(bed, p, urgent)
			t.Kind = models.TaskClinicalAction
			t.SourceID = action.ID
			t.Title = action.Name
			t.Timestamp = action.RequestedAt
			t.IsOverdue = now.Sub(action.RequestedAt) > th.ActionOverdue
			tasks = append(tasks, t)
		}
	}

	Sort(tasks)
	return tasks
}

func baseTask(bed models.Bed, p *models.Patient, urgent bool) models.DerivedTask {
	return models.DerivedTask{
		BedID:          bed.ID,
		BedLabel:       bed.Label,
		Section:        bed.Section,
		DoctorID:       bed.AssignedDoctorID,
		PatientID:      p.ID,
		PatientName:    p.Name,
		TriageCategory: p.TriageCategory,
		IsUrgent:       urgent,
	}
}

// Less orders tasks: overdue first, then urgent, then oldest timestamp.
// Remaining ties fall back to source id, kind and bed id so the order is total.
func Less(a, b models.DerivedTask) bool {
	if a.IsOverdue != b.IsOverdue {
		return a.IsOverdue
	}
	if a.IsUrgent != b.IsUrgent {
		return a.IsUrgent
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.BedID < b.BedID
}

// Sort sorts tasks in place using Less.
func Sort(tasks []models.DerivedTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Less(tasks[i], tasks[j])
	})
}
