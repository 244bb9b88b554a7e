package scheduler

import (
	"wisefido-erboard/internal/bedstate"
	"wisefido-erboard/internal/models"
)

// Complete resolves a task against the bed it came from. Medication tasks are
// administered by `by`, clinical actions are completed and cleaning tasks
// confirm the bed clean. Completing an already-completed task yields an
// unchanged outcome rather than an error, including when the task's source is
// gone: the patient was discharged or moved, or the cleaned bed is occupied again.
func Complete(m *bedstate.Machine, bed models.Bed, task models.DerivedTask, by string) (bedstate.Outcome, error) {
	if bed.ID != task.BedID {
		return bedstate.Outcome{}, models.Invalid("CompleteTask", "task belongs to bed %s, got %s", task.BedID, bed.ID)
	}

	if stale(bed, task) {
		return bedstate.Outcome{Bed: bed, Changed: false}, nil
	}

	switch task.Kind {
	case models.TaskMedication:
		return m.AdministerMedication(bed, task.SourceID, by)
	case models.TaskClinicalAction:
		return m.CompleteAction(bed, task.SourceID)
	case models.TaskCleaning:
		return m.ConfirmCleaned(bed)
	default:
		return bedstate.Outcome{}, models.Invalid("CompleteTask", "unknown task kind %q", task.Kind)
	}
}

// stale 任务来源已不存在（重复投递）
func stale(bed models.Bed, task models.DerivedTask) bool {
	switch task.Kind {
	case models.TaskMedication, models.TaskClinicalAction:
		return bed.Patient == nil || (task.PatientID != "" && bed.Patient.ID != task.PatientID)
	case models.TaskCleaning:
		return bed.Status.Occupied()
	}
	return false
}
