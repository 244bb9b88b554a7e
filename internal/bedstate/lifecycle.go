package bedstate

import (
	"strings"

	"wisefido-erboard/internal/models"
)

// RegisterPatient binds a newly triaged patient to an Empty bed, which becomes
// WaitingExam. A registration history record is always produced, plus an
// assignment record when doctorID is set.
func (m *Machine) RegisterPatient(bed models.Bed, draft models.PatientDraft, doctorID string) (Outcome, error) {
	const op = "RegisterPatient"
	if bed.Status != models.StatusEmpty {
		return Outcome{}, models.Invalid(op, "bed %s is %s, not Empty", bed.ID, bed.Status)
	}
	if strings.TrimSpace(draft.Name) == "" {
		return Outcome{}, models.Invalid(op, "patient name is required")
	}
	if draft.TriageCategory < 1 || draft.TriageCategory > 5 {
		return Outcome{}, models.Invalid(op, "triage category %d out of range 1..5", draft.TriageCategory)
	}

	now := m.now()
	next := bed.Clone()
	next.Status = models.StatusWaitingExam
	next.AssignedDoctorID = doctorID
	next.Comment = ""
	next.Patient = &models.Patient{
		ID:             m.newID(),
		Name:           strings.TrimSpace(draft.Name),
		Symptoms:       draft.Symptoms,
		TriageCategory: draft.TriageCategory,
		ArrivalTime:    now,
		Allergies:      draft.Allergies,
		Medications:    []models.MedicationOrder{},
		Actions:        []models.ClinicalAction{},
	}
	if draft.Vitals != nil {
		v := *draft.Vitals
		next.Patient.Vitals = &v
	}

	history := []models.HistoryRecord{m.historyFor(models.HistoryRegistration, next, now)}
	if doctorID != "" {
		history = append(history, m.historyFor(models.HistoryAssignment, next, now))
	}
	return changed(next, history...), nil
}

// ChangeStatus moves an occupied bed laterally between occupied sub-states.
// Empty is only reachable through ConfirmCleaned and Cleaning only through
// Discharge or MovePatient.
func (m *Machine) ChangeStatus(bed models.Bed, status models.BedStatus) (Outcome, error) {
	const op = "ChangeStatus"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	if !bed.Status.Occupied() {
		return Outcome{}, models.Invalid(op, "bed %s is %s", bed.ID, bed.Status)
	}
	if !status.Occupied() {
		return Outcome{}, models.Invalid(op, "cannot change bed %s to %s", bed.ID, status)
	}
	if bed.Status == status {
		return unchanged(bed), nil
	}

	next := bed.Clone()
	next.Status = status
	return changed(next), nil
}

// Discharge folds the patient into an immutable history record and sends the
// bed to Cleaning with patient, doctor and comment cleared.
func (m *Machine) Discharge(bed models.Bed) (Outcome, error) {
	const op = "Discharge"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}

	now := m.now()
	rec := m.historyFor(models.HistoryDischarge, bed, now)
	rec.FinalStatus = bed.Status
	rec.StayMinutes = int(models.ElapsedSince(bed.Patient.ArrivalTime, now).Minutes())

	next := bed.Clone()
	next.Status = models.StatusCleaning
	next.Patient = nil
	next.AssignedDoctorID = ""
	next.Comment = ""
	return changed(next, rec), nil
}

// ConfirmCleaned turns a Cleaning bed into Empty. Calling it on an already
// Empty bed is a no-op.
func (m *Machine) ConfirmCleaned(bed models.Bed) (Outcome, error) {
	switch bed.Status {
	case models.StatusEmpty:
		return unchanged(bed), nil
	case models.StatusCleaning:
		next := bed.Clone()
		next.Status = models.StatusEmpty
		next.Patient = nil
		return changed(next), nil
	default:
		return Outcome{}, models.Invalid("ConfirmCleaned", "bed %s is %s, not Cleaning", bed.ID, bed.Status)
	}
}

// MovePatient transfers patient, doctor assignment and comment from one bed to
// another. The destination must be Empty or Cleaning; the source becomes
// Cleaning. Both rows must be persisted as one merged update.
func (m *Machine) MovePatient(from, to models.Bed) (MoveOutcome, error) {
	const op = "MovePatient"
	if err := requirePatient(op, from); err != nil {
		return MoveOutcome{}, err
	}
	if from.ID == to.ID {
		return MoveOutcome{}, models.Invalid(op, "source and destination are the same bed %s", from.ID)
	}
	if to.Status != models.StatusEmpty && to.Status != models.StatusCleaning {
		return MoveOutcome{}, &models.ConflictError{BedID: to.ID, Reason: "destination occupied (" + string(to.Status) + ")"}
	}

	src := from.Clone()
	dst := to.Clone()

	dst.Status = src.Status
	dst.Patient = src.Patient
	dst.AssignedDoctorID = src.AssignedDoctorID
	dst.Comment = src.Comment

	src.Status = models.StatusCleaning
	src.Patient = nil
	src.AssignedDoctorID = ""
	src.Comment = ""

	return MoveOutcome{From: src, To: dst}, nil
}
