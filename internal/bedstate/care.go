package bedstate

import (
	"strings"

	"wisefido-erboard/internal/models"
)

// AssignDoctor sets or clears the responsible clinician. A change of doctor
// produces an assignment history record.
func (m *Machine) AssignDoctor(bed models.Bed, doctorID string) (Outcome, error) {
	if err := requirePatient("AssignDoctor", bed); err != nil {
		return Outcome{}, err
	}
	if bed.AssignedDoctorID == doctorID {
		return unchanged(bed), nil
	}

	next := bed.Clone()
	next.AssignedDoctorID = doctorID
	if doctorID == "" {
		return changed(next), nil
	}
	return changed(next, m.historyFor(models.HistoryAssignment, next, m.now())), nil
}

// SetComment replaces the free-text bed comment.
func (m *Machine) SetComment(bed models.Bed, comment string) (Outcome, error) {
	if err := requirePatient("SetComment", bed); err != nil {
		return Outcome{}, err
	}
	if bed.Comment == comment {
		return unchanged(bed), nil
	}
	next := bed.Clone()
	next.Comment = comment
	return changed(next), nil
}

// UpdateVitals replaces the patient's latest vitals.
func (m *Machine) UpdateVitals(bed models.Bed, vitals models.Vitals) (Outcome, error) {
	if err := requirePatient("UpdateVitals", bed); err != nil {
		return Outcome{}, err
	}
	next := bed.Clone()
	next.Patient.Vitals = &vitals
	return changed(next), nil
}

// OrderMedication appends a Pending medication order.
func (m *Machine) OrderMedication(bed models.Bed, draft models.MedicationDraft, orderedBy string) (Outcome, error) {
	const op = "OrderMedication"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(draft.Name) == "" {
		return Outcome{}, models.Invalid(op, "medication name is required")
	}

	next := bed.Clone()
	next.Patient.Medications = append(next.Patient.Medications, models.MedicationOrder{
		ID:        m.newID(),
		Name:      strings.TrimSpace(draft.Name),
		Dose:      draft.Dose,
		Route:     draft.Route,
		OrderedBy: orderedBy,
		OrderedAt: m.now(),
		Status:    models.MedicationPending,
	})
	return changed(next), nil
}

// AdministerMedication marks a Pending order as Given. An order that is
// already Given is left untouched; a Cancelled order cannot be given.
func (m *Machine) AdministerMedication(bed models.Bed, orderID, by string) (Outcome, error) {
	const op = "AdministerMedication"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	idx := medicationIndex(bed.Patient, orderID)
	if idx < 0 {
		return Outcome{}, models.Invalid(op, "medication %s not found on bed %s", orderID, bed.ID)
	}

	switch bed.Patient.Medications[idx].Status {
	case models.MedicationGiven:
		return unchanged(bed), nil
	case models.MedicationCancelled:
		return Outcome{}, models.Invalid(op, "medication %s was cancelled", orderID)
	}

	now := m.now()
	next := bed.Clone()
	order := &next.Patient.Medications[idx]
	order.Status = models.MedicationGiven
	order.AdministeredBy = by
	order.AdministeredAt = &now
	return changed(next), nil
}

// CancelMedication cancels a Pending order. Terminal orders are left untouched.
func (m *Machine) CancelMedication(bed models.Bed, orderID string) (Outcome, error) {
	const op = "CancelMedication"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	idx := medicationIndex(bed.Patient, orderID)
	if idx < 0 {
		return Outcome{}, models.Invalid(op, "medication %s not found on bed %s", orderID, bed.ID)
	}
	if bed.Patient.Medications[idx].Status.Terminal() {
		return unchanged(bed), nil
	}

	next := bed.Clone()
	next.Patient.Medications[idx].Status = models.MedicationCancelled
	return changed(next), nil
}

// RequestAction appends an incomplete clinical action.
func (m *Machine) RequestAction(bed models.Bed, draft models.ActionDraft) (Outcome, error) {
	const op = "RequestAction"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	if !draft.Type.Valid() {
		return Outcome{}, models.Invalid(op, "unknown action type %q", draft.Type)
	}
	name := strings.TrimSpace(draft.Name)
	if name == "" {
		name = string(draft.Type)
	}

	next := bed.Clone()
	next.Patient.Actions = append(next.Patient.Actions, models.ClinicalAction{
		ID:          m.newID(),
		Type:        draft.Type,
		Name:        name,
		RequestedAt: m.now(),
	})
	return changed(next), nil
}

// CompleteAction marks a clinical action completed. Completing it again is a no-op.
func (m *Machine) CompleteAction(bed models.Bed, actionID string) (Outcome, error) {
	const op = "CompleteAction"
	if err := requirePatient(op, bed); err != nil {
		return Outcome{}, err
	}
	idx := -1
	for i, a := range bed.Patient.Actions {
		if a.ID == actionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Outcome{}, models.Invalid(op, "action %s not found on bed %s", actionID, bed.ID)
	}
	if bed.Patient.Actions[idx].IsCompleted {
		return unchanged(bed), nil
	}

	now := m.now()
	next := bed.Clone()
	next.Patient.Actions[idx].IsCompleted = true
	next.Patient.Actions[idx].CompletedAt = &now
	return changed(next), nil
}

func medicationIndex(p *models.Patient, orderID string) int {
	for i, med := range p.Medications {
		if med.ID == orderID {
			return i
		}
	}
	return -1
}
