package bedstate

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"wisefido-erboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
	seq int
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) NextID() string {
	c.seq++
	return fmt.Sprintf("id-%d", c.seq)
}

func setupMachine() (*Machine, *testClock) {
	clock := &testClock{now: time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)}
	return NewMachine(clock.Now, clock.NextID), clock
}

func emptyBed(id string) models.Bed {
	return models.Bed{ID: id, Label: "A" + id, Section: "Red", Status: models.StatusEmpty}
}

func registered(t *testing.T, m *Machine, id string) models.Bed {
	out, err := m.RegisterPatient(emptyBed(id), models.PatientDraft{Name: "X", TriageCategory: 3}, "doc-1")
	require.NoError(t, err)
	return out.Bed
}

func TestRegisterPatient_EmptyBed(t *testing.T) {
	m, clock := setupMachine()

	out, err := m.RegisterPatient(emptyBed("1"), models.PatientDraft{
		Name:           "X",
		TriageCategory: 2,
		Symptoms:       "chest pain",
	}, "")
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, models.StatusWaitingExam, out.Bed.Status)
	require.NotNil(t, out.Bed.Patient)
	assert.Equal(t, 2, out.Bed.Patient.TriageCategory)
	assert.Equal(t, "chest pain", out.Bed.Patient.Symptoms)
	assert.Equal(t, clock.now, out.Bed.Patient.ArrivalTime)
	assert.NotEmpty(t, out.Bed.Patient.ID)
	assert.Empty(t, out.Bed.Patient.Medications)
	assert.Empty(t, out.Bed.Patient.Actions)

	require.Len(t, out.History, 1)
	assert.Equal(t, models.HistoryRegistration, out.History[0].Kind)
}

func TestRegisterPatient_WithDoctorAddsAssignmentHistory(t *testing.T) {
	m, _ := setupMachine()

	out, err := m.RegisterPatient(emptyBed("1"), models.PatientDraft{Name: "Y", TriageCategory: 4}, "doc-7")
	require.NoError(t, err)

	assert.Equal(t, "doc-7", out.Bed.AssignedDoctorID)
	require.Len(t, out.History, 2)
	assert.Equal(t, models.HistoryAssignment, out.History[1].Kind)
	assert.Equal(t, "doc-7", out.History[1].DoctorID)
}

func TestRegisterPatient_Rejections(t *testing.T) {
	m, _ := setupMachine()
	occupied := registered(t, m, "1")

	_, err := m.RegisterPatient(occupied, models.PatientDraft{Name: "Z", TriageCategory: 1}, "")
	assert.True(t, models.IsValidation(err))

	cleaning := emptyBed("2")
	cleaning.Status = models.StatusCleaning
	_, err = m.RegisterPatient(cleaning, models.PatientDraft{Name: "Z", TriageCategory: 1}, "")
	assert.True(t, models.IsValidation(err))

	_, err = m.RegisterPatient(emptyBed("3"), models.PatientDraft{Name: "Z", TriageCategory: 6}, "")
	assert.True(t, models.IsValidation(err))

	_, err = m.RegisterPatient(emptyBed("3"), models.PatientDraft{Name: "  ", TriageCategory: 3}, "")
	assert.True(t, models.IsValidation(err))
}

func TestChangeStatus(t *testing.T) {
	m, _ := setupMachine()
	bed := registered(t, m, "1")

	out, err := m.ChangeStatus(bed, models.StatusIvDrip)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIvDrip, out.Bed.Status)
	assert.Equal(t, models.StatusWaitingExam, bed.Status, "input must not be mutated")

	same, err := m.ChangeStatus(out.Bed, models.StatusIvDrip)
	require.NoError(t, err)
	assert.False(t, same.Changed)

	_, err = m.ChangeStatus(bed, models.StatusEmpty)
	assert.True(t, models.IsValidation(err))
	_, err = m.ChangeStatus(bed, models.StatusCleaning)
	assert.True(t, models.IsValidation(err))

	_, err = m.ChangeStatus(emptyBed("2"), models.StatusAdmitting)
	assert.True(t, models.IsValidation(err))
}

func TestDischarge(t *testing.T) {
	m, clock := setupMachine()
	bed := registered(t, m, "1")
	bed.Comment = "family waiting"
	bed.Status = models.StatusObservation

	clock.now = clock.now.Add(150 * time.Minute)
	out, err := m.Discharge(bed)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCleaning, out.Bed.Status)
	assert.Nil(t, out.Bed.Patient)
	assert.Empty(t, out.Bed.AssignedDoctorID)
	assert.Empty(t, out.Bed.Comment)

	require.Len(t, out.History, 1)
	rec := out.History[0]
	assert.Equal(t, models.HistoryDischarge, rec.Kind)
	assert.Equal(t, models.StatusObservation, rec.FinalStatus)
	assert.Equal(t, 150, rec.StayMinutes)
	assert.Equal(t, "doc-1", rec.DoctorID)
	require.NotNil(t, rec.Patient)
	assert.Equal(t, "X", rec.Patient.Name)

	_, err = m.Discharge(out.Bed)
	assert.True(t, models.IsValidation(err))
}

func TestDischarge_SnapshotIsolatedFromBed(t *testing.T) {
	m, _ := setupMachine()
	bed := registered(t, m, "1")
	ordered, err := m.OrderMedication(bed, models.MedicationDraft{Name: "Paracetamol"}, "doc-1")
	require.NoError(t, err)

	out, err := m.Discharge(ordered.Bed)
	require.NoError(t, err)

	ordered.Bed.Patient.Medications[0].Status = models.MedicationGiven
	assert.Equal(t, models.MedicationPending, out.History[0].Patient.Medications[0].Status)
}

func TestConfirmCleaned_Idempotent(t *testing.T) {
	m, _ := setupMachine()
	bed := emptyBed("1")
	bed.Status = models.StatusCleaning

	once, err := m.ConfirmCleaned(bed)
	require.NoError(t, err)
	assert.True(t, once.Changed)
	assert.Equal(t, models.StatusEmpty, once.Bed.Status)

	twice, err := m.ConfirmCleaned(once.Bed)
	require.NoError(t, err)
	assert.False(t, twice.Changed)
	assert.Equal(t, once.Bed, twice.Bed)

	_, err = m.ConfirmCleaned(registered(t, m, "2"))
	assert.True(t, models.IsValidation(err))
}

func TestMovePatient(t *testing.T) {
	m, _ := setupMachine()
	a := registered(t, m, "A")
	a.Status = models.StatusWaitingTests
	a.Comment = "NPO"
	b := emptyBed("B")

	out, err := m.MovePatient(a, b)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCleaning, out.From.Status)
	assert.Nil(t, out.From.Patient)
	assert.Empty(t, out.From.AssignedDoctorID)
	assert.Empty(t, out.From.Comment)

	assert.Equal(t, models.StatusWaitingTests, out.To.Status)
	assert.Equal(t, a.Patient.ID, out.To.Patient.ID)
	assert.Equal(t, "doc-1", out.To.AssignedDoctorID)
	assert.Equal(t, "NPO", out.To.Comment)
	assert.Equal(t, "B", out.To.ID)
	assert.Equal(t, "AB", out.To.Label)
}

func TestMovePatient_RoundTrip(t *testing.T) {
	m, _ := setupMachine()
	a := registered(t, m, "A")
	a.Comment = "c"
	b := emptyBed("B")

	first, err := m.MovePatient(a, b)
	require.NoError(t, err)
	second, err := m.MovePatient(first.To, first.From)
	require.NoError(t, err)

	assert.Equal(t, a, second.To)
	assert.Equal(t, models.StatusCleaning, second.From.Status)
	assert.Nil(t, second.From.Patient)
	assert.Equal(t, "B", second.From.ID)
}

func TestMovePatient_Rejections(t *testing.T) {
	m, _ := setupMachine()
	a := registered(t, m, "A")
	c := registered(t, m, "C")

	_, err := m.MovePatient(a, c)
	assert.True(t, models.IsConflict(err))

	_, err = m.MovePatient(emptyBed("E"), emptyBed("F"))
	assert.True(t, models.IsValidation(err))

	_, err = m.MovePatient(a, a)
	assert.True(t, models.IsValidation(err))

	cleaning := emptyBed("G")
	cleaning.Status = models.StatusCleaning
	_, err = m.MovePatient(a, cleaning)
	assert.NoError(t, err)
}

func TestMedicationLifecycle(t *testing.T) {
	m, clock := setupMachine()
	bed := registered(t, m, "1")

	ordered, err := m.OrderMedication(bed, models.MedicationDraft{Name: "Morphine", Dose: "2mg", Route: "IV"}, "doc-1")
	require.NoError(t, err)
	require.Len(t, ordered.Bed.Patient.Medications, 1)
	order := ordered.Bed.Patient.Medications[0]
	assert.Equal(t, models.MedicationPending, order.Status)
	assert.Nil(t, order.AdministeredAt)

	clock.now = clock.now.Add(10 * time.Minute)
	given, err := m.AdministerMedication(ordered.Bed, order.ID, "nurse-1")
	require.NoError(t, err)
	got := given.Bed.Patient.Medications[0]
	assert.Equal(t, models.MedicationGiven, got.Status)
	assert.Equal(t, "nurse-1", got.AdministeredBy)
	require.NotNil(t, got.AdministeredAt)
	assert.Equal(t, clock.now, *got.AdministeredAt)

	again, err := m.AdministerMedication(given.Bed, order.ID, "nurse-2")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, "nurse-1", again.Bed.Patient.Medications[0].AdministeredBy)

	cancel, err := m.CancelMedication(given.Bed, order.ID)
	require.NoError(t, err)
	assert.False(t, cancel.Changed, "Given is terminal")

	_, err = m.AdministerMedication(given.Bed, "missing", "nurse-1")
	assert.True(t, models.IsValidation(err))
}

func TestCancelledMedicationCannotBeGiven(t *testing.T) {
	m, _ := setupMachine()
	ordered, err := m.OrderMedication(registered(t, m, "1"), models.MedicationDraft{Name: "Ketorolac"}, "doc-1")
	require.NoError(t, err)
	id := ordered.Bed.Patient.Medications[0].ID

	cancelled, err := m.CancelMedication(ordered.Bed, id)
	require.NoError(t, err)
	assert.Equal(t, models.MedicationCancelled, cancelled.Bed.Patient.Medications[0].Status)
	assert.Nil(t, cancelled.Bed.Patient.Medications[0].AdministeredAt)

	_, err = m.AdministerMedication(cancelled.Bed, id, "nurse-1")
	assert.True(t, models.IsValidation(err))
}

func TestActionLifecycle(t *testing.T) {
	m, _ := setupMachine()
	requested, err := m.RequestAction(registered(t, m, "1"), models.ActionDraft{Type: models.ActionCT})
	require.NoError(t, err)
	action := requested.Bed.Patient.Actions[0]
	assert.Equal(t, "CT", action.Name)
	assert.False(t, action.IsCompleted)

	done, err := m.CompleteAction(requested.Bed, action.ID)
	require.NoError(t, err)
	assert.True(t, done.Bed.Patient.Actions[0].IsCompleted)
	assert.NotNil(t, done.Bed.Patient.Actions[0].CompletedAt)

	again, err := m.CompleteAction(done.Bed, action.ID)
	require.NoError(t, err)
	assert.False(t, again.Changed)

	_, err = m.RequestAction(done.Bed, models.ActionDraft{Type: "MRI"})
	assert.True(t, models.IsValidation(err))
}

func TestAssignDoctor(t *testing.T) {
	m, _ := setupMachine()
	bed := registered(t, m, "1")

	out, err := m.AssignDoctor(bed, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", out.Bed.AssignedDoctorID)
	require.Len(t, out.History, 1)
	assert.Equal(t, models.HistoryAssignment, out.History[0].Kind)

	same, err := m.AssignDoctor(out.Bed, "doc-2")
	require.NoError(t, err)
	assert.False(t, same.Changed)

	cleared, err := m.AssignDoctor(out.Bed, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.History)

	_, err = m.AssignDoctor(emptyBed("2"), "doc-2")
	assert.True(t, models.IsValidation(err))
}

// Random operation sequences must never break the occupancy invariant.
func TestOccupancyInvariant_RandomSequences(t *testing.T) {
	m, clock := setupMachine()
	rng := rand.New(rand.NewSource(42))

	beds := make([]models.Bed, 6)
	for i := range beds {
		beds[i] = emptyBed(fmt.Sprintf("%d", i))
	}
	occupiedStatuses := []models.BedStatus{
		models.StatusWaitingExam, models.StatusAdmitting, models.StatusDischarging,
		models.StatusIvDrip, models.StatusWaitingTests, models.StatusObservation,
	}

	for step := 0; step < 5000; step++ {
		clock.now = clock.now.Add(time.Minute)
		i := rng.Intn(len(beds))
		bed := beds[i]

		switch rng.Intn(6) {
		case 0:
			if out, err := m.RegisterPatient(bed, models.PatientDraft{Name: "P", TriageCategory: 1 + rng.Intn(5)}, ""); err == nil {
				beds[i] = out.Bed
			}
		case 1:
			if out, err := m.ChangeStatus(bed, models.AllStatuses[rng.Intn(len(models.AllStatuses))]); err == nil {
				beds[i] = out.Bed
			}
		case 2:
			if out, err := m.ChangeStatus(bed, occupiedStatuses[rng.Intn(len(occupiedStatuses))]); err == nil {
				beds[i] = out.Bed
			}
		case 3:
			if out, err := m.Discharge(bed); err == nil {
				beds[i] = out.Bed
			}
		case 4:
			if out, err := m.ConfirmCleaned(bed); err == nil {
				beds[i] = out.Bed
			}
		case 5:
			j := rng.Intn(len(beds))
			if out, err := m.MovePatient(bed, beds[j]); err == nil {
				beds[i] = out.From
				beds[j] = out.To
			}
		}

		for _, b := range beds {
			require.NoError(t, b.Validate(), "step %d", step)
		}
	}
}
