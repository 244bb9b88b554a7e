package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBedStatus_Occupied(t *testing.T) {
	assert.False(t, StatusEmpty.Occupied())
	assert.False(t, StatusCleaning.Occupied())
	assert.False(t, BedStatus("Broken").Occupied())
	for _, s := range []BedStatus{StatusWaitingExam, StatusAdmitting, StatusDischarging, StatusIvDrip, StatusWaitingTests, StatusObservation} {
		assert.True(t, s.Occupied(), s)
	}
}

func TestBed_Validate(t *testing.T) {
	patient := &Patient{ID: "p-1", TriageCategory: 3}

	require.NoError(t, Bed{ID: "b-1", Status: StatusEmpty}.Validate())
	require.NoError(t, Bed{ID: "b-1", Status: StatusCleaning}.Validate())
	require.NoError(t, Bed{ID: "b-1", Status: StatusObservation, Patient: patient}.Validate())

	assert.Error(t, Bed{ID: "b-1", Status: StatusEmpty, Patient: patient}.Validate())
	assert.Error(t, Bed{ID: "b-1", Status: StatusCleaning, Patient: patient}.Validate())
	assert.Error(t, Bed{ID: "b-1", Status: StatusWaitingExam}.Validate())
	assert.Error(t, Bed{ID: "b-1", Status: "Broken"}.Validate())
	assert.Error(t, Bed{Status: StatusEmpty}.Validate())
}

func TestBed_CloneIsDeep(t *testing.T) {
	given := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	hr := 80
	orig := Bed{
		ID:     "b-1",
		Status: StatusIvDrip,
		Patient: &Patient{
			ID:          "p-1",
			Vitals:      &Vitals{HeartRate: &hr},
			Medications: []MedicationOrder{{ID: "m-1", Status: MedicationGiven, AdministeredAt: &given}},
			Actions:     []ClinicalAction{{ID: "a-1"}},
		},
	}

	cp := orig.Clone()
	cp.Patient.Name = "changed"
	cp.Patient.Medications[0].Status = MedicationCancelled
	*cp.Patient.Medications[0].AdministeredAt = given.Add(time.Hour)
	cp.Patient.Actions[0].IsCompleted = true
	*cp.Patient.Vitals.HeartRate = 120

	assert.Equal(t, "", orig.Patient.Name)
	assert.Equal(t, MedicationGiven, orig.Patient.Medications[0].Status)
	assert.Equal(t, given, *orig.Patient.Medications[0].AdministeredAt)
	assert.False(t, orig.Patient.Actions[0].IsCompleted)
	assert.Equal(t, 80, *orig.Patient.Vitals.HeartRate)
}

func TestElapsedSince_WrapsPastMidnight(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 30, 0, 0, time.UTC)

	assert.Equal(t, 90*time.Minute, ElapsedSince(now.Add(-90*time.Minute), now))
	// arrival recorded as 23:30 on "today" while the clock already rolled over
	arrival := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, ElapsedSince(arrival, now))
}

func TestErrorTaxonomy(t *testing.T) {
	v := Invalid("RegisterPatient", "bed %s is not empty", "b-1")
	assert.True(t, IsValidation(v))
	assert.False(t, IsConflict(v))
	assert.Equal(t, "RegisterPatient: bed b-1 is not empty", v.Error())

	c := &ConflictError{BedID: "b-2", Reason: "version mismatch"}
	assert.True(t, IsConflict(c))

	tr := &TransientIOError{Op: "save bed", Err: ErrNotFound}
	assert.True(t, IsTransient(tr))
	assert.ErrorIs(t, tr, ErrNotFound)
}
