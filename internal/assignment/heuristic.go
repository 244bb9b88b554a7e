// Package assignment computes the advisory clinician load score used to suggest
// who should receive the next patient. Scores are recomputed on demand.
package assignment

import (
	"math"
	"sort"
	"time"

	"wisefido-erboard/internal/models"
)

// Weights 负载评分参数
// 这些常数没有明确的临床依据，保持可配置
type Weights struct {
	DischargingStatusWeight float64       // bed in Discharging counts this fraction
	AgeBumpPerHour          float64       // multiplier per hour since arrival
	AgeBumpCapHours         float64       // age contribution cap
	RecencyWindow           time.Duration // latest arrival younger than this triggers RecencyPenalty
	RecencyPenalty          float64
	CapacityThreshold       int // assigned beds at or above this trigger CapacityPenalty
	CapacityPenalty         float64
	ShiftEndWindow          time.Duration // active shift ending within this adds ShiftEndPenalty
	ShiftEndPenalty         float64
	DischargeReliefMinBeds  int
	DischargeReliefFactor   float64
	DischargeReliefCap      float64
}

// DefaultWeights returns the weights the board has always used.
func DefaultWeights() Weights {
	return Weights{
		DischargingStatusWeight: 0.6,
		AgeBumpPerHour:          0.15,
		AgeBumpCapHours:         2,
		RecencyWindow:           20 * time.Minute,
		RecencyPenalty:          1.5,
		CapacityThreshold:       5,
		CapacityPenalty:         3.0,
		ShiftEndWindow:          60 * time.Minute,
		ShiftEndPenalty:         50,
		DischargeReliefMinBeds:  2,
		DischargeReliefFactor:   0.8,
		DischargeReliefCap:      0.5,
	}
}

// Score 单个医生的负载评分及其组成
type Score struct {
	ClinicianID     string     `json:"clinician_id"`
	Score           float64    `json:"score"`
	Load            float64    `json:"load"`
	RecencyPenalty  float64    `json:"recency_penalty"`
	CapacityPenalty float64    `json:"capacity_penalty"`
	DischargeRelief float64    `json:"discharge_relief"`
	BedCount        int        `json:"bed_count"`
	DischargeCount  int        `json:"discharge_count"`
	LatestArrival   *time.Time `json:"latest_arrival,omitempty"`
}

// Rank scores every active clinician and returns the list sorted ascending
// (ties by clinician id). Beds count toward a clinician only while occupied.
func Rank(clinicians []models.Clinician, beds []models.Bed, shifts []models.WorkShift, now time.Time, w Weights) []Score {
	byDoctor := make(map[string][]models.Bed)
	for _, bed := range beds {
		if bed.AssignedDoctorID == "" || bed.Patient == nil || !bed.Status.Occupied() {
			continue
		}
		byDoctor[bed.AssignedDoctorID] = append(byDoctor[bed.AssignedDoctorID], bed)
	}

	endingSoon := make(map[string]bool)
	for _, s := range shifts {
		if s.EndsWithin(now, w.ShiftEndWindow) {
			endingSoon[s.DoctorID] = true
		}
	}

	scores := make([]Score, 0, len(clinicians))
	seen := make(map[string]bool)
	for _, c := range clinicians {
		if !c.Active || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		scores = append(scores, scoreClinician(c.ID, byDoctor[c.ID], endingSoon[c.ID], now, w))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score < scores[j].Score
		}
		return scores[i].ClinicianID < scores[j].ClinicianID
	})
	return scores
}

// Suggest returns the least-loaded clinician. ok is false when nobody is active.
func Suggest(clinicians []models.Clinician, beds []models.Bed, shifts []models.WorkShift, now time.Time, w Weights) (Score, bool) {
	ranked := Rank(clinicians, beds, shifts, now, w)
	if len(ranked) == 0 {
		return Score{}, false
	}
	return ranked[0], true
}

func scoreClinician(id string, beds []models.Bed, shiftEnding bool, now time.Time, w Weights) Score {
	s := Score{ClinicianID: id, BedCount: len(beds)}

	var latest time.Time
	for _, bed := range beds {
		p := bed.Patient
		severity := float64(6 - p.TriageCategory)

		statusWeight := 1.0
		if bed.Status == models.StatusDischarging {
			statusWeight = w.DischargingStatusWeight
			s.DischargeCount++
		}

		// arrivals stamped ahead of now (client clock skew) count as age 0
		hours := math.Max(now.Sub(p.ArrivalTime).Minutes()/60, 0)
		ageBump := math.Min(hours, w.AgeBumpCapHours) * w.AgeBumpPerHour

		s.Load += severity * statusWeight * (1 + ageBump)

		if p.ArrivalTime.After(latest) {
			latest = p.ArrivalTime
		}
	}

	if !latest.IsZero() {
		s.LatestArrival = &latest
		if now.Sub(latest) < w.RecencyWindow {
			s.RecencyPenalty = w.RecencyPenalty
		}
	}

	if s.BedCount >= w.CapacityThreshold {
		s.CapacityPenalty = w.CapacityPenalty
	}
	if shiftEnding {
		s.CapacityPenalty += w.ShiftEndPenalty
	}

	if s.BedCount >= w.DischargeReliefMinBeds && s.DischargeCount > 0 {
		ratio := float64(s.DischargeCount) / float64(s.BedCount)
		s.DischargeRelief = -math.Min(w.DischargeReliefCap, ratio*w.DischargeReliefFactor)
	}

	s.Score = s.Load + s.RecencyPenalty + s.CapacityPenalty + s.DischargeRelief
	return s
}
