package scheduler

import "wisefido-erboard/internal/models"

// Filter 视图层过滤条件；空字段表示不过滤
type Filter struct {
	Section  string
	DoctorID string
	Kinds    []models.TaskKind
}

// Apply keeps matching tasks in their existing order.
func (f Filter) Apply(tasks []models.DerivedTask) []models.DerivedTask {
	out := make([]models.DerivedTask, 0, len(tasks))
	for _, t := range tasks {
		if f.Section != "" && t.Section != f.Section {
			continue
		}
		if f.DoctorID != "" && t.DoctorID != f.DoctorID {
			continue
		}
		if len(f.Kinds) > 0 && !containsKind(f.Kinds, t.Kind) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func containsKind(kinds []models.TaskKind, k models.TaskKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Summary 任务计数（供看板缓存）
type Summary struct {
	Total          int `json:"total"`
	Overdue        int `json:"overdue"`
	Urgent         int `json:"urgent"`
	Medication     int `json:"medication"`
	ClinicalAction int `json:"clinical_action"`
	Cleaning       int `json:"cleaning"`
}

// Summarize counts tasks by kind and flag.
func Summarize(tasks []models.DerivedTask) Summary {
	var s Summary
	for _, t := range tasks {
		s.Total++
		if t.IsOverdue {
			s.Overdue++
		}
		if t.IsUrgent {
			s.Urgent++
		}
		switch t.Kind {
		case models.TaskMedication:
			s.Medication++
		case models.TaskClinicalAction:
			s.ClinicalAction++
		case models.TaskCleaning:
			s.Cleaning++
		}
	}
	return s
}
