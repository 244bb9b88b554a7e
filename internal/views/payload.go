package views

import (
	"sort"
	"time"

	"wisefido-erboard/internal/assignment"
	"wisefido-erboard/internal/models"
	"wisefido-erboard/internal/replica"
	"wisefido-erboard/internal/scheduler"
)

// AllSections 汇总视图使用的分区键
const AllSections = "all"

// TaskQueueView 某分区的任务队列
type TaskQueueView struct {
	Section     string               `json:"section"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     scheduler.Summary    `json:"summary"`
	Tasks       []models.DerivedTask `json:"tasks"`
}

// AssignmentView 医生负载评分（升序，第一个为建议人选）
type AssignmentView struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Suggested   string             `json:"suggested,omitempty"`
	Scores      []assignment.Score `json:"scores"`
}

// BuildTaskQueues 从快照派生任务，返回汇总视图及每个分区的视图
func BuildTaskQueues(snap replica.Snapshot, now time.Time, th scheduler.Thresholds) []TaskQueueView {
	tasks := scheduler.Derive(snap.Beds, now, th)

	sections := make(map[string]struct{})
	for _, b := range snap.Beds {
		sections[b.Section] = struct{}{}
	}
	names := make([]string, 0, len(sections))
	for s := range sections {
		names = append(names, s)
	}
	sort.Strings(names)

	out := make([]TaskQueueView, 0, len(names)+1)
	out = append(out, newTaskQueue(AllSections, now, tasks))
	for _, s := range names {
		out = append(out, newTaskQueue(s, now, scheduler.Filter{Section: s}.Apply(tasks)))
	}
	return out
}

func newTaskQueue(section string, now time.Time, tasks []models.DerivedTask) TaskQueueView {
	return TaskQueueView{
		Section:     section,
		GeneratedAt: now,
		Summary:     scheduler.Summarize(tasks),
		Tasks:       tasks,
	}
}

// BuildAssignment 计算负载评分视图
func BuildAssignment(snap replica.Snapshot, now time.Time, w assignment.Weights) AssignmentView {
	scores := assignment.Rank(snap.Clinicians, snap.Beds, snap.Shifts, now, w)
	view := AssignmentView{GeneratedAt: now, Scores: scores}
	if len(scores) > 0 {
		view.Suggested = scores[0].ClinicianID
	}
	return view
}
