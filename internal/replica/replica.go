// Package replica keeps one client's view of the shared bed collection.
//
// Local mutations are applied to the in-memory collection first and then
// written to the store with a version compare-and-swap. Change-feed events from
// every client replace rows by id unless they carry an older version than the
// local row. A periodic full resync repairs anything the feed missed.
package replica

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-erboard/internal/assignment"
	"wisefido-erboard/internal/bedstate"
	"wisefido-erboard/internal/models"
	"wisefido-erboard/internal/repository"
	"wisefido-erboard/internal/scheduler"
)

// Store 远端资源存储
type Store interface {
	repository.BedStore
	repository.HistoryStore
	repository.RosterStore
}

// Publisher 变更事件发布
type Publisher interface {
	Publish(ctx context.Context, eventType models.BedEventType, bed models.Bed) error
}

// Snapshot 某一时刻的本地视图（深拷贝，可安全跨 goroutine 使用）
type Snapshot struct {
	Beds         []models.Bed
	Clinicians   []models.Clinician
	Shifts       []models.WorkShift
	RosterLoaded bool
	TakenAt      time.Time
}

// Listener 本地视图变化回调
type Listener func(Snapshot)

// Options 副本参数
type Options struct {
	ClientID   string
	Sections   []string // 为空表示全部分区
	Thresholds scheduler.Thresholds
	Weights    assignment.Weights
	Now        func() time.Time
	NewID      func() string
}

// Replica 单客户端的床位集合副本
type Replica struct {
	store     Store
	publisher Publisher
	machine   *bedstate.Machine
	opts      Options
	logger    *zap.Logger

	// writeMu 串行化本地变更，保证调用顺序
	writeMu sync.Mutex

	mu           sync.RWMutex
	beds         map[string]models.Bed
	clinicians   []models.Clinician
	shifts       []models.WorkShift
	rosterLoaded bool
	listeners    []Listener
}

// New 创建副本；publisher 可以为 nil（轮询模式）
func New(store Store, publisher Publisher, opts Options, logger *zap.Logger) *Replica {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Thresholds == (scheduler.Thresholds{}) {
		opts.Thresholds = scheduler.DefaultThresholds()
	}
	if opts.Weights == (assignment.Weights{}) {
		opts.Weights = assignment.DefaultWeights()
	}
	return &Replica{
		store:     store,
		publisher: publisher,
		machine:   bedstate.NewMachine(opts.Now, opts.NewID),
		opts:      opts,
		logger:    logger,
		beds:      make(map[string]models.Bed),
	}
}

// OnChange 注册视图变化回调；回调在锁外调用，可能来自不同 goroutine
func (r *Replica) OnChange(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Bed 返回单个床位的副本
func (r *Replica) Bed(bedID string) (models.Bed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beds[bedID]
	if !ok {
		return models.Bed{}, false
	}
	return b.Clone(), true
}

// Beds 返回按分区、标签排序的全部床位
func (r *Replica) Beds() []models.Bed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedBedsLocked()
}

// Snapshot 返回当前视图
func (r *Replica) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Tasks 派生任务队列（排序后再过滤）
func (r *Replica) Tasks(now time.Time, filter scheduler.Filter) []models.DerivedTask {
	tasks := scheduler.Derive(r.Beds(), now, r.opts.Thresholds)
	return filter.Apply(tasks)
}

// Suggestions 全部在岗医生的负载评分，升序
func (r *Replica) Suggestions(now time.Time) []assignment.Score {
	snap := r.Snapshot()
	return assignment.Rank(snap.Clinicians, snap.Beds, snap.Shifts, now, r.opts.Weights)
}

// Suggest 负载最低的医生
func (r *Replica) Suggest(now time.Time) (assignment.Score, bool) {
	snap := r.Snapshot()
	return assignment.Suggest(snap.Clinicians, snap.Beds, snap.Shifts, now, r.opts.Weights)
}

func (r *Replica) snapshotLocked() Snapshot {
	snap := Snapshot{
		Beds:         r.sortedBedsLocked(),
		Clinicians:   append([]models.Clinician(nil), r.clinicians...),
		Shifts:       append([]models.WorkShift(nil), r.shifts...),
		RosterLoaded: r.rosterLoaded,
		TakenAt:      r.opts.Now(),
	}
	return snap
}

func (r *Replica) sortedBedsLocked() []models.Bed {
	out := make([]models.Bed, 0, len(r.beds))
	for _, b := range r.beds {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Section != out[j].Section {
			return out[i].Section < out[j].Section
		}
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Replica) notify() {
	r.mu.RLock()
	listeners := append([]Listener(nil), r.listeners...)
	var snap Snapshot
	if len(listeners) > 0 {
		snap = r.snapshotLocked()
	}
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (r *Replica) inScope(section string) bool {
	if len(r.opts.Sections) == 0 {
		return true
	}
	for _, s := range r.opts.Sections {
		if s == section {
			return true
		}
	}
	return false
}
