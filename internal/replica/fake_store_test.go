package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-erboard/internal/models"
)

// memStore 内存版资源存储，按版本做比较交换
type memStore struct {
	mu         sync.Mutex
	beds       map[string]models.Bed
	history    []models.HistoryRecord
	clinicians []models.Clinician
	shifts     []models.WorkShift
	writeErr   error
	rosterErr  error
	saves      int
}

func newMemStore(beds ...models.Bed) *memStore {
	s := &memStore{beds: make(map[string]models.Bed)}
	for _, b := range beds {
		s.beds[b.ID] = b
	}
	return s
}

func (s *memStore) FetchAll(ctx context.Context) ([]models.Bed, error) {
	return s.FetchBySections(ctx, nil)
}

func (s *memStore) FetchBySections(_ context.Context, sections []string) ([]models.Bed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bed
	for _, b := range s.beds {
		if len(sections) > 0 && !contains(sections, b.Section) {
			continue
		}
		out = append(out, b.Clone())
	}
	return out, nil
}

func (s *memStore) FetchByID(_ context.Context, bedID string) (models.Bed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.beds[bedID]
	if !ok {
		return models.Bed{}, models.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *memStore) Save(_ context.Context, bed models.Bed, expected int64) (models.Bed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return models.Bed{}, s.writeErr
	}
	if err := s.checkLocked(bed.ID, expected); err != nil {
		return models.Bed{}, err
	}
	s.saves++
	return s.putLocked(bed, expected), nil
}

func (s *memStore) SaveMove(_ context.Context, from, to models.Bed, expectedFrom, expectedTo int64) (models.Bed, models.Bed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return models.Bed{}, models.Bed{}, s.writeErr
	}
	if err := s.checkLocked(from.ID, expectedFrom); err != nil {
		return models.Bed{}, models.Bed{}, err
	}
	if err := s.checkLocked(to.ID, expectedTo); err != nil {
		return models.Bed{}, models.Bed{}, err
	}
	s.saves++
	return s.putLocked(from, expectedFrom), s.putLocked(to, expectedTo), nil
}

func (s *memStore) checkLocked(id string, expected int64) error {
	cur, ok := s.beds[id]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Version != expected {
		return &models.ConflictError{BedID: id, Reason: fmt.Sprintf("expected version %d, found %d", expected, cur.Version)}
	}
	return nil
}

func (s *memStore) putLocked(b models.Bed, expected int64) models.Bed {
	b = b.Clone()
	b.Version = expected + 1
	s.beds[b.ID] = b
	return b.Clone()
}

// bump 模拟另一个客户端直接写入
func (s *memStore) bump(bedID string, fn func(*models.Bed)) models.Bed {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.beds[bedID].Clone()
	fn(&b)
	b.Version++
	s.beds[bedID] = b
	return b.Clone()
}

func (s *memStore) row(bedID string) models.Bed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beds[bedID].Clone()
}

func (s *memStore) AppendHistory(_ context.Context, records ...models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, records...)
	return nil
}

func (s *memStore) ListActiveClinicians(context.Context) ([]models.Clinician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rosterErr != nil {
		return nil, s.rosterErr
	}
	return append([]models.Clinician(nil), s.clinicians...), nil
}

func (s *memStore) ListActiveShifts(_ context.Context, at time.Time) ([]models.WorkShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rosterErr != nil {
		return nil, s.rosterErr
	}
	var out []models.WorkShift
	for _, sh := range s.shifts {
		if sh.ActiveAt(at) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// fakePublisher 记录发布的事件，可选转发给其它副本
type fakePublisher struct {
	mu      sync.Mutex
	origin  string
	events  []models.BedEvent
	err     error
	forward []*Replica
}

func (p *fakePublisher) Publish(ctx context.Context, eventType models.BedEventType, bed models.Bed) error {
	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return p.err
	}
	ev := models.BedEvent{EventType: eventType, Bed: bed.Clone(), Origin: p.origin}
	p.events = append(p.events, ev)
	targets := append([]*Replica(nil), p.forward...)
	p.mu.Unlock()

	for _, r := range targets {
		_ = r.ApplyEvent(ctx, ev)
	}
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
