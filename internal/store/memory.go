package store

import (
	"context"
	"sync"
	"time"

	"corpchat-backend/internal/model"
)

// MemoryWorkdayStore keeps workdays in process with the same uniqueness and
// revision rules as the Mongo store. Used for local runs and tests.
type MemoryWorkdayStore struct {
	mu      sync.Mutex
	records map[memoryKey]*model.WorkdayRecord
}

type memoryKey struct {
	userID string
	date   string
}

func NewMemoryWorkdayStore() *MemoryWorkdayStore {
	return &MemoryWorkdayStore{records: make(map[memoryKey]*model.WorkdayRecord)}
}

func (s *MemoryWorkdayStore) Get(_ context.Context, userID, date string) (*model.WorkdayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[memoryKey{userID, date}]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *MemoryWorkdayStore) GetMany(_ context.Context, date string, userIDs []string) ([]*model.WorkdayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*model.WorkdayRecord
	for _, id := range userIDs {
		if r, ok := s.records[memoryKey{id, date}]; ok {
			results = append(results, r.Clone())
		}
	}
	return results, nil
}

func (s *MemoryWorkdayStore) Insert(_ context.Context, record *model.WorkdayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{record.UserID, record.Date}
	if _, ok := s.records[key]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.records[key] = record.Clone()
	return nil
}

func (s *MemoryWorkdayStore) Update(_ context.Context, record *model.WorkdayRecord, prevRevision int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memoryKey{record.UserID, record.Date}
	cur, ok := s.records[key]
	if !ok || cur.Revision != prevRevision {
		return ErrStale
	}
	record.UpdatedAt = time.Now()
	s.records[key] = record.Clone()
	return nil
}

// Len reports how many records are stored.
func (s *MemoryWorkdayStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
