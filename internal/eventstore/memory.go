package eventstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and as a local test
// double. The clock is injectable so TTL expiry can be driven directly.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]Record),
		now:     time.Now,
	}
}

// SetClock replaces the store's clock. Test use only.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Append(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partition, ok := s.records[rec.PK]
	if !ok {
		partition = make(map[string]Record)
		s.records[rec.PK] = partition
	}
	partition[rec.SK] = rec
	return rec, nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, kind, subjectID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Unix()
	var result []Record
	for _, rec := range s.records[PartitionKey(kind, subjectID)] {
		if rec.TTL > cutoff {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SK < result[j].SK })
	return result, nil
}

func (s *MemoryStore) QueryByCustomer(_ context.Context, email, eventTypePrefix string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Unix()
	var result []Record
	for _, partition := range s.records {
		for _, rec := range partition {
			if rec.Email != email || rec.TTL <= cutoff {
				continue
			}
			if eventTypePrefix != "" && !strings.HasPrefix(rec.EventType, eventTypePrefix) {
				continue
			}
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EventType != result[j].EventType {
			return result[i].EventType < result[j].EventType
		}
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}
