package indexer

import (
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	tx    string
	index uint
}

// MemoryStore 在进程内保存事件。
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	seen    map[recordKey]struct{}
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[recordKey]struct{})}
}

// Append 实现 Store。
func (s *MemoryStore) Append(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		key := recordKey{tx: r.TxHash.Hex(), index: r.LogIndex}
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.records = append(s.records, cloneRecord(r))
	}
	sort.SliceStable(s.records, func(i, j int) bool {
		if s.records[i].BlockNumber != s.records[j].BlockNumber {
			return s.records[i].BlockNumber < s.records[j].BlockNumber
		}
		return s.records[i].LogIndex < s.records[j].LogIndex
	})
	return nil
}

// List 实现 Store。
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.limit()
	var out []Record
	for _, r := range s.records {
		if !filter.match(r) {
			continue
		}
		out = append(out, cloneRecord(r))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LatestBlock 实现 Store。
func (s *MemoryStore) LatestBlock(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return 0, nil
	}
	return s.records[len(s.records)-1].BlockNumber, nil
}

// Close 实现 Store。
func (s *MemoryStore) Close() error { return nil }

func cloneRecord(r Record) Record {
	out := r
	out.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}
