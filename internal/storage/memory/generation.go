package memory

import (
	"time"

	"tempinbox/backend/internal/domain"
)

// SaveGeneration 追加一条生成记录，记录只增不改。
func (s *Store) SaveGeneration(record *domain.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *record
	s.generations = append(s.generations, &clone)
	return nil
}

// CountGenerations 统计窗口内同身份同套餐的生成次数。
func (s *Store) CountGenerations(identityKey string, tier domain.PlanTier, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, record := range s.generations {
		if record.IdentityKey == identityKey && record.PlanTier == tier && !record.GeneratedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// OldestGeneration 返回窗口内最早的一条记录，没有则返回 nil。
func (s *Store) OldestGeneration(identityKey string, tier domain.PlanTier, since time.Time) (*domain.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *domain.GenerationRecord
	for _, record := range s.generations {
		if record.IdentityKey != identityKey || record.PlanTier != tier || record.GeneratedAt.Before(since) {
			continue
		}
		if oldest == nil || record.GeneratedAt.Before(oldest.GeneratedAt) {
			oldest = record
		}
	}
	if oldest == nil {
		return nil, nil
	}
	clone := *oldest
	return &clone, nil
}

// DeleteGenerationsBefore 回收窗口外的旧记录，返回删除数量。
func (s *Store) DeleteGenerationsBefore(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.generations[:0]
	deleted := 0
	for _, record := range s.generations {
		if record.GeneratedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	s.generations = kept
	return deleted, nil
}
