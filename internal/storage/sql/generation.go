package sql

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"tempinbox/backend/internal/domain"
)

// SaveGeneration 追加一条生成记录。
func (s *Store) SaveGeneration(record *domain.GenerationRecord) error {
	return s.db.Create(record).Error
}

// CountGenerations 统计窗口内同身份同套餐的生成次数。
func (s *Store) CountGenerations(identityKey string, tier domain.PlanTier, since time.Time) (int, error) {
	var count int64
	err := s.db.Model(&domain.GenerationRecord{}).
		Where("identity_key = ? AND plan_tier = ? AND generated_at >= ?", identityKey, tier, since).
		Count(&count).Error
	return int(count), err
}

// OldestGeneration 返回窗口内最早的一条记录，没有则返回 nil。
func (s *Store) OldestGeneration(identityKey string, tier domain.PlanTier, since time.Time) (*domain.GenerationRecord, error) {
	var record domain.GenerationRecord
	err := s.db.
		Where("identity_key = ? AND plan_tier = ? AND generated_at >= ?", identityKey, tier, since).
		Order("generated_at ASC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteGenerationsBefore 回收窗口外的旧记录，返回删除数量。
func (s *Store) DeleteGenerationsBefore(before time.Time) (int, error) {
	result := s.db.Where("generated_at < ?", before).Delete(&domain.GenerationRecord{})
	return int(result.RowsAffected), result.Error
}
