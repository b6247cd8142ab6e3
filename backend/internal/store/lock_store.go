package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/lock"
)

type LockStore struct{ db *gorm.DB }

var _ collab.LockStore = (*LockStore)(nil)

func NewLockStore(db *gorm.DB) *LockStore {
	return &LockStore{db: db}
}

// SaveLock 按 document_id upsert 整条锁记录
func (s *LockStore) SaveLock(ctx context.Context, l lock.EditLock) error {
	rec := lockRecord(l)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// LoadLocks 返回仍被持有或仍有请求的锁
func (s *LockStore) LoadLocks(ctx context.Context) ([]lock.EditLock, error) {
	var recs []LockRecord
	err := s.db.WithContext(ctx).
		Where("current_editor_id <> 0 OR requested_by_user_id <> 0").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]lock.EditLock, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.editLock())
	}
	return out, nil
}
