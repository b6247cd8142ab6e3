package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sharednote/backend/internal/oplog"
	"sharednote/backend/internal/ot"
)

const maxAppendAttempts = 5

var _ oplog.Log = (*OperationStore)(nil)

// OperationStore 是基于 MySQL 的操作日志，实现 oplog.Log
type OperationStore struct{ db *gorm.DB }

func NewOperationStore(db *gorm.DB) *OperationStore {
	return &OperationStore{db: db}
}

// Append 在事务内锁定该文档的最大序号后写入 max+1；
// 多实例并发写入撞上唯一键 (document_id, sequence_number) 时重试
func (s *OperationStore) Append(ctx context.Context, docID string, op ot.Operation) (ot.Operation, error) {
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		var logged ot.Operation
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var last uint64
			if err := tx.Model(&OperationRecord{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Select("COALESCE(MAX(sequence_number), 0)").
				Where("document_id = ?", docID).
				Scan(&last).Error; err != nil {
				return err
			}
			logged = oplog.Stamp(docID, op, last+1)
			rec := operationRecord(logged)
			return tx.Create(&rec).Error
		})
		if err == nil {
			return logged, nil
		}
		if !isDuplicateKey(err) {
			return ot.Operation{}, fmt.Errorf("insert operation: %w", err)
		}
	}
	return ot.Operation{}, fmt.Errorf("%w: document %s", ErrSequenceConflict, docID)
}

func (s *OperationStore) ListSince(ctx context.Context, docID string, afterSeq uint64, limit int) ([]ot.Operation, error) {
	q := s.db.WithContext(ctx).
		Where("document_id = ? AND sequence_number > ?", docID, afterSeq).
		Order("sequence_number ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []OperationRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]ot.Operation, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.operation())
	}
	return out, nil
}

func (s *OperationStore) Get(ctx context.Context, docID string, seq uint64) (ot.Operation, error) {
	var rec OperationRecord
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND sequence_number = ?", docID, seq).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ot.Operation{}, oplog.ErrNotFound
	}
	if err != nil {
		return ot.Operation{}, err
	}
	return rec.operation(), nil
}

func (s *OperationStore) LastSequence(ctx context.Context, docID string) (uint64, error) {
	var last uint64
	err := s.db.WithContext(ctx).Model(&OperationRecord{}).
		Select("COALESCE(MAX(sequence_number), 0)").
		Where("document_id = ?", docID).
		Scan(&last).Error
	return last, err
}

// Documents 返回日志中出现过的全部文档 ID
func (s *OperationStore) Documents(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&OperationRecord{}).
		Distinct("document_id").
		Order("document_id").
		Pluck("document_id", &ids).Error
	return ids, err
}
