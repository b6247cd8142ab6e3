package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"sharednote/backend/internal/collab"
)

// DocumentStore 保存文档物化内容的快照
type DocumentStore struct{ db *gorm.DB }

var _ collab.DocumentStore = (*DocumentStore)(nil)

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) LoadDocument(ctx context.Context, docID string) (collab.Document, bool, error) {
	var rec DocumentRecord
	err := s.db.WithContext(ctx).Where("id = ?", docID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return collab.Document{}, false, nil
	}
	if err != nil {
		return collab.Document{}, false, err
	}
	return rec.document(), true, nil
}

// SaveDocument 只在新快照的序号更大时覆盖，乱序到达的旧快照被忽略
func (s *DocumentStore) SaveDocument(ctx context.Context, doc collab.Document) error {
	rec := documentRecord(doc)
	res := s.db.WithContext(ctx).Model(&DocumentRecord{}).
		Where("id = ? AND last_sequence < ?", rec.ID, rec.LastSequence).
		Updates(map[string]any{
			"content":        rec.Content,
			"last_sequence":  rec.LastSequence,
			"last_editor_id": rec.LastEditorID,
			"updated_at":     rec.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if isDuplicateKey(err) {
		// 已存在同序号或更新的快照
		return nil
	}
	return err
}
