package store

import (
	"time"

	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/ot"
)

// OperationRecord 对应 operations 表，(document_id, sequence_number) 唯一
type OperationRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	DocumentID     string    `gorm:"size:64;not null;uniqueIndex:uk_operations_doc_seq,priority:1"`
	SequenceNumber uint64    `gorm:"not null;uniqueIndex:uk_operations_doc_seq,priority:2"`
	AuthorID       uint64    `gorm:"not null"`
	Type           string    `gorm:"size:8;not null"`
	Position       int       `gorm:"not null"`
	Content        string    `gorm:"type:text"`
	Length         int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (OperationRecord) TableName() string { return "operations" }

// DocumentRecord 是物化内容的快照缓存，可随时由日志重建
type DocumentRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Content      string    `gorm:"type:longtext"`
	LastSequence uint64    `gorm:"not null;default:0"`
	LastEditorID uint64    `gorm:"not null;default:0"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (DocumentRecord) TableName() string { return "documents" }

// LockRecord 对应 edit_locks 表，document_id 唯一；0 表示无人持有/无请求
type LockRecord struct {
	DocumentID        string `gorm:"primaryKey;size:64"`
	CurrentEditorID   uint64 `gorm:"not null;default:0"`
	LockAcquiredAt    *time.Time
	LastActivityAt    *time.Time
	RequestedByUserID uint64 `gorm:"not null;default:0"`
	RequestExpiresAt  *time.Time
}

func (LockRecord) TableName() string { return "edit_locks" }

func operationRecord(op ot.Operation) OperationRecord {
	return OperationRecord{
		ID:             op.ID,
		DocumentID:     op.DocumentID,
		SequenceNumber: op.SequenceNumber,
		AuthorID:       op.AuthorID,
		Type:           string(op.Type),
		Position:       op.Position,
		Content:        op.Content,
		Length:         op.Length,
		CreatedAt:      op.CreatedAt,
	}
}

func (r OperationRecord) operation() ot.Operation {
	return ot.Operation{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		AuthorID:       r.AuthorID,
		Type:           ot.Type(r.Type),
		Position:       r.Position,
		Content:        r.Content,
		Length:         r.Length,
		SequenceNumber: r.SequenceNumber,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func documentRecord(d collab.Document) DocumentRecord {
	return DocumentRecord{
		ID:           d.ID,
		Content:      d.Content,
		LastSequence: d.LastSequence,
		LastEditorID: d.LastEditorID,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (r DocumentRecord) document() collab.Document {
	return collab.Document{
		ID:           r.ID,
		Content:      r.Content,
		LastSequence: r.LastSequence,
		LastEditorID: r.LastEditorID,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func lockRecord(l lock.EditLock) LockRecord {
	return LockRecord{
		DocumentID:        l.DocumentID,
		CurrentEditorID:   l.CurrentEditorID,
		LockAcquiredAt:    timePtr(l.LockAcquiredAt),
		LastActivityAt:    timePtr(l.LastActivityAt),
		RequestedByUserID: l.RequestedByUserID,
		RequestExpiresAt:  timePtr(l.RequestExpiresAt),
	}
}

func (r LockRecord) editLock() lock.EditLock {
	return lock.EditLock{
		DocumentID:        r.DocumentID,
		CurrentEditorID:   r.CurrentEditorID,
		LockAcquiredAt:    timeVal(r.LockAcquiredAt),
		LastActivityAt:    timeVal(r.LastActivityAt),
		RequestedByUserID: r.RequestedByUserID,
		RequestExpiresAt:  timeVal(r.RequestExpiresAt),
	}
}

// 零值时间存为 NULL，避免 MySQL 严格模式拒绝 0000-00-00
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
