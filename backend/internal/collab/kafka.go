package collab

import (
	"time"

	"sharednote/backend/internal/ot"
)

const EventTypeOpApplied = "OP_APPLIED"

// DocOpEvent 是写入 Kafka 的已应用操作事件，以 DocID 作为消息 key
type DocOpEvent struct {
	EventType      string       `json:"eventType"` // 固定 "OP_APPLIED"
	DocID          string       `json:"docId"`
	OperationID    string       `json:"operationId"`
	SequenceNumber uint64       `json:"sequenceNumber"`
	AuthorID       uint64       `json:"authorId"`
	Operation      ot.Operation `json:"operation"`
	AppliedAt      time.Time    `json:"appliedAt"`
}

func newDocOpEvent(op ot.Operation, appliedAt time.Time) DocOpEvent {
	return DocOpEvent{
		EventType:      EventTypeOpApplied,
		DocID:          op.DocumentID,
		OperationID:    op.ID,
		SequenceNumber: op.SequenceNumber,
		AuthorID:       op.AuthorID,
		Operation:      op,
		AppliedAt:      appliedAt,
	}
}
