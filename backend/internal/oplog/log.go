// Package oplog is the append-only, per-document operation log. The log is
// the source of truth for document content; everything else is a cache that
// can be rebuilt with Replay.
package oplog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"sharednote/backend/internal/ot"
)

var ErrNotFound = errors.New("operation not found")

// Log stores operations per document. Append assigns the next sequence
// number (max existing + 1, starting at 1) and never range-checks positions,
// so operations issued against stale client state are kept for the audit
// trail and clamped when applied.
type Log interface {
	Append(ctx context.Context, docID string, op ot.Operation) (ot.Operation, error)
	// ListSince returns operations with a sequence number greater than
	// afterSeq in ascending order. limit <= 0 means no limit.
	ListSince(ctx context.Context, docID string, afterSeq uint64, limit int) ([]ot.Operation, error)
	Get(ctx context.Context, docID string, seq uint64) (ot.Operation, error)
	LastSequence(ctx context.Context, docID string) (uint64, error)
}

// Replay folds every logged operation of docID over the empty string and
// returns the content along with the last sequence number applied.
func Replay(ctx context.Context, l Log, docID string) (string, uint64, error) {
	return ReplayFrom(ctx, l, docID, "", 0)
}

// ReplayFrom folds the operations logged after afterSeq over base.
func ReplayFrom(ctx context.Context, l Log, docID, base string, afterSeq uint64) (string, uint64, error) {
	ops, err := l.ListSince(ctx, docID, afterSeq, 0)
	if err != nil {
		return "", 0, err
	}
	seq := afterSeq
	if len(ops) > 0 {
		seq = ops[len(ops)-1].SequenceNumber
	}
	return ot.ApplyAll(base, ops), seq, nil
}

// Stamp fills the fields a Log owns: document, sequence number, and an id
// and creation time when the caller left them empty.
func Stamp(docID string, op ot.Operation, seq uint64) ot.Operation {
	op.DocumentID = docID
	op.SequenceNumber = seq
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	return op
}
