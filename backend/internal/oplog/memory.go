package oplog

import (
	"context"
	"sort"
	"sync"

	"sharednote/backend/internal/ot"
)

// MemoryLog keeps every document's operations in process memory.
type MemoryLog struct {
	mu   sync.RWMutex
	docs map[string][]ot.Operation
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{docs: make(map[string][]ot.Operation)}
}

func (m *MemoryLog) Append(ctx context.Context, docID string, op ot.Operation) (ot.Operation, error) {
	if err := ctx.Err(); err != nil {
		return ot.Operation{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ops := m.docs[docID]
	var next uint64 = 1
	if n := len(ops); n > 0 {
		next = ops[n-1].SequenceNumber + 1
	}
	logged := Stamp(docID, op, next)
	m.docs[docID] = append(ops, logged)
	return logged, nil
}

func (m *MemoryLog) ListSince(ctx context.Context, docID string, afterSeq uint64, limit int) ([]ot.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := m.docs[docID]
	// first index with seq > afterSeq
	i := sort.Search(len(ops), func(i int) bool { return ops[i].SequenceNumber > afterSeq })
	rest := ops[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]ot.Operation, len(rest))
	copy(out, rest)
	return out, nil
}

func (m *MemoryLog) Get(ctx context.Context, docID string, seq uint64) (ot.Operation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := m.docs[docID]
	i := sort.Search(len(ops), func(i int) bool { return ops[i].SequenceNumber >= seq })
	if i < len(ops) && ops[i].SequenceNumber == seq {
		return ops[i], nil
	}
	return ot.Operation{}, ErrNotFound
}

func (m *MemoryLog) LastSequence(ctx context.Context, docID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := m.docs[docID]
	if len(ops) == 0 {
		return 0, nil
	}
	return ops[len(ops)-1].SequenceNumber, nil
}
