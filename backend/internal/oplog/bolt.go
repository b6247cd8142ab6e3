package oplog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"sharednote/backend/internal/ot"
)

var bucketOperations = []byte("operations")

// BoltLog persists operations in a bbolt file, one nested bucket per
// document keyed by the big-endian sequence number so cursor order is
// sequence order.
type BoltLog struct {
	db *bolt.DB
}

// NewBoltLog opens or creates the log file at path.
func NewBoltLog(path string) (*BoltLog, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open operation log: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketOperations)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketOperations, err)
	}
	return &BoltLog{db: db}, nil
}

func (b *BoltLog) Close() error {
	return b.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (b *BoltLog) Append(ctx context.Context, docID string, op ot.Operation) (ot.Operation, error) {
	if err := ctx.Err(); err != nil {
		return ot.Operation{}, err
	}
	var logged ot.Operation
	err := b.db.Update(func(tx *bolt.Tx) error {
		docBucket, err := tx.Bucket(bucketOperations).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return fmt.Errorf("create document bucket: %w", err)
		}

		var next uint64 = 1
		if k, _ := docBucket.Cursor().Last(); k != nil {
			next = binary.BigEndian.Uint64(k) + 1
		}
		logged = Stamp(docID, op, next)

		data, err := json.Marshal(&logged)
		if err != nil {
			return fmt.Errorf("marshal operation: %w", err)
		}
		return docBucket.Put(seqKey(next), data)
	})
	if err != nil {
		return ot.Operation{}, err
	}
	return logged, nil
}

func (b *BoltLog) ListSince(ctx context.Context, docID string, afterSeq uint64, limit int) ([]ot.Operation, error) {
	var ops []ot.Operation
	err := b.db.View(func(tx *bolt.Tx) error {
		docBucket := tx.Bucket(bucketOperations).Bucket([]byte(docID))
		if docBucket == nil {
			return nil
		}
		c := docBucket.Cursor()
		for k, v := c.Seek(seqKey(afterSeq + 1)); k != nil; k, v = c.Next() {
			var op ot.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("unmarshal operation: %w", err)
			}
			ops = append(ops, op)
			if limit > 0 && len(ops) >= limit {
				break
			}
		}
		return nil
	})
	return ops, err
}

func (b *BoltLog) Get(ctx context.Context, docID string, seq uint64) (ot.Operation, error) {
	var op ot.Operation
	err := b.db.View(func(tx *bolt.Tx) error {
		docBucket := tx.Bucket(bucketOperations).Bucket([]byte(docID))
		if docBucket == nil {
			return ErrNotFound
		}
		v := docBucket.Get(seqKey(seq))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &op)
	})
	return op, err
}

func (b *BoltLog) LastSequence(ctx context.Context, docID string) (uint64, error) {
	var seq uint64
	err := b.db.View(func(tx *bolt.Tx) error {
		docBucket := tx.Bucket(bucketOperations).Bucket([]byte(docID))
		if docBucket == nil {
			return nil
		}
		if k, _ := docBucket.Cursor().Last(); k != nil {
			seq = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return seq, err
}

// Documents lists every document id that has at least one operation.
func (b *BoltLog) Documents(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOperations).ForEach(func(k, v []byte) error {
			if v == nil { // nested bucket
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}
