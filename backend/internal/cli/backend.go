package cli

import (
	"context"
	"fmt"
	"log"

	"sharednote/backend/config"
	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/oplog"
	"sharednote/backend/internal/store"
)

// backend 是按 storage.driver 组装出的持久化层
type backend struct {
	log       oplog.Log
	documents collab.DocumentStore
	locks     collab.LockStore
	closers   []func() error
}

// documentLister 由 BoltLog 和 OperationStore 实现
type documentLister interface {
	Documents(ctx context.Context) ([]string, error)
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return &backend{log: oplog.NewMemoryLog()}, nil

	case "bolt":
		bl, err := oplog.NewBoltLog(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		return &backend{log: bl, closers: []func() error{bl.Close}}, nil

	case "mysql":
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("mysql handle: %w", err)
		}
		if err := store.Migrate(db); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &backend{
			log:       store.NewOperationStore(db),
			documents: store.NewDocumentStore(db),
			locks:     store.NewLockStore(db),
			closers:   []func() error{sqlDB.Close},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func (b *backend) Close() {
	for _, c := range b.closers {
		if err := c(); err != nil {
			log.Printf("close storage err=%v", err)
		}
	}
}

func (b *backend) documentIDs(ctx context.Context) ([]string, error) {
	dl, ok := b.log.(documentLister)
	if !ok {
		return nil, fmt.Errorf("storage driver cannot list documents")
	}
	return dl.Documents(ctx)
}
