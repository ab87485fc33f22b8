package db

import (
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/mezonai/mmn-storage/logx"
)

// BadgerProvider implements DatabaseProvider for BadgerDB
type BadgerProvider struct {
	once sync.Once
	db   *badgerdb.DB
}

// NewBadgerProvider opens (or creates) a Badger database in directory
func NewBadgerProvider(directory string) (DatabaseProvider, error) {
	opts := badgerdb.DefaultOptions(directory).WithLogger(&badgerLogger{})
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger: %w", err)
	}

	return &BadgerProvider{db: db}, nil
}

func (p *BadgerProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

func (p *BadgerProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := p.db.View(func(txn *badgerdb.Txn) error {
		for _, key := range keys {
			item, err := txn.Get(key)
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[string(key)] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *BadgerProvider) Put(key, value []byte) error {
	return p.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, value)
	})
}

func (p *BadgerProvider) Delete(key []byte) error {
	return p.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
}

func (p *BadgerProvider) Has(key []byte) (bool, error) {
	err := p.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *BadgerProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	return p.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !callback(item.Key(), value) {
				break
			}
		}
		return nil
	})
}

func (p *BadgerProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *BadgerProvider) Batch() DatabaseBatch {
	return &BadgerBatch{db: p.db}
}

// BadgerBatch queues operations and commits them in a single transaction, so a
// batch is applied entirely or not at all. A batch larger than Badger's
// transaction limit is committed through a WriteBatch instead, which splits it
// into several transactions applied in queue order.
type BadgerBatch struct {
	db  *badgerdb.DB
	ops []op
}

func (b *BadgerBatch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: copyBytes(key), value: copyBytes(value)})
}

func (b *BadgerBatch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: copyBytes(key), delete: true})
}

func (b *BadgerBatch) Len() int {
	return len(b.ops)
}

func (b *BadgerBatch) Write() error {
	if len(b.ops) == 0 {
		return nil
	}
	err := b.db.Update(func(txn *badgerdb.Txn) error {
		for _, o := range b.ops {
			var err error
			if o.delete {
				err = txn.Delete(o.key)
			} else {
				err = txn.Set(o.key, o.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badgerdb.ErrTxnTooBig) {
		logx.Debug("BADGER", fmt.Sprintf("Batch of %d ops exceeds one transaction, splitting", len(b.ops)))
		return b.writeSplit()
	}
	return err
}

// writeSplit commits the queued ops with a WriteBatch. The failed single
// transaction above was discarded, so nothing is applied twice.
func (b *BadgerBatch) writeSplit() error {
	wb := b.db.NewWriteBatch()
	for _, o := range b.ops {
		var err error
		if o.delete {
			err = wb.Delete(o.key)
		} else {
			err = wb.Set(o.key, o.value)
		}
		if err != nil {
			wb.Cancel()
			return fmt.Errorf("failed to queue badger write batch: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush badger write batch: %w", err)
	}
	return nil
}

func (b *BadgerBatch) WriteSync() error {
	if err := b.Write(); err != nil {
		return err
	}
	return b.db.Sync()
}

func (b *BadgerBatch) Reset() {
	b.ops = b.ops[:0]
}

func (b *BadgerBatch) Close() error {
	b.ops = nil
	return nil
}

// badgerLogger routes Badger's internal logging into logx
type badgerLogger struct{}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	logx.Error("BADGER", fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	logx.Warn("BADGER", fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	logx.Debug("BADGER", fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	logx.Debug("BADGER", fmt.Sprintf(format, args...))
}

var _ badgerdb.Logger = (*badgerLogger)(nil)
