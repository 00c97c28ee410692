package store

import (
	"bytes"
	"errors"
	"os"

	"github.com/dgraph-io/badger/v2"
	badgeroptions "github.com/dgraph-io/badger/v2/options"

	"chainkv/config"
)

// badgerBackend 是备用后端。badger 没有原生的范围删除和双向游标，
// DeleteRange 在提交事务里展开成逐键删除，Prev 用反向迭代器重新定位。
type badgerBackend struct {
	db *badger.DB
}

func newBadgerBackend(path string, cfg *config.DatabaseConfig, readOnly bool) (kvBackend, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	opts.SyncWrites = false
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	if cfg.MaxTableSize > 0 {
		opts.MaxTableSize = cfg.MaxTableSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	// 使用 FileIO 模式减少 mmap 内存占用
	opts.TableLoadingMode = badgeroptions.FileIO
	opts.ValueLogLoadingMode = badgeroptions.FileIO
	opts.ReadOnly = readOnly

	// badger v2 不自动创建父目录，需要手动创建
	if !readOnly {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, err
		}
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerBackend{db: db}, nil
}

func (s *badgerBackend) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if v == nil {
			v = []byte{}
		}
		out = v
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

type badgerOpKind uint8

const (
	badgerOpPut badgerOpKind = iota
	badgerOpDelete
	badgerOpDeleteRange
)

type badgerOp struct {
	kind       badgerOpKind
	key, value []byte
	end        []byte
}

// badgerBatch 把修改缓存在内存里，Write 时在单个事务内按序重放。
type badgerBatch struct {
	ops []badgerOp
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (b *badgerBatch) Put(key, value []byte) {
	b.ops = append(b.ops, badgerOp{kind: badgerOpPut, key: cloneBytes(key), value: cloneBytes(value)})
}

func (b *badgerBatch) Delete(key []byte) {
	b.ops = append(b.ops, badgerOp{kind: badgerOpDelete, key: cloneBytes(key)})
}

func (b *badgerBatch) DeleteRange(start, end []byte) {
	b.ops = append(b.ops, badgerOp{kind: badgerOpDeleteRange, key: cloneBytes(start), end: cloneBytes(end)})
}

func (b *badgerBatch) Count() int { return len(b.ops) }

func (s *badgerBackend) NewBatch() Batch { return &badgerBatch{} }

func (s *badgerBackend) Write(b Batch) error {
	bb := b.(*badgerBatch)
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range bb.ops {
			switch op.kind {
			case badgerOpPut:
				if err := txn.Set(op.key, op.value); err != nil {
					return err
				}
			case badgerOpDelete:
				if err := txn.Delete(op.key); err != nil {
					return err
				}
			case badgerOpDeleteRange:
				keys, err := rangeKeys(txn, op.key, op.end)
				if err != nil {
					return err
				}
				for _, k := range keys {
					if err := txn.Delete(k); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

// rangeKeys 收集 [start, end) 内的键。先收集后删除，避免边迭代边改事务。
func rangeKeys(txn *badger.Txn, start, end []byte) ([][]byte, error) {
	iopts := badger.DefaultIteratorOptions
	iopts.PrefetchValues = false
	it := txn.NewIterator(iopts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(start); it.Valid(); it.Next() {
		k := it.Item().Key()
		if len(end) > 0 && bytes.Compare(k, end) >= 0 {
			break
		}
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

type badgerCursor struct {
	txn   *badger.Txn
	fwd   *badger.Iterator
	rev   *badger.Iterator
	key   []byte
	val   []byte
	valid bool
	err   error
}

func (s *badgerBackend) Flush(wait bool) error {
	_ = wait
	return s.db.Sync()
}

func (s *badgerBackend) Close() error { return s.db.Close() }

func (s *badgerBackend) NewCursor() (Cursor, error) {
	txn := s.db.NewTransaction(false)

	fopts := badger.DefaultIteratorOptions
	ropts := badger.DefaultIteratorOptions
	ropts.Reverse = true

	return &badgerCursor{
		txn: txn,
		fwd: txn.NewIterator(fopts),
		rev: txn.NewIterator(ropts),
	}, nil
}

func (c *badgerCursor) load(it *badger.Iterator) bool {
	item := it.Item()
	v, err := item.ValueCopy(nil)
	if err != nil {
		c.err = err
		c.valid = false
		return false
	}
	if v == nil {
		v = []byte{}
	}
	c.key = item.KeyCopy(nil)
	c.val = v
	c.valid = true
	return true
}

func (c *badgerCursor) Seek(key []byte) bool {
	c.fwd.Seek(key)
	if !c.fwd.Valid() {
		c.valid = false
		return false
	}
	return c.load(c.fwd)
}

// Next 定位到当前键的后继。追加 0x00 得到紧邻的更大键再正向 Seek。
func (c *badgerCursor) Next() bool {
	if !c.valid {
		return false
	}
	return c.Seek(append(cloneBytes(c.key), 0x00))
}

// Prev 定位到当前键的前驱。反向迭代器 Seek 落在 <= 目标的最大键上，
// 落在自身时再走一步。
func (c *badgerCursor) Prev() bool {
	if !c.valid {
		return false
	}
	c.rev.Seek(c.key)
	if c.rev.Valid() && bytes.Equal(c.rev.Item().Key(), c.key) {
		c.rev.Next()
	}
	if !c.rev.Valid() {
		c.valid = false
		return false
	}
	return c.load(c.rev)
}

func (c *badgerCursor) Valid() bool { return c.valid }

func (c *badgerCursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.key
}

func (c *badgerCursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.val
}

func (c *badgerCursor) Err() error { return c.err }

func (c *badgerCursor) Close() error {
	c.fwd.Close()
	c.rev.Close()
	c.txn.Discard()
	return nil
}
